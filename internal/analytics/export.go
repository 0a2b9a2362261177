package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/settlement"
	"github.com/rs/zerolog/log"
)

// csvHeader is the fixed column order of the flat export.
var csvHeader = []string{
	"ID",
	"Auction/Subject ID",
	"Winner/User ID",
	"Seller ID",
	"Amount",
	"Currency",
	"Payment Method",
	"Status",
	"Initiated At",
	"Completed At",
}

// ExportDocument is the full JSON dump: records with their step histories,
// the rule set, batches, and the engine configuration at export time.
type ExportDocument struct {
	ExportedAt time.Time              `json:"exported_at"`
	Records    []settlement.Record    `json:"records"`
	Rules      []rules.Rule           `json:"rules"`
	Batches    []settlement.Batch     `json:"batches"`
	Config     map[string]interface{} `json:"config"`
}

// ExportJSON produces the full audit dump as a JSON document.
func (s *Service) ExportJSON() ([]byte, error) {
	doc, err := s.buildDocument()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportCSV produces the flat record export with the fixed column order.
func (s *Service) ExportCSV() ([]byte, error) {
	records, err := s.records.ListRecords()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for i := range records {
		r := &records[i]

		// The winner pays in a settlement; the refunded user is paid.
		winnerUser := r.PayerID
		seller := r.PayeeID
		if r.Pipeline == settlement.PipelineRefund {
			winnerUser = r.PayeeID
			seller = ""
		}

		completedAt := ""
		if r.CompletedAt != nil {
			completedAt = r.CompletedAt.UTC().Format(time.RFC3339)
		}

		row := []string{
			r.RecordID,
			r.AuctionID,
			winnerUser,
			seller,
			strconv.FormatFloat(r.GrossAmount, 'f', -1, 64),
			r.Currency,
			r.PaymentMethod,
			r.Status,
			r.InitiatedAt.UTC().Format(time.RFC3339),
			completedAt,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportJSON restores records from an export document. Records whose IDs
// already exist are skipped; step-history ordering is preserved as exported.
func (s *Service) ImportJSON(data []byte) (int, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("invalid export document: %w", err)
	}

	imported := 0
	for i := range doc.Records {
		record := doc.Records[i]
		if err := s.records.ImportRecord(&record); err != nil {
			log.Warn().
				Err(err).
				Str("record_id", record.RecordID).
				Msg("skipping record on import")
			continue
		}
		imported++
	}

	log.Info().
		Int("imported", imported).
		Int("total", len(doc.Records)).
		Msg("import completed")

	return imported, nil
}

func (s *Service) buildDocument() (*ExportDocument, error) {
	records, err := s.records.ListRecords()
	if err != nil {
		return nil, err
	}
	ruleSet, err := s.rules.ListRules()
	if err != nil {
		return nil, err
	}
	batches, err := s.records.ListBatches()
	if err != nil {
		return nil, err
	}

	return &ExportDocument{
		ExportedAt: time.Now(),
		Records:    records,
		Rules:      ruleSet,
		Batches:    batches,
		Config:     s.config,
	}, nil
}

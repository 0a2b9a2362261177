package analytics

import (
	"time"

	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/settlement"
	"github.com/rs/zerolog/log"
)

// FeeTotals is the aggregate fee breakdown across the full record set.
type FeeTotals struct {
	Platform  float64 `json:"platform"`
	Processor float64 `json:"processor"`
	Gas       float64 `json:"gas"`
	Net       float64 `json:"net"`
}

// DailyBucket is one day of the time series, keyed by the record's UTC
// initiation date.
type DailyBucket struct {
	Date   string  `json:"date"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Summary is the derived, read-only analytics view. It is recomputed from the
// record set on every request and may trail the pipeline by one tick.
type Summary struct {
	TotalRecords    int            `json:"total_records"`
	ByPipeline      map[string]int `json:"by_pipeline"`
	ByKind          map[string]int `json:"by_kind"`
	ByStatus        map[string]int `json:"by_status"`
	ByPaymentMethod map[string]int `json:"by_payment_method"`
	AvgProcessingMs float64        `json:"avg_processing_ms"`
	SuccessRate     float64        `json:"success_rate"`
	FailureRate     float64        `json:"failure_rate"`
	RetryRate       float64        `json:"retry_rate"`
	FeeTotals       FeeTotals      `json:"fee_totals"`
	Daily           []DailyBucket  `json:"daily"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Service computes summaries and serves the export/import surface. It only
// ever reads pipeline state; records are never mutated from here.
type Service struct {
	records *settlement.Database
	rules   *rules.Service
	config  map[string]interface{}
}

func NewService(records *settlement.Database, ruleService *rules.Service, configDump map[string]interface{}) *Service {
	return &Service{
		records: records,
		rules:   ruleService,
		config:  configDump,
	}
}

// Summarize recomputes the summary from the full record set. Empty data
// yields empty aggregates, never an error.
func (s *Service) Summarize() (*Summary, error) {
	records, err := s.records.ListRecords()
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ByPipeline:      make(map[string]int),
		ByKind:          make(map[string]int),
		ByStatus:        make(map[string]int),
		ByPaymentMethod: make(map[string]int),
		Daily:           []DailyBucket{},
		GeneratedAt:     time.Now(),
	}

	var (
		completed     int
		failed        int
		retried       int
		processingSum time.Duration
		dayIndex      = make(map[string]int)
	)

	for i := range records {
		r := &records[i]
		summary.TotalRecords++
		summary.ByPipeline[r.Pipeline]++
		summary.ByKind[r.Kind]++
		summary.ByStatus[r.Status]++
		summary.ByPaymentMethod[r.PaymentMethod]++

		summary.FeeTotals.Platform += r.PlatformFee
		summary.FeeTotals.Processor += r.ProcessorFee
		if r.GasFee != nil {
			summary.FeeTotals.Gas += *r.GasFee
		}
		summary.FeeTotals.Net += r.NetAmount

		if r.RetryCount > 0 {
			retried++
		}

		switch r.Status {
		case settlement.StatusCompleted:
			completed++
			if r.CompletedAt != nil {
				processingSum += r.CompletedAt.Sub(r.InitiatedAt)
			}
		case settlement.StatusFailed, settlement.StatusEscalated:
			failed++
		}

		day := r.InitiatedAt.UTC().Format("2006-01-02")
		idx, ok := dayIndex[day]
		if !ok {
			idx = len(summary.Daily)
			dayIndex[day] = idx
			summary.Daily = append(summary.Daily, DailyBucket{Date: day})
		}
		summary.Daily[idx].Count++
		summary.Daily[idx].Amount += r.GrossAmount
	}

	if summary.TotalRecords > 0 {
		total := float64(summary.TotalRecords)
		summary.SuccessRate = float64(completed) / total
		summary.FailureRate = float64(failed) / total
		summary.RetryRate = float64(retried) / total
	}
	if completed > 0 {
		summary.AvgProcessingMs = float64(processingSum.Milliseconds()) / float64(completed)
	}

	log.Debug().
		Int("total_records", summary.TotalRecords).
		Float64("success_rate", summary.SuccessRate).
		Msg("analytics summary recomputed")

	return summary, nil
}

package analytics

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportJSONRoundTrip(t *testing.T) {
	source, sourceDB, sourceRules := newTestService(t)

	completed := time.Now().Add(5 * time.Second).UTC().Truncate(time.Second)
	original := seedRecord(t, sourceDB, func(r *settlement.Record) {
		r.Status = settlement.StatusCompleted
		r.CompletedAt = &completed
		r.TransactionRef = "TXN_BAL_abc"
		r.Steps = []settlement.StepRecord{
			{Step: settlement.StepValidation, Status: settlement.StepStatusCompleted},
			{Step: settlement.StepPaymentProcessing, Status: settlement.StepStatusCompleted},
			{Step: settlement.StepAssetTransfer, Status: settlement.StepStatusFailed, Error: "transfer declined"},
		}
	})

	_, err := sourceRules.CreateRule(&rules.CreateRuleRequest{
		Name:     "flat refund fee",
		Pipeline: settlement.PipelineRefund,
		Priority: 1,
		Action:   rules.Action{FeeStructure: rules.FeeStructureFixed, FeeValue: 1},
	})
	require.NoError(t, err)

	data, err := source.ExportJSON()
	require.NoError(t, err)

	var doc ExportDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Records, 1)
	require.Len(t, doc.Rules, 1)
	assert.Equal(t, 10, int(doc.Config["batch_size"].(float64)))

	// restore into a fresh store
	target, targetDB, _ := newTestService(t)
	imported, err := target.ImportJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	restored, err := targetDB.GetRecord(original.RecordID)
	require.NoError(t, err)
	assert.Equal(t, original.RecordID, restored.RecordID)
	assert.Equal(t, original.AuctionID, restored.AuctionID)
	assert.Equal(t, settlement.StatusCompleted, restored.Status)
	assert.Equal(t, "TXN_BAL_abc", restored.TransactionRef)
	assert.InDelta(t, original.NetAmount, restored.NetAmount, 1e-9)

	// step history survives in order
	require.Len(t, restored.Steps, 3)
	assert.Equal(t, settlement.StepValidation, restored.Steps[0].Step)
	assert.Equal(t, settlement.StepPaymentProcessing, restored.Steps[1].Step)
	assert.Equal(t, settlement.StepAssetTransfer, restored.Steps[2].Step)
	assert.Equal(t, "transfer declined", restored.Steps[2].Error)
}

func TestImportSkipsExistingRecords(t *testing.T) {
	service, db, _ := newTestService(t)
	seedRecord(t, db, nil)

	data, err := service.ExportJSON()
	require.NoError(t, err)

	imported, err := service.ImportJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 0, imported, "re-importing into the same store is a no-op")

	records, err := db.ListRecords()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.ImportJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestExportCSVColumnOrder(t *testing.T) {
	service, db, _ := newTestService(t)

	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRecord(t, db, func(r *settlement.Record) {
		r.RecordID = "SET_csv"
		r.AuctionID = "AUC_csv"
		r.PayerID = "USR_winner"
		r.PayeeID = "USR_seller"
		r.Status = settlement.StatusCompleted
		r.InitiatedAt = completed.Add(-time.Minute)
		r.CompletedAt = &completed
	})
	seedRecord(t, db, func(r *settlement.Record) {
		r.RecordID = "REF_csv"
		r.Pipeline = settlement.PipelineRefund
		r.Kind = settlement.CauseOutbid
		r.PayerID = settlement.PlatformAccount
		r.PayeeID = "USR_bidder"
		r.PaymentMethod = "WALLET_CREDIT"
		r.GrossAmount = 50
	})

	data, err := service.ExportCSV()
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"ID", "Auction/Subject ID", "Winner/User ID", "Seller ID",
		"Amount", "Currency", "Payment Method", "Status",
		"Initiated At", "Completed At",
	}, rows[0])

	byID := map[string][]string{rows[1][0]: rows[1], rows[2][0]: rows[2]}

	settlementRow := byID["SET_csv"]
	require.NotNil(t, settlementRow)
	assert.Equal(t, "USR_winner", settlementRow[2])
	assert.Equal(t, "USR_seller", settlementRow[3])
	assert.Equal(t, "100", settlementRow[4])
	assert.Equal(t, "2026-03-01T12:00:00Z", settlementRow[9])

	// refunds report the refunded user and leave the seller column empty
	refundRow := byID["REF_csv"]
	require.NotNil(t, refundRow)
	assert.Equal(t, "USR_bidder", refundRow[2])
	assert.Equal(t, "", refundRow[3])
	assert.Equal(t, "50", refundRow[4])
	assert.Equal(t, "", refundRow[9], "pending records have no completion timestamp")
}

package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/settlement"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *settlement.Database, *rules.Service) {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(&settlement.Record{}, &settlement.Batch{}, &rules.Rule{}))

	records := settlement.NewDatabase(gormDB)
	ruleService := rules.NewService(gormDB)
	service := NewService(records, ruleService, map[string]interface{}{"batch_size": 10})
	return service, records, ruleService
}

// seedRecord persists a record with the given shape and returns it.
func seedRecord(t *testing.T, db *settlement.Database, mutate func(*settlement.Record)) *settlement.Record {
	t.Helper()

	now := time.Now()
	record := &settlement.Record{
		RecordID:      "SET_" + uuid.New().String(),
		AuctionID:     "AUC_" + uuid.New().String(),
		PayerID:       "USR_payer",
		PayeeID:       "USR_payee",
		Pipeline:      settlement.PipelineSettlement,
		Kind:          settlement.KindAutomatic,
		PaymentMethod: "PLATFORM_BALANCE",
		Status:        settlement.StatusPending,
		GrossAmount:   100,
		PlatformFee:   2.5,
		ProcessorFee:  0.25,
		NetAmount:     97.25,
		Currency:      "USD",
		Steps:         []settlement.StepRecord{},
		MaxRetries:    3,
		InitiatedAt:   now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, db.CreateRecord(record))
	return record
}

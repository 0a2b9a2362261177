package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/types"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestGorm(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}, &Batch{}, &rules.Rule{}))
	return db
}

func newTestDB(t *testing.T) *Database {
	t.Helper()
	return NewDatabase(newTestGorm(t))
}

// stubExecutor is a deterministic payment executor for tests.
type stubExecutor struct {
	err       error
	failFor   map[string]bool // record IDs that must fail
	reference string
}

func (s *stubExecutor) Execute(_ context.Context, record *Record) (*PaymentResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.failFor[record.RecordID] {
		return nil, errors.New("payment declined")
	}
	ref := s.reference
	if ref == "" {
		ref = "TXN_TEST_" + record.RecordID
	}
	return &PaymentResult{Reference: ref}, nil
}

func newStubDispatcher(executor PaymentExecutor) *Dispatcher {
	d := NewDispatcher()
	for _, method := range types.PaymentMethods {
		d.Register(method, executor)
	}
	return d
}

func newTestRecord(db *Database, t *testing.T) *Record {
	t.Helper()

	record := &Record{
		RecordID:      "SET_" + uuid.New().String(),
		AuctionID:     "AUC_" + uuid.New().String(),
		PayerID:       "USR_payer",
		PayeeID:       "USR_payee",
		Pipeline:      PipelineSettlement,
		Kind:          KindAutomatic,
		PaymentMethod: types.MethodPlatformBalance,
		Status:        StatusPending,
		GrossAmount:   100,
		PlatformFee:   2.5,
		ProcessorFee:  0.25,
		NetAmount:     97.25,
		Currency:      "USD",
		Steps:         []StepRecord{},
		MaxRetries:    3,
		InitiatedAt:   time.Now(),
	}
	require.NoError(t, db.CreateRecord(record))
	return record
}

func requireStepStatuses(t *testing.T, steps []StepRecord, want []string) {
	t.Helper()

	require.Len(t, steps, len(want))
	for i, status := range want {
		require.Equal(t, status, steps[i].Status, "step %d (%s)", i, steps[i].Step)
	}
}

func fmtStatuses(n int, status string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = status
	}
	return out
}

package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(db *Database, queue *Queue, dispatcher *Dispatcher, sink events.Sink, escalation time.Duration) *Processor {
	engine := NewEngine(db, dispatcher, sink)
	return NewProcessor(db, queue, engine, sink, time.Second, 10, escalation)
}

func TestProcessorBatchWithOneFailure(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)
	sink := events.NewRecordingSink()

	first := newTestRecord(db, t)
	second := newTestRecord(db, t)
	third := newTestRecord(db, t)
	for _, r := range []*Record{first, second, third} {
		require.NoError(t, queue.Enqueue(r.RecordID))
	}

	// the middle record's payment is declined
	dispatcher := newStubDispatcher(&stubExecutor{failFor: map[string]bool{second.RecordID: true}})
	p := newTestProcessor(db, queue, dispatcher, sink, 0)

	batch, err := p.processBatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	assert.Equal(t, StatusFailed, batch.Status)
	assert.ElementsMatch(t, []string{first.RecordID, second.RecordID, third.RecordID}, batch.RecordIDs)
	assert.InDelta(t, 300, batch.TotalAmount, 1e-9)

	stored, err := db.GetBatch(batch.BatchID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)

	failedRecord, err := db.GetRecord(second.RecordID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failedRecord.Status)
	assert.Equal(t, batch.BatchID, failedRecord.BatchID)

	require.Len(t, sink.Named(events.BatchProcessed), 1)
}

func TestProcessorBatchAllSucceed(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)
	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Enqueue(newTestRecord(db, t).RecordID))
	}

	p := newTestProcessor(db, queue, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink(), 0)

	batch, err := p.processBatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, StatusCompleted, batch.Status)
	assert.Equal(t, 3, batch.SuccessCount)
	assert.Equal(t, 0, batch.FailureCount)
}

func TestProcessorEmptyQueueIsNoOp(t *testing.T) {
	db := newTestDB(t)
	p := newTestProcessor(db, NewQueue(10), newStubDispatcher(&stubExecutor{}), events.NewRecordingSink(), 0)

	batch, err := p.processBatch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, batch)

	batches, err := db.ListBatches()
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestProcessorRespectsBatchSize(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(20)
	for i := 0; i < 5; i++ {
		require.NoError(t, queue.Enqueue(newTestRecord(db, t).RecordID))
	}

	engine := NewEngine(db, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink())
	p := NewProcessor(db, queue, engine, events.NewRecordingSink(), time.Second, 2, 0)

	batch, err := p.processBatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Len(t, batch.RecordIDs, 2)
	assert.Equal(t, 3, queue.Len())
}

func TestProcessorSkipsNonPendingRecords(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)

	done := newTestRecord(db, t)
	done.Status = StatusCompleted
	require.NoError(t, db.UpdateRecord(done))
	require.NoError(t, queue.Enqueue(done.RecordID))

	pending := newTestRecord(db, t)
	require.NoError(t, queue.Enqueue(pending.RecordID))

	p := newTestProcessor(db, queue, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink(), 0)

	batch, err := p.processBatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)

	// the already-terminal record is skipped, not counted either way
	assert.Equal(t, 1, batch.SuccessCount)
	assert.Equal(t, 0, batch.FailureCount)

	stored, err := db.GetRecord(done.RecordID)
	require.NoError(t, err)
	assert.Empty(t, stored.Steps, "terminal record must not be re-processed")
}

func TestProcessorOverlappingTickIsNoOp(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)
	require.NoError(t, queue.Enqueue(newTestRecord(db, t).RecordID))

	p := newTestProcessor(db, queue, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink(), 0)

	// simulate an in-progress drain holding the guard
	p.draining.Lock()
	p.Tick(context.Background())
	p.draining.Unlock()

	assert.Equal(t, 1, queue.Len(), "guarded tick must not drain")

	p.Tick(context.Background())
	assert.Equal(t, 0, queue.Len())
}

func TestProcessorMarkProcessingIsAtMostOnce(t *testing.T) {
	db := newTestDB(t)
	record := newTestRecord(db, t)

	claimed, err := db.MarkProcessing(record.RecordID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = db.MarkProcessing(record.RecordID)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must lose")
}

func TestProcessorEscalatesOverdueRefunds(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)
	sink := events.NewRecordingSink()

	overdue := newTestRecord(db, t)
	overdue.Pipeline = PipelineRefund
	overdue.Kind = CauseAuctionCancelled
	overdue.InitiatedAt = time.Now().Add(-100 * time.Hour)
	require.NoError(t, db.UpdateRecord(overdue))
	require.NoError(t, queue.Enqueue(overdue.RecordID))

	fresh := newTestRecord(db, t)
	fresh.Pipeline = PipelineRefund
	fresh.Kind = CauseOutbid
	require.NoError(t, db.UpdateRecord(fresh))

	p := newTestProcessor(db, queue, newStubDispatcher(&stubExecutor{}), sink, 72*time.Hour)
	p.Tick(context.Background())

	escalated, err := db.GetRecord(overdue.RecordID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, escalated.Status)
	assert.Empty(t, escalated.Steps, "no payment attempt after escalation")
	assert.Equal(t, CauseAuctionCancelled, escalated.Kind, "refund cause is preserved")

	untouched, err := db.GetRecord(fresh.RecordID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, untouched.Status, "a refund inside the threshold is processed, not escalated")

	require.Len(t, sink.Named(events.RecordEscalated), 1)
	assert.Equal(t, overdue.RecordID, sink.Named(events.RecordEscalated)[0].RecordID)
}

func TestProcessorEscalatedRecordNeverProcessedAgain(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)

	record := newTestRecord(db, t)
	record.Pipeline = PipelineRefund
	record.Status = StatusEscalated
	require.NoError(t, db.UpdateRecord(record))
	require.NoError(t, queue.Enqueue(record.RecordID))

	p := newTestProcessor(db, queue, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink(), 72*time.Hour)
	p.Tick(context.Background())

	stored, err := db.GetRecord(record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, stored.Status)
	assert.Empty(t, stored.Steps)
}

func TestProcessorRequeuesStrandedPendingRecords(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)

	// persisted but never enqueued, as after a failed scheduled enqueue
	stranded := newTestRecord(db, t)

	future := time.Now().Add(time.Hour)
	scheduled := newTestRecord(db, t)
	scheduled.ScheduledFor = &future
	require.NoError(t, db.UpdateRecord(scheduled))

	p := newTestProcessor(db, queue, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink(), 0)
	p.Tick(context.Background())

	recovered, err := db.GetRecord(stranded.RecordID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, recovered.Status)

	waiting, err := db.GetRecord(scheduled.RecordID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, waiting.Status, "future scheduled records stay out of the sweep")
	assert.Equal(t, 0, queue.Len())
}

func TestProcessorStartStopsCleanly(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueue(10)
	require.NoError(t, queue.Enqueue("SET_"+uuid.New().String()))

	engine := NewEngine(db, newStubDispatcher(&stubExecutor{}), events.NewRecordingSink())
	p := NewProcessor(db, queue, engine, events.NewRecordingSink(), 10*time.Millisecond, 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}

	// shutdown clears the queue and refuses new work
	assert.Equal(t, 0, queue.Len())
	assert.Error(t, queue.Enqueue("SET_late"))
}

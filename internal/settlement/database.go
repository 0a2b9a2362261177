package settlement

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Database is the keyed store for records and batches. All pipeline state
// mutations pass through it, so swapping the backing storage never touches
// pipeline logic.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRecord(record *Record) error {
	return d.db.Create(record).Error
}

func (d *Database) GetRecord(recordID string) (*Record, error) {
	var record Record
	if err := d.db.Where("record_id = ?", recordID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *Database) UpdateRecord(record *Record) error {
	record.UpdatedAt = time.Now()
	return d.db.Save(record).Error
}

func (d *Database) GetUserRecords(userID string) ([]Record, error) {
	var records []Record
	if err := d.db.Where("payer_id = ? OR payee_id = ?", userID, userID).
		Order("initiated_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Database) ListRecords() ([]Record, error) {
	var records []Record
	if err := d.db.Order("initiated_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetDuePendingRecords returns PENDING records whose scheduled time, if any,
// has arrived. Used by the requeue sweep.
func (d *Database) GetDuePendingRecords(now time.Time) ([]Record, error) {
	var records []Record
	if err := d.db.Where("status = ? AND (scheduled_for IS NULL OR scheduled_for <= ?)",
		StatusPending, now).
		Order("initiated_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetPendingRefundsOlderThan returns refund records still awaiting processing
// that were initiated before the cutoff. Used by the escalation sweep.
func (d *Database) GetPendingRefundsOlderThan(cutoff time.Time) ([]Record, error) {
	var records []Record
	if err := d.db.Where("pipeline = ? AND status = ? AND initiated_at < ?",
		PipelineRefund, StatusPending, cutoff).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Database) CreateBatch(batch *Batch) error {
	return d.db.Create(batch).Error
}

func (d *Database) UpdateBatch(batch *Batch) error {
	batch.UpdatedAt = time.Now()
	return d.db.Save(batch).Error
}

func (d *Database) GetBatch(batchID string) (*Batch, error) {
	var batch Batch
	if err := d.db.Where("batch_id = ?", batchID).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (d *Database) ListBatches() ([]Batch, error) {
	var batches []Batch
	if err := d.db.Order("created_at ASC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// MarkProcessing flips a PENDING record to PROCESSING in one guarded update.
// The status predicate makes the transition race-free: whichever caller wins
// the update owns the record for this pass, everyone else sees zero rows.
func (d *Database) MarkProcessing(recordID string) (bool, error) {
	result := d.db.Model(&Record{}).
		Where("record_id = ? AND status = ?", recordID, StatusPending).
		Updates(map[string]interface{}{
			"status":     StatusProcessing,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ImportRecord restores a record from an export document, preserving its
// identity and step history. Existing records with the same record_id are
// left untouched.
func (d *Database) ImportRecord(record *Record) error {
	var existing Record
	err := d.db.Where("record_id = ?", record.RecordID).First(&existing).Error
	if err == nil {
		return errors.New("record already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record.ID = 0
	return d.db.Create(record).Error
}

package rules

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRule(rule *Rule) error {
	return d.db.Create(rule).Error
}

func (d *Database) GetRule(ruleID string) (*Rule, error) {
	var rule Rule
	if err := d.db.Where("rule_id = ?", ruleID).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetActiveRules returns all active rules for a pipeline, ordered for
// deterministic matching: priority descending, then creation order.
func (d *Database) GetActiveRules(pipeline string) ([]Rule, error) {
	var ruleSet []Rule
	if err := d.db.Where("active = ? AND pipeline = ?", true, pipeline).
		Order("priority DESC, created_at ASC").
		Find(&ruleSet).Error; err != nil {
		return nil, err
	}
	return ruleSet, nil
}

func (d *Database) ListRules() ([]Rule, error) {
	var ruleSet []Rule
	if err := d.db.Order("priority DESC, created_at ASC").Find(&ruleSet).Error; err != nil {
		return nil, err
	}
	return ruleSet, nil
}

// DeactivateRule retires a rule. Rules are never deleted so historical
// records keep a resolvable rule_id.
func (d *Database) DeactivateRule(ruleID string) error {
	result := d.db.Model(&Rule{}).
		Where("rule_id = ?", ruleID).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("rule not found")
	}
	return nil
}

package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/types"
	"github.com/ksred/settler-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service manages the rule set and resolves rules for the pipeline.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateRule validates and registers a new rule. Rule content is immutable
// after creation; a change means a new rule plus deactivation of the old one.
func (s *Service) CreateRule(req *CreateRuleRequest) (*Rule, error) {
	logger := log.With().
		Str("service", "rules").
		Str("rule_name", req.Name).
		Logger()

	pipeline := strings.ToUpper(req.Pipeline)
	if pipeline != "SETTLEMENT" && pipeline != "REFUND" {
		return nil, fmt.Errorf("unknown pipeline %q", req.Pipeline)
	}

	switch req.Action.FeeStructure {
	case FeeStructureFixed, FeeStructurePercentage:
		if req.Action.FeeValue < 0 {
			return nil, fmt.Errorf("fee value must not be negative")
		}
	case FeeStructureTiered:
		if len(req.Action.FeeTiers) == 0 {
			return nil, fmt.Errorf("tiered fee structure requires at least one tier")
		}
	default:
		return nil, fmt.Errorf("unknown fee structure %q", req.Action.FeeStructure)
	}

	if m := req.Action.RequiredPaymentMethod; m != "" && !types.SupportedPaymentMethod(m) {
		return nil, fmt.Errorf("unsupported payment method %q", m)
	}

	rule := &Rule{
		RuleID:     "RUL_" + uuid.New().String(),
		Name:       req.Name,
		Pipeline:   pipeline,
		Priority:   req.Priority,
		Active:     true,
		Conditions: req.Conditions,
		Action:     req.Action,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := s.db.CreateRule(rule); err != nil {
		logger.Error().Err(err).Msg("failed to persist rule")
		return nil, fmt.Errorf("failed to persist rule: %w", err)
	}

	logger.Info().
		Str("rule_id", rule.RuleID).
		Str("pipeline", rule.Pipeline).
		Int("priority", rule.Priority).
		Msg("rule created")

	return rule, nil
}

// Resolve returns the matching rule for the given input, or nil when the
// default fee structure applies.
func (s *Service) Resolve(input MatchInput) (*Rule, error) {
	ruleSet, err := s.db.GetActiveRules(input.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	return Match(ruleSet, input), nil
}

// GetRule returns a rule by ID, active or not. Deactivated rules stay
// resolvable so historical records keep a meaningful rule_id.
func (s *Service) GetRule(ruleID string) (*Rule, error) {
	return s.db.GetRule(ruleID)
}

func (s *Service) ListRules() ([]Rule, error) {
	return s.db.ListRules()
}

func (s *Service) DeactivateRule(ruleID string) error {
	return s.db.DeactivateRule(ruleID)
}

// GinHandlers contains HTTP handlers for rule administration endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) CreateRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		rule, err := h.service.CreateRule(&req)
		response.Handle(c, rule, err)
	}
}

func (h *GinHandlers) GetRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleID := c.Param("rule_id")

		rule, err := h.service.GetRule(ruleID)
		response.Handle(c, rule, err)
	}
}

func (h *GinHandlers) ListRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleSet, err := h.service.ListRules()
		response.Handle(c, ruleSet, err)
	}
}

func (h *GinHandlers) DeactivateRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleID := c.Param("rule_id")

		if err := h.service.DeactivateRule(ruleID); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"message": "rule deactivated"})
	}
}

package settlement

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/settler-api/internal/types"
	"github.com/ksred/settler-api/pkg/response"
)

// GinHandlers contains HTTP handlers for settlement and refund endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateSettlementHandler accepts winner-determined events from the auction
// engine and creates a settlement record.
func (h *GinHandlers) CreateSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var event types.WinnerDeterminedEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		record, err := h.service.CreateSettlement(&event)
		response.Handle(c, record, err)
	}
}

// CreateRefundHandler accepts refund-cause events and creates a refund record.
func (h *GinHandlers) CreateRefundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var event types.RefundRequestEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		record, err := h.service.CreateRefund(&event)
		response.Handle(c, record, err)
	}
}

func (h *GinHandlers) GetRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := c.Param("record_id")

		record, err := h.service.GetRecord(recordID)
		response.Handle(c, record, err)
	}
}

func (h *GinHandlers) GetUserRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user")
		if userID == "" {
			userID = c.GetHeader("X-User-ID")
		}
		if userID == "" {
			response.BadRequest(c, "user ID is required")
			return
		}

		records, err := h.service.GetUserRecords(userID)
		response.Handle(c, records, err)
	}
}

// RetryRecordHandler resubmits a FAILED record. A record that cannot be
// resubmitted yields accepted=false rather than an error.
func (h *GinHandlers) RetryRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := c.Param("record_id")

		accepted, err := h.service.Resubmit(recordID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"record_id": recordID, "accepted": accepted})
	}
}

func (h *GinHandlers) GetBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batch_id")

		batch, err := h.service.GetBatch(batchID)
		response.Handle(c, batch, err)
	}
}

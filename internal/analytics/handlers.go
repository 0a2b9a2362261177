package analytics

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/settler-api/pkg/response"
)

// GinHandlers contains HTTP handlers for analytics and export endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.Summarize()
		response.Handle(c, summary, err)
	}
}

// ExportHandler streams the record set as JSON (default) or CSV.
func (h *GinHandlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.DefaultQuery("format", "json") {
		case "csv":
			data, err := h.service.ExportCSV()
			if err != nil {
				response.Handle(c, nil, err)
				return
			}
			c.Header("Content-Disposition", `attachment; filename="settlements.csv"`)
			c.Data(http.StatusOK, "text/csv", data)
		case "json":
			data, err := h.service.ExportJSON()
			if err != nil {
				response.Handle(c, nil, err)
				return
			}
			c.Data(http.StatusOK, "application/json", data)
		default:
			response.BadRequest(c, "format must be json or csv")
		}
	}
}

// ImportHandler restores records from a previously exported JSON document.
func (h *GinHandlers) ImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		imported, err := h.service.ImportJSON(data)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		response.Success(c, gin.H{"imported": imported})
	}
}

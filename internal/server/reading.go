package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
)

type addReadingRequest struct {
	Kind        string     `json:"kind"`
	Value       float64    `json:"value"`
	Timestamp   *time.Time `json:"timestamp"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	Notes       string     `json:"notes"`
}

type updateReadingRequest struct {
	Value       *float64   `json:"value,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

type importReadingsRequest struct {
	Items []readingdomain.ItemInput `json:"items"`
}

func (s *Server) AddReading(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))

	var req addReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.readingSvc.Add(c.Request.Context(), readingdomain.AddRequest{
		MeterID:     meterID,
		Kind:        strings.TrimSpace(req.Kind),
		Value:       req.Value,
		Timestamp:   req.Timestamp,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Notes:       req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetReading(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))
	readingID := strings.TrimSpace(c.Param("reading_id"))

	resp, err := s.readingSvc.Get(c.Request.Context(), meterID, readingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReadings(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))

	start, err := parseTimeQuery(c, "start")
	if err != nil {
		AbortWithError(c, newValidationError("start", "invalid_period", "invalid start"))
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		AbortWithError(c, newValidationError("end", "invalid_period", "invalid end"))
		return
	}

	resp, err := s.readingSvc.List(c.Request.Context(), readingdomain.ListRequest{
		MeterID: meterID,
		Start:   start,
		End:     end,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateReading(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))
	readingID := strings.TrimSpace(c.Param("reading_id"))

	var req updateReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.readingSvc.Update(c.Request.Context(), readingdomain.UpdateRequest{
		MeterID:     meterID,
		ReadingID:   readingID,
		Value:       req.Value,
		Timestamp:   req.Timestamp,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Notes:       req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteReading(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))
	readingID := strings.TrimSpace(c.Param("reading_id"))

	resp, err := s.readingSvc.Delete(c.Request.Context(), meterID, readingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ImportReadings(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))

	var req importReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Items) == 0 {
		AbortWithError(c, newValidationError("items", "invalid_request", "items must not be empty"))
		return
	}

	resp, err := s.readingSvc.BulkImport(c.Request.Context(), readingdomain.BulkImportRequest{
		MeterID: meterID,
		Items:   req.Items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// PurgeReadings deletes every reading whose anchor instant falls inside the
// start/end query window, then rebuilds once.
func (s *Server) PurgeReadings(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))

	start, err := parseTimeQuery(c, "start")
	if err != nil || start == nil {
		AbortWithError(c, newValidationError("start", "invalid_period", "start is required"))
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil || end == nil {
		AbortWithError(c, newValidationError("end", "invalid_period", "end is required"))
		return
	}

	resp, err := s.readingSvc.DeleteInPeriod(c.Request.Context(), readingdomain.PurgeRequest{
		MeterID: meterID,
		Start:   *start,
		End:     *end,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

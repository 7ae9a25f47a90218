package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
)

type createMeterRequest struct {
	EntityID      string   `json:"entity_id"`
	Name          string   `json:"name"`
	Unit          string   `json:"unit"`
	DeviceClass   string   `json:"device_class"`
	InitialOffset *float64 `json:"initial_offset"`
}

type renameMeterRequest struct {
	Name string `json:"name"`
}

func (s *Server) CreateMeter(c *gin.Context) {
	var req createMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.meterSvc.Create(c.Request.Context(), meterdomain.CreateRequest{
		EntityID:      strings.TrimSpace(req.EntityID),
		Name:          strings.TrimSpace(req.Name),
		Unit:          strings.TrimSpace(req.Unit),
		DeviceClass:   strings.TrimSpace(req.DeviceClass),
		InitialOffset: req.InitialOffset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListMeters(c *gin.Context) {
	resp, err := s.meterSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMeterByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.meterSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenameMeter(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req renameMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.meterSvc.Rename(c.Request.Context(), meterdomain.RenameRequest{
		ID:   id,
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteMeter(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.meterSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": id}})
}

func (s *Server) GetMeterState(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.meterSvc.State(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

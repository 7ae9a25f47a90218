package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) RebuildMeterHistory(c *gin.Context) {
	meterID := strings.TrimSpace(c.Param("id"))

	resp, err := s.historySvc.Rebuild(c.Request.Context(), meterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

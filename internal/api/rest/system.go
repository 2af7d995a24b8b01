package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/gin-gonic/gin"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	if s.lm == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("NOT_READY", "Lifecycle manager not available", nil))
		return
	}
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

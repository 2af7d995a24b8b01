package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Management replies never echo client identifiers.

func (s *Server) apiVersions(c *gin.Context) {
	c.JSON(http.StatusOK, s.alpaca.Replier.Management(s.alpaca.APIVersions()))
}

func (s *Server) description(c *gin.Context) {
	c.JSON(http.StatusOK, s.alpaca.Replier.Management(s.alpaca.Description()))
}

func (s *Server) configuredDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.alpaca.Replier.Management(s.alpaca.ConfiguredDevices()))
}

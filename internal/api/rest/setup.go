package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenAlpacaCore/internal/config"
	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupForm is the body of POST /setup.
type SetupForm struct {
	ServerPort    int `form:"srvport" binding:"required,min=1,max=65535"`
	DiscoveryPort int `form:"discport" binding:"required,min=1,max=65535"`
}

type setupState struct {
	ServerPort        int                      `json:"server_port"`
	DiscoveryPort     int                      `json:"discovery_port"`
	Description       types.ServerDescription  `json:"description"`
	ConfiguredDevices []types.ConfiguredDevice `json:"configured_devices"`
}

func (s *Server) index(c *gin.Context) {
	c.Redirect(http.StatusFound, "/setup")
}

func (s *Server) getSetup(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentSetup())
}

// postSetup persists new ports. Listeners pick them up on the next start.
func (s *Server) postSetup(c *gin.Context) {
	var form SetupForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INVALID_SETUP", "Invalid setup form", err.Error()))
		return
	}

	if err := config.SaveSetup(s.setupFile, form.ServerPort, form.DiscoveryPort); err != nil {
		s.logger.Error("Failed to save setup", zap.String("file", s.setupFile), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SETUP_SAVE_FAILED", "Failed to save setup", nil))
		return
	}

	s.alpaca.SetAlpacaPort(form.ServerPort)
	s.alpaca.SetDiscoveryPort(form.DiscoveryPort)

	s.logger.Info("Setup saved",
		zap.Int("server_port", form.ServerPort),
		zap.Int("discovery_port", form.DiscoveryPort))

	c.JSON(http.StatusOK, s.currentSetup())
}

func (s *Server) currentSetup() setupState {
	return setupState{
		ServerPort:        s.alpaca.AlpacaPort(),
		DiscoveryPort:     s.alpaca.DiscoveryPort(),
		Description:       s.alpaca.Description(),
		ConfiguredDevices: s.alpaca.ConfiguredDevices(),
	}
}

// deviceSetup serves the per-device setup page.
func (s *Server) deviceSetup(c *gin.Context) {
	deviceType, err := types.ParseDeviceType(c.Param("type"))
	if err != nil {
		c.String(http.StatusBadRequest, "Device type %s not implemented", c.Param("type"))
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid device number %s", c.Param("number"))
		return
	}

	device, _, err := s.alpaca.Registry.Lookup(deviceType, number)
	if errors.Is(err, devices.ErrNotInstalled) {
		c.String(http.StatusBadRequest, "Device %s %d not installed", deviceType, number)
		return
	}
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.String(http.StatusOK, device.SetupPage())
}

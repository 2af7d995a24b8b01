package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// deviceCall serves GET|PUT /api/v1/:type/:number/:method.
func (s *Server) deviceCall(c *gin.Context) {
	verb := c.Request.Method

	if verb == http.MethodPut {
		if err := c.Request.ParseForm(); err != nil {
			c.String(http.StatusBadRequest, "Invalid form body")
			return
		}
	}
	params := protocol.ParamsFor(verb, c.Request.URL.Query(), c.Request.PostForm)

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 0 {
		c.String(http.StatusBadRequest, "Invalid device number %s", c.Param("number"))
		return
	}

	ids, err := protocol.ParseClientIDs(params)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	req := protocol.NewRequest(c.Request.Context(), verb, c.Param("type"), number, c.Param("method"), params)
	req.ClientIDs = ids

	reply, err := s.alpaca.Dispatcher.Dispatch(req)
	if err != nil {
		if terr, ok := protocol.AsTransportError(err); ok {
			c.String(http.StatusBadRequest, terr.Error())
			return
		}
		s.logger.Error("Device call failed",
			zap.String("type", req.DeviceType),
			zap.Int("number", number),
			zap.String("method", req.Method),
			zap.Error(err))
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, reply)
}

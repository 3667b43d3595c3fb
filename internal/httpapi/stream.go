package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/vocalq/outbound/pkg/telephony"
)

// stream upgrades the carrier media WebSocket and hands it to the bridge for
// the lifetime of the call.
func (s *Server) stream(c *gin.Context) {
	if s.cfg.Bridge == nil {
		errorDetail(c, http.StatusServiceUnavailable, "voice bridge not configured")
		return
	}

	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// The carrier connects from its own infrastructure, not a browser.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.cfg.Logger.Error("media stream upgrade failed", "error", err)
		return
	}

	conn := telephony.NewStreamConn(ws)
	defer conn.Close()

	if err := s.cfg.Bridge.Run(c.Request.Context(), conn); err != nil {
		s.cfg.Logger.Error("call bridge failed", "error", err)
	}
}

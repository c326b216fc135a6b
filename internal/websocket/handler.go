package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler upgrades visualization requests and registers the clients
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS handles websocket requests from clients
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.String("namespace", "websocket"), zap.Error(err))
		return nil
	}

	client := NewClient(h.hub.ctx, h.hub, conn, uuid.NewString())
	if err := h.hub.join(client); err != nil {
		client.Close()
		conn.Close()
		return nil
	}

	go client.WritePump()
	go client.ReadPump()

	zap.L().Info("visualization client connected",
		zap.String("namespace", "websocket"),
		zap.String("client", client.id),
		zap.String("remote", c.RealIP()))
	return nil
}

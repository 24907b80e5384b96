package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/table-booking/kds"
	"github.com/yeremiapane/table-booking/middlewares"
)

type FloorController struct {
	Hub      *kds.Hub
	upgrader websocket.Upgrader
}

func NewFloorController(hub *kds.Hub, allowedOrigin string) *FloorController {
	return &FloorController{
		Hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin == "" || allowedOrigin == "*" || r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// FloorHandler -> staff websocket feed of reservation events
func (fc *FloorController) FloorHandler(c *gin.Context) {
	_, role := middlewares.CurrentUser(c)
	if !middlewares.IsStaff(role) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	ws, err := fc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	fc.Hub.Register(ws, role)

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	fc.Hub.Unregister(ws)
}

package progress

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// RegisterRoutes registers the realtime push endpoint.
func RegisterRoutes(e *echo.Echo, hub *Hub) {
	e.GET("/progress/ws", handleWebsocket(hub))
}

func handleWebsocket(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c.Request().Context())

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade already wrote the error response.
			return nil
		}

		hub.Add(conn)
		log.Debug("progress client connected")

		// Block draining the connection; clients never send anything
		// meaningful, but reads detect disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(conn)
		log.Debug("progress client disconnected")
		return nil
	}
}

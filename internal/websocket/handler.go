package websocket

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TokenParser validates a bearer token and returns the caller's user
// id and admin flag. Wired to the auth middleware so websocket clients
// authenticate the same way the REST API does.
type TokenParser interface {
	ParseToken(token string) (uint, bool, error)
}

type WebSocketHandler struct {
	hub    *Hub
	tokens TokenParser
}

func NewWebSocketHandler(tokens TokenParser) *WebSocketHandler {
	hub := NewHub()
	go hub.Run()

	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the connection. An invalid or missing token
// still connects but receives nothing: broadcasts are scoped to admins
// and to the authenticated user.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	var userID uint
	var isAdmin bool

	if tokenString := c.Query("token"); tokenString != "" {
		if id, admin, err := h.tokens.ParseToken(tokenString); err == nil {
			userID = id
			isAdmin = admin
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		isAdmin: isAdmin,
	}

	go client.HandleClientConnection()
}

func (h *WebSocketHandler) GetHub() *Hub {
	return h.hub
}

package routes

import (
	"cottage/chat"

	"github.com/gin-gonic/gin"
)

func SetupWebSocketRoutes(r *gin.Engine, relay *chat.Relay) {
	// Global chat relay endpoint
	r.GET("/ws/chat", relay.HandleSocket)
}

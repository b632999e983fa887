package routes

import (
	"cottage/auth"

	"github.com/gin-gonic/gin"
)

func SetupAPIRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/register", auth.HandleRegister)
		api.POST("/login", auth.HandleLogin)
		api.POST("/logout", auth.HandleLogout)
	}
}

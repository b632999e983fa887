package routes

import (
	"os"

	"cottage/auth"
	"cottage/forum"
	"cottage/resume"

	"github.com/gin-gonic/gin"
)

func SetupPageRoutes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.HTML(200, "index.html", gin.H{
			"Title": "Cottage",
			"User":  auth.CurrentUser(c),
		})
	})

	r.GET("/about", func(c *gin.Context) {
		c.HTML(200, "about.html", gin.H{
			"Title": "About",
			"User":  auth.CurrentUser(c),
		})
	})

	r.GET("/teapot", func(c *gin.Context) {
		c.HTML(418, "teapot.html", gin.H{"Title": "I'm a teapot"})
	})

	r.GET("/login", func(c *gin.Context) {
		c.HTML(200, "login.html", gin.H{"Title": "Login", "Next": c.Query("next")})
	})

	r.GET("/register", func(c *gin.Context) {
		c.HTML(200, "register.html", gin.H{"Title": "Register"})
	})

	r.GET("/logout", auth.HandleLogout)

	r.GET("/chat", func(c *gin.Context) {
		user := auth.CurrentUser(c)
		ctx := gin.H{
			"Title":            "Chat",
			"TurnstileSiteKey": os.Getenv("TURNSTILE_SITE_KEY"),
		}
		if user != nil {
			ctx["MeName"] = user.DisplayName()
			ctx["MeAvatarURL"] = auth.AvatarURL(user.ID)
		}
		c.HTML(200, "chat.html", ctx)
	})

	// OAuth
	r.GET("/auth/google/login", auth.HandleGoogleLogin)
	r.GET("/auth/google/callback", auth.HandleGoogleCallback)
	r.GET("/auth/github/login", auth.HandleGithubLogin)
	r.GET("/auth/github/callback", auth.HandleGithubCallback)

	// Account
	r.GET("/account", auth.HandleAccountPage)
	r.POST("/account/profile", auth.RequireUser(), auth.HandleUpdateProfile)
	r.POST("/account/password", auth.RequireUser(), auth.HandleChangePassword)
	r.POST("/account/avatar", auth.RequireUser(), auth.HandleUploadAvatar)

	// Forum
	r.GET("/forum", forum.HandleIndex)
	r.GET("/forum/threads", forum.HandleThreads)
	r.GET("/forum/new", forum.HandleNewPage)
	r.POST("/forum/new", forum.HandleNewSubmit)
	r.GET("/forum/thread/:id", forum.HandleThreadView)
	r.POST("/forum/thread/:id/reply", forum.HandleReply)
	r.GET("/forum/thread/:id/edit", forum.HandleThreadEditPage)
	r.POST("/forum/thread/:id/edit", forum.HandleThreadEditSubmit)
	r.GET("/forum/reply/:id/edit", forum.HandleReplyEditPage)
	r.POST("/forum/reply/:id/edit", forum.HandleReplyEditSubmit)
	r.POST("/forum/thread/:id/vote", forum.HandleThreadVote)
	r.POST("/forum/reply/:id/vote", forum.HandleReplyVote)
	r.POST("/forum/thread/:id/react", forum.HandleReact("thread"))
	r.POST("/forum/reply/:id/react", forum.HandleReact("reply"))

	// Resume
	r.GET("/resume", resume.HandleView)
	r.GET("/resume/edit", resume.HandleEditPage)
	r.POST("/resume/edit", resume.HandleEditSubmit)
}

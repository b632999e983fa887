package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cottage/auth"
	"cottage/chat"
	"cottage/db"
	"cottage/main/routes"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimitErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(429, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

func main() {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	dbName := os.Getenv("DB_FILE")
	if dbName == "" {
		dbName = "./cottage.db"
	}
	staticDir := os.Getenv("STATIC_DIR")
	if staticDir == "" {
		staticDir = "./static"
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	var err error
	db.DB, err = db.InitSQLite(dbName)
	if err != nil {
		log.Fatal("Error opening database:", err)
	}
	defer db.CloseDB(db.DB)
	if err := db.EnsureSchema(); err != nil {
		log.Fatal("Error ensuring schema:", err)
	}
	seedDefaults()
	auth.PromoteOwner()

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatal("Invalid REDIS_URL:", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	store := chat.NewStore(rdb)
	relay := &chat.Relay{
		Broker:  store,
		History: store,
		Limiter: chat.NewLimiter(store),
		Identify: func(r *http.Request) (chat.Identity, bool) {
			user := auth.UserFromRequest(r)
			if user == nil {
				return chat.Identity{}, false
			}
			return chat.Identity{UserID: user.ID, Name: user.DisplayName()}, true
		},
		AvatarURL: auth.AvatarURL,
		Verify:    chat.VerifyTurnstile,
	}

	r := gin.Default()

	rlStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Second, Limit: 100})
	r.Use(ratelimit.RateLimiter(rlStore, &ratelimit.Options{ErrorHandler: rateLimitErrorHandler, KeyFunc: keyFunc}))
	r.Use(cors.Default())
	r.Use(auth.AuthMiddleware())

	r.Static("/static", staticDir)
	r.LoadHTMLGlob("templates/*")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	routes.SetupPageRoutes(r)
	routes.SetupAPIRoutes(r)
	routes.SetupWebSocketRoutes(r, relay)

	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Starting cottage on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}

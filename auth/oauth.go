package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cottage/db"
	"cottage/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
	oauthgoogle "golang.org/x/oauth2/google"
)

const stateCookieName = "oauth_state"

func googleConfig() *oauth2.Config {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     oauthgoogle.Endpoint,
	}
}

func githubConfig() *oauth2.Config {
	clientID := os.Getenv("GITHUB_CLIENT_ID")
	clientSecret := os.Getenv("GITHUB_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
		Scopes:       []string{"user:email"},
		Endpoint:     oauthgithub.Endpoint,
	}
}

func beginOAuth(c *gin.Context, config *oauth2.Config) {
	if config == nil {
		c.JSON(404, gin.H{"error": "Provider not configured"})
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, 600, "/", "", false, true)
	c.Redirect(http.StatusFound, config.AuthCodeURL(state))
}

func exchangeOAuth(c *gin.Context, config *oauth2.Config) (*http.Client, bool) {
	if config == nil {
		c.JSON(404, gin.H{"error": "Provider not configured"})
		return nil, false
	}
	state, err := c.Cookie(stateCookieName)
	if err != nil || state == "" || state != c.Query("state") {
		c.JSON(400, gin.H{"error": "State mismatch"})
		return nil, false
	}
	c.SetCookie(stateCookieName, "", -1, "/", "", false, true)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	token, err := config.Exchange(ctx, c.Query("code"))
	if err != nil {
		log.Println("auth: oauth code exchange failed:", err)
		c.JSON(400, gin.H{"error": "Code exchange failed"})
		return nil, false
	}
	return config.Client(c.Request.Context(), token), true
}

func HandleGoogleLogin(c *gin.Context) {
	beginOAuth(c, googleConfig())
}

func HandleGoogleCallback(c *gin.Context) {
	client, ok := exchangeOAuth(c, googleConfig())
	if !ok {
		return
	}

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		c.JSON(502, gin.H{"error": "Failed to fetch profile"})
		return
	}
	defer resp.Body.Close()
	var profile struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil || profile.Email == "" {
		c.JSON(502, gin.H{"error": "Invalid profile response"})
		return
	}

	finishOAuth(c, "google", profile.ID, profile.Email, profile.Name)
}

func HandleGithubLogin(c *gin.Context) {
	beginOAuth(c, githubConfig())
}

func HandleGithubCallback(c *gin.Context) {
	client, ok := exchangeOAuth(c, githubConfig())
	if !ok {
		return
	}

	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		c.JSON(502, gin.H{"error": "Failed to fetch profile"})
		return
	}
	defer resp.Body.Close()
	var profile struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil || profile.ID == 0 {
		c.JSON(502, gin.H{"error": "Invalid profile response"})
		return
	}

	email := profile.Email
	if email == "" {
		email = fetchGithubPrimaryEmail(client)
	}
	if email == "" {
		c.JSON(400, gin.H{"error": "GitHub account has no accessible email"})
		return
	}
	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	finishOAuth(c, "github", strconv.FormatInt(profile.ID, 10), email, name)
}

func fetchGithubPrimaryEmail(client *http.Client) string {
	resp, err := client.Get("https://api.github.com/user/emails")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

// finishOAuth upserts the federated identity onto a user row and issues the
// same cookie local login does.
func finishOAuth(c *gin.Context, provider, providerSub, email, name string) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := loadUserByEmail(email)
	if err == sql.ErrNoRows {
		query := `INSERT INTO users (email, name, provider, provider_sub) VALUES (?, ?, ?, ?)`
		result, err := db.DB.Exec(query, email, sql.NullString{String: name, Valid: name != ""}, provider, providerSub)
		if err != nil {
			log.Println("auth: oauth user insert failed:", err)
			c.JSON(500, gin.H{"error": "Database error inserting data"})
			return
		}
		userID64, _ := result.LastInsertId()
		user = &types.User{ID: int(userID64)}
	} else if err != nil {
		c.JSON(500, gin.H{"error": "Error extracting data"})
		return
	} else if user.Provider != provider || !user.ProviderSub.Valid {
		// Existing local account logging in via a provider for the first
		// time; remember the federation link.
		if _, err := db.DB.Exec(`UPDATE users SET provider = ?, provider_sub = ? WHERE id = ?`, provider, providerSub, user.ID); err != nil {
			log.Println("auth: provider link update failed:", err)
		}
	}

	lifetime := tokenLifetime()
	token, err := generateJWT(user.ID, lifetime)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to generate token"})
		return
	}
	setAuthCookie(c, token, lifetime)
	c.Redirect(http.StatusFound, "/")
}

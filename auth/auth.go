package auth

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cottage/db"
	"cottage/types"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const CookieName = "access_token"

func tokenLifetime() time.Duration {
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return 60 * time.Minute
}

func generateJWT(userID int, expiration time.Duration) (string, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	claims := jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"exp": time.Now().Add(expiration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func decodeJWT(tokenString string) (int, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return 0, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	userID, err := strconv.Atoi(sub)
	if err != nil {
		return 0, fmt.Errorf("invalid subject claim")
	}
	return userID, nil
}

func hashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

func loadUserByID(userID int) (*types.User, error) {
	var user types.User
	query := `SELECT id, email, name, password_hash, provider, provider_sub, role, created_at FROM users WHERE id = ?`
	err := db.DB.QueryRow(query, userID).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Provider, &user.ProviderSub, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func loadUserByEmail(email string) (*types.User, error) {
	var user types.User
	query := `SELECT id, email, name, password_hash, provider, provider_sub, role, created_at FROM users WHERE email = ?`
	err := db.DB.QueryRow(query, email).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Provider, &user.ProviderSub, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserFromRequest resolves the identity cookie to a user row. Returns nil
// for "no identity" (missing/expired cookie, unknown user); only the
// transport to the database can fail loudly, and callers treat that as no
// identity too.
func UserFromRequest(r *http.Request) *types.User {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	userID, err := decodeJWT(cookie.Value)
	if err != nil {
		return nil
	}
	user, err := loadUserByID(userID)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Println("auth: user lookup failed:", err)
		}
		return nil
	}
	return user
}

// AuthMiddleware resolves the cookie on every request without requiring
// it. Pages read the user from the context to adjust what they show.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := UserFromRequest(c.Request); user != nil {
			c.Set("user", user)
			c.Set("userID", user.ID)
			c.Set("userName", user.DisplayName())
			c.Set("userRole", user.Role)
			if url := AvatarURL(user.ID); url != "" {
				c.Set("avatarURL", url)
			}
		}
		c.Next()
	}
}

// RequireUser aborts with 401 when no identity is present. Must run after
// AuthMiddleware.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("user"); !exists {
			c.JSON(401, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser pulls the resolved user out of the gin context.
func CurrentUser(c *gin.Context) *types.User {
	raw, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := raw.(*types.User)
	if !ok {
		return nil
	}
	return user
}

func setAuthCookie(c *gin.Context, token string, lifetime time.Duration) {
	secure := os.Getenv("JWT_COOKIE_SECURE") == "true"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(lifetime/time.Second), "/", "", secure, true)
}

func HandleRegister(c *gin.Context) {
	var json struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.BindJSON(&json); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request data"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(json.Email))
	if email == "" || len(json.Password) < 8 {
		c.JSON(400, gin.H{"error": "Email and a password of at least 8 characters are required"})
		return
	}

	hashedPassword, err := hashPassword(json.Password)
	if err != nil {
		log.Println("auth: error hashing password:", err)
		c.JSON(500, gin.H{"error": "Failed to hash password"})
		return
	}

	query := `INSERT INTO users (email, name, password_hash, provider) VALUES (?, ?, ?, 'local')`
	result, err := db.DB.Exec(query, email, sql.NullString{String: strings.TrimSpace(json.Name), Valid: json.Name != ""}, hashedPassword)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			c.JSON(400, gin.H{"error": "Email is already taken"})
			return
		}
		c.JSON(500, gin.H{"error": "Database error inserting data"})
		return
	}

	userID64, _ := result.LastInsertId()
	lifetime := tokenLifetime()
	token, err := generateJWT(int(userID64), lifetime)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to generate token"})
		return
	}
	setAuthCookie(c, token, lifetime)
	c.JSON(201, gin.H{"message": "Successfully registered"})
}

func HandleLogin(c *gin.Context) {
	var json struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.BindJSON(&json); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request data"})
		return
	}

	user, err := loadUserByEmail(strings.ToLower(strings.TrimSpace(json.Email)))
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(400, gin.H{"error": "Incorrect email or password"})
		} else {
			c.JSON(500, gin.H{"error": "Error extracting data"})
		}
		return
	}
	if !user.PasswordHash.Valid {
		// OAuth-only account; no local password to check.
		c.JSON(400, gin.H{"error": "Incorrect email or password"})
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(json.Password))
	if err != nil {
		c.JSON(400, gin.H{"error": "Incorrect email or password"})
		return
	}

	lifetime := tokenLifetime()
	token, err := generateJWT(user.ID, lifetime)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to generate token"})
		return
	}
	setAuthCookie(c, token, lifetime)
	c.JSON(200, gin.H{"message": "Logged in"})
}

func HandleLogout(c *gin.Context) {
	setAuthCookie(c, "", -time.Second)
	c.Redirect(http.StatusFound, "/")
}

// PromoteOwner assigns the owner role to the OWNER_EMAIL account when it
// exists. Called at startup, best-effort.
func PromoteOwner() {
	ownerEmail := strings.ToLower(strings.TrimSpace(os.Getenv("OWNER_EMAIL")))
	if ownerEmail == "" {
		return
	}
	result, err := db.DB.Exec(`UPDATE users SET role = 'owner' WHERE email = ? AND role != 'owner'`, ownerEmail)
	if err != nil {
		log.Println("auth: owner promotion failed:", err)
		return
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Println("auth: promoted owner:", ownerEmail)
	}
}

package auth

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cottage/db"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const maxAvatarBytes = 5 << 20

func HandleAccountPage(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login?next=/account")
		return
	}
	c.HTML(200, "account.html", gin.H{
		"Title":     "Account settings",
		"User":      user,
		"AvatarURL": AvatarURL(user.ID),
	})
}

func HandleUpdateProfile(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(401, gin.H{"error": "Not authenticated"})
		return
	}
	name := strings.TrimSpace(c.PostForm("name"))
	if len([]rune(name)) > 120 {
		c.JSON(400, gin.H{"error": "Name must be 120 characters or fewer"})
		return
	}
	_, err := db.DB.Exec(`UPDATE users SET name = ? WHERE id = ?`, sql.NullString{String: name, Valid: name != ""}, user.ID)
	if err != nil {
		c.JSON(500, gin.H{"error": "Database error updating profile"})
		return
	}
	c.Redirect(http.StatusFound, "/account")
}

func HandleChangePassword(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(401, gin.H{"error": "Not authenticated"})
		return
	}
	current := c.PostForm("current_password")
	next := c.PostForm("new_password")

	if !user.PasswordHash.Valid {
		c.JSON(400, gin.H{"error": "This account signs in through an external provider"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(current)); err != nil {
		c.JSON(400, gin.H{"error": "Current password is incorrect"})
		return
	}
	if len(next) < 8 {
		c.JSON(400, gin.H{"error": "New password must be at least 8 characters"})
		return
	}

	hashed, err := hashPassword(next)
	if err != nil {
		log.Println("auth: error hashing password:", err)
		c.JSON(500, gin.H{"error": "Failed to hash password"})
		return
	}
	if _, err := db.DB.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, hashed, user.ID); err != nil {
		c.JSON(500, gin.H{"error": "Database error updating password"})
		return
	}
	c.Redirect(http.StatusFound, "/account")
}

var avatarContentTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// HandleUploadAvatar stores the raw upload under the static avatars dir.
// Transcoding/resizing is an external concern; only type and size are
// checked here.
func HandleUploadAvatar(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(401, gin.H{"error": "Not authenticated"})
		return
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(400, gin.H{"error": "Avatar file is required"})
		return
	}
	if fileHeader.Size > maxAvatarBytes {
		c.JSON(400, gin.H{"error": "Image must be 5MB or smaller"})
		return
	}
	ext, ok := avatarContentTypes[strings.ToLower(fileHeader.Header.Get("Content-Type"))]
	if !ok {
		c.JSON(400, gin.H{"error": "Avatar must be a PNG, JPEG, or WebP image"})
		return
	}

	dir := avatarDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(500, gin.H{"error": "Failed to store avatar"})
		return
	}
	// Drop any previously uploaded avatar in another format so lookup stays
	// unambiguous.
	for _, old := range avatarExtensions {
		if old == ext {
			continue
		}
		os.Remove(filepath.Join(dir, fmt.Sprintf("%d.%s", user.ID, old)))
	}

	dest := filepath.Join(dir, fmt.Sprintf("%d.%s", user.ID, ext))
	if err := c.SaveUploadedFile(fileHeader, dest); err != nil {
		log.Println("auth: avatar save failed:", err)
		c.JSON(500, gin.H{"error": "Failed to store avatar"})
		return
	}
	c.Redirect(http.StatusFound, "/account")
}

package auth

import (
	"fmt"
	"os"
	"path/filepath"
)

// Avatars live under <static dir>/avatars as <user id>.<ext>.
func avatarDir() string {
	staticDir := os.Getenv("STATIC_DIR")
	if staticDir == "" {
		staticDir = "./static"
	}
	return filepath.Join(staticDir, "avatars")
}

var avatarExtensions = []string{"webp", "png", "jpg", "jpeg"}

func findAvatarFile(userID int) string {
	for _, ext := range avatarExtensions {
		p := filepath.Join(avatarDir(), fmt.Sprintf("%d.%s", userID, ext))
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// AvatarURL returns the public URL for a user's avatar, or "" when none is
// uploaded. The mtime query parameter busts browser caches after a
// re-upload.
func AvatarURL(userID int) string {
	if userID == 0 {
		return ""
	}
	p := findAvatarFile(userID)
	if p == "" {
		return ""
	}
	info, err := os.Stat(p)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("/static/avatars/%s?v=%d", filepath.Base(p), info.ModTime().Unix())
}

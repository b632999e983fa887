package resume

import (
	"database/sql"
	"net/http"
	"strings"

	"cottage/auth"
	"cottage/db"
	"cottage/markdown"
	"cottage/types"

	"github.com/gin-gonic/gin"
)

func loadResume() (*types.Resume, error) {
	var r types.Resume
	err := db.DB.QueryRow(`SELECT id, content, updated_at, updated_by FROM resume LIMIT 1`).
		Scan(&r.ID, &r.Content, &r.UpdatedAt, &r.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func HandleView(c *gin.Context) {
	content := ""
	r, err := loadResume()
	if err != nil && err != sql.ErrNoRows {
		c.Status(500)
		return
	}
	if r != nil {
		content = r.Content
	}
	c.HTML(200, "resume.html", gin.H{
		"Title":      "Resume",
		"Resume":     r,
		"ResumeHTML": markdown.RenderWithImages(content),
	})
}

func requireOwner(c *gin.Context) bool {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login?next=/resume/edit")
		return false
	}
	if user.Role != "owner" {
		c.HTML(403, "error.html", gin.H{
			"Title":   "403 Error",
			"Code":    403,
			"Message": "Only the site owner can edit the resume.",
		})
		return false
	}
	return true
}

func HandleEditPage(c *gin.Context) {
	if !requireOwner(c) {
		return
	}
	r, err := loadResume()
	if err != nil && err != sql.ErrNoRows {
		c.Status(500)
		return
	}
	c.HTML(200, "resume_edit.html", gin.H{"Title": "Edit Resume", "Resume": r})
}

func HandleEditSubmit(c *gin.Context) {
	if !requireOwner(c) {
		return
	}
	user := auth.CurrentUser(c)
	content := strings.TrimSpace(c.PostForm("content"))

	r, err := loadResume()
	switch {
	case err == sql.ErrNoRows:
		_, err = db.DB.Exec(`INSERT INTO resume (content, updated_by) VALUES (?, ?)`, content, user.ID)
	case err != nil:
		c.Status(500)
		return
	default:
		_, err = db.DB.Exec(`UPDATE resume SET content = ?, updated_at = datetime('now'), updated_by = ? WHERE id = ?`, content, user.ID, r.ID)
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "Database error updating resume"})
		return
	}
	c.Redirect(http.StatusFound, "/resume")
}

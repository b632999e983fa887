package forum

import (
	"net/http"
	"strconv"
	"strings"

	"cottage/auth"
	"cottage/db"
	"cottage/types"

	"github.com/gin-gonic/gin"
)

// Edit endpoints are author-only; anyone else is bounced back to the
// thread.

func authorOwnsThread(c *gin.Context) (*types.Thread, int, bool) {
	user := auth.CurrentUser(c)
	threadID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return nil, 0, false
	}
	if user == nil {
		c.Redirect(http.StatusFound, "/login?next=/forum/thread/"+c.Param("id"))
		return nil, 0, false
	}
	t, err := loadThread(threadID)
	if err != nil || !t.UserID.Valid || int(t.UserID.Int64) != user.ID {
		c.Redirect(http.StatusFound, "/forum/thread/"+c.Param("id"))
		return nil, 0, false
	}
	return t, threadID, true
}

func HandleThreadEditPage(c *gin.Context) {
	t, _, ok := authorOwnsThread(c)
	if !ok {
		return
	}
	c.HTML(200, "forum_thread_edit.html", gin.H{"Title": "Edit: " + t.Title, "Thread": t})
}

func HandleThreadEditSubmit(c *gin.Context) {
	_, threadID, ok := authorOwnsThread(c)
	if !ok {
		return
	}
	title := strings.TrimSpace(c.PostForm("title"))
	body := strings.TrimSpace(c.PostForm("body"))
	if _, err := db.DB.Exec(`UPDATE threads SET title = ?, body = ? WHERE id = ?`, title, body, threadID); err != nil {
		c.JSON(500, gin.H{"error": "Database error updating thread"})
		return
	}
	c.Redirect(http.StatusFound, "/forum/thread/"+c.Param("id"))
}

func authorOwnsReply(c *gin.Context) (*types.Reply, bool) {
	user := auth.CurrentUser(c)
	replyID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return nil, false
	}
	if user == nil {
		c.Redirect(http.StatusFound, "/login")
		return nil, false
	}
	var r types.Reply
	err = db.DB.QueryRow(`SELECT id, thread_id, user_id, body, created_at FROM replies WHERE id = ?`, replyID).
		Scan(&r.ID, &r.ThreadID, &r.UserID, &r.Body, &r.CreatedAt)
	if err != nil || !r.UserID.Valid || int(r.UserID.Int64) != user.ID {
		c.Redirect(http.StatusFound, "/forum")
		return nil, false
	}
	return &r, true
}

func HandleReplyEditPage(c *gin.Context) {
	r, ok := authorOwnsReply(c)
	if !ok {
		return
	}
	c.HTML(200, "forum_reply_edit.html", gin.H{"Title": "Edit reply", "Reply": r})
}

func HandleReplyEditSubmit(c *gin.Context) {
	r, ok := authorOwnsReply(c)
	if !ok {
		return
	}
	body := strings.TrimSpace(c.PostForm("body"))
	if _, err := db.DB.Exec(`UPDATE replies SET body = ? WHERE id = ?`, body, r.ID); err != nil {
		c.JSON(500, gin.H{"error": "Database error updating reply"})
		return
	}
	c.Redirect(http.StatusFound, "/forum/thread/"+strconv.Itoa(r.ThreadID)+"#reply-"+c.Param("id"))
}

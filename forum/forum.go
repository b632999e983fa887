package forum

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"cottage/auth"
	"cottage/chat"
	"cottage/db"
	"cottage/markdown"
	"cottage/types"

	"github.com/gin-gonic/gin"
)

const threadPageSize = 20

type threadListing struct {
	ID           int
	Title        string
	Excerpt      string
	RepliesCount int
}

func loadCategories() ([]types.Category, error) {
	rows, err := db.DB.Query(`SELECT id, name, slug, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []types.Category
	for rows.Next() {
		var cat types.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.CreatedAt); err != nil {
			log.Println("forum: error scanning category:", err)
			continue
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

func HandleIndex(c *gin.Context) {
	categories, err := loadCategories()
	if err != nil {
		c.Status(500)
		return
	}
	c.HTML(200, "forum_index.html", gin.H{
		"Title":      "Forum",
		"Cat":        c.Query("cat"),
		"Categories": categories,
		"User":       auth.CurrentUser(c),
	})
}

// HandleThreads renders the latest-threads partial, optionally filtered by
// category slug.
func HandleThreads(c *gin.Context) {
	cat := c.Query("cat")

	query := `SELECT t.id, t.title, t.body, COUNT(r.id)
		FROM threads t
		LEFT JOIN replies r ON r.thread_id = t.id`
	args := []interface{}{}
	if cat != "" {
		query += `
		JOIN thread_categories tc ON tc.thread_id = t.id
		JOIN categories c ON c.id = tc.category_id AND c.slug = ?`
		args = append(args, cat)
	}
	query += `
		GROUP BY t.id, t.title, t.body
		ORDER BY t.created_at DESC
		LIMIT ?`
	args = append(args, threadPageSize)

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		c.Status(500)
		return
	}
	defer rows.Close()

	var threads []threadListing
	for rows.Next() {
		var listing threadListing
		var body string
		if err := rows.Scan(&listing.ID, &listing.Title, &body, &listing.RepliesCount); err != nil {
			log.Println("forum: error scanning thread:", err)
			continue
		}
		listing.Excerpt = excerpt(body, 160)
		threads = append(threads, listing)
	}

	c.HTML(200, "_threads.html", gin.H{"Threads": threads})
}

func excerpt(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}

func HandleNewPage(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login?next=/forum/new")
		return
	}
	categories, err := loadCategories()
	if err != nil {
		c.Status(500)
		return
	}
	c.HTML(200, "forum_new.html", gin.H{
		"Title":            "New Thread",
		"TurnstileSiteKey": os.Getenv("TURNSTILE_SITE_KEY"),
		"Categories":       categories,
	})
}

func HandleNewSubmit(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login?next=/forum/new")
		return
	}

	if !chat.VerifyTurnstile(c.Request.Context(), c.PostForm("cf-turnstile-response"), c.ClientIP()) {
		c.HTML(400, "forum_new.html", gin.H{
			"Title":            "New Thread",
			"Error":            "Failed challenge. Please try again.",
			"TurnstileSiteKey": os.Getenv("TURNSTILE_SITE_KEY"),
		})
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	body := strings.TrimSpace(c.PostForm("body"))
	if title == "" || body == "" {
		c.HTML(400, "forum_new.html", gin.H{
			"Title":            "New Thread",
			"Error":            "Title and body are required.",
			"TurnstileSiteKey": os.Getenv("TURNSTILE_SITE_KEY"),
		})
		return
	}

	result, err := db.DB.Exec(`INSERT INTO threads (title, body, user_id) VALUES (?, ?, ?)`, title, body, user.ID)
	if err != nil {
		c.JSON(500, gin.H{"error": "Database error inserting thread"})
		return
	}
	threadID64, _ := result.LastInsertId()

	if slug := c.PostForm("category"); slug != "" {
		var categoryID int
		err := db.DB.QueryRow(`SELECT id FROM categories WHERE slug = ?`, slug).Scan(&categoryID)
		if err == nil {
			if _, err := db.DB.Exec(`INSERT INTO thread_categories (thread_id, category_id) VALUES (?, ?)`, threadID64, categoryID); err != nil {
				log.Println("forum: error attaching category:", err)
			}
		}
	}

	c.Redirect(http.StatusFound, "/forum")
}

func loadThread(threadID int) (*types.Thread, error) {
	var t types.Thread
	query := `SELECT id, title, body, user_id, created_at FROM threads WHERE id = ?`
	err := db.DB.QueryRow(query, threadID).Scan(&t.ID, &t.Title, &t.Body, &t.UserID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func HandleThreadView(c *gin.Context) {
	threadID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return
	}
	t, err := loadThread(threadID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.HTML(404, "error.html", gin.H{"Title": "404 Error", "Code": 404, "Message": "Thread not found"})
		} else {
			c.Status(500)
		}
		return
	}

	var category *types.Category
	var cat types.Category
	err = db.DB.QueryRow(`SELECT c.id, c.name, c.slug, c.created_at
		FROM categories c
		JOIN thread_categories tc ON tc.category_id = c.id
		WHERE tc.thread_id = ?`, threadID).Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.CreatedAt)
	if err == nil {
		category = &cat
	}

	rows, err := db.DB.Query(`SELECT id, thread_id, user_id, body, created_at FROM replies WHERE thread_id = ? ORDER BY created_at`, threadID)
	if err != nil {
		c.Status(500)
		return
	}
	defer rows.Close()

	type replyView struct {
		types.Reply
		BodyHTML  interface{}
		Score     int
		Reactions map[string]int
	}
	var replies []replyView
	var replyIDs []int
	for rows.Next() {
		var r types.Reply
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.UserID, &r.Body, &r.CreatedAt); err != nil {
			log.Println("forum: error scanning reply:", err)
			continue
		}
		replies = append(replies, replyView{Reply: r, BodyHTML: markdown.Render(r.Body)})
		replyIDs = append(replyIDs, r.ID)
	}

	threadScore := voteScore("thread", threadID)
	replyScores := voteScores("reply", replyIDs)
	threadReactions := reactionCounts("thread", threadID)
	replyReactions := reactionCountsBulk("reply", replyIDs)
	for i := range replies {
		replies[i].Score = replyScores[replies[i].ID]
		replies[i].Reactions = replyReactions[replies[i].ID]
	}

	c.HTML(200, "forum_thread.html", gin.H{
		"Title":           t.Title,
		"Thread":          t,
		"Category":        category,
		"ThreadHTML":      markdown.Render(t.Body),
		"Replies":         replies,
		"ThreadScore":     threadScore,
		"ThreadReactions": threadReactions,
		"User":            auth.CurrentUser(c),
	})
}

func HandleReply(c *gin.Context) {
	user := auth.CurrentUser(c)
	threadID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return
	}
	if user == nil {
		c.Redirect(http.StatusFound, "/login?next=/forum/thread/"+c.Param("id"))
		return
	}
	if _, err := loadThread(threadID); err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return
	}

	body := strings.TrimSpace(c.PostForm("body"))
	if body == "" {
		c.Redirect(http.StatusFound, "/forum/thread/"+c.Param("id"))
		return
	}

	result, err := db.DB.Exec(`INSERT INTO replies (thread_id, user_id, body) VALUES (?, ?, ?)`, threadID, user.ID, body)
	if err != nil {
		c.JSON(500, gin.H{"error": "Database error inserting reply"})
		return
	}
	replyID64, _ := result.LastInsertId()
	c.Redirect(http.StatusFound, "/forum/thread/"+c.Param("id")+"#reply-"+strconv.FormatInt(replyID64, 10))
}

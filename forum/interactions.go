package forum

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"cottage/auth"
	"cottage/db"

	"github.com/gin-gonic/gin"
)

func voteScore(entityType string, entityID int) int {
	var score int
	err := db.DB.QueryRow(`SELECT COALESCE(SUM(value), 0) FROM votes WHERE entity_type = ? AND entity_id = ?`, entityType, entityID).Scan(&score)
	if err != nil {
		log.Println("forum: error reading vote score:", err)
		return 0
	}
	return score
}

func voteScores(entityType string, entityIDs []int) map[int]int {
	scores := make(map[int]int)
	for _, id := range entityIDs {
		scores[id] = voteScore(entityType, id)
	}
	return scores
}

func reactionCounts(entityType string, entityID int) map[string]int {
	counts := make(map[string]int)
	rows, err := db.DB.Query(`SELECT key, COUNT(id) FROM reactions WHERE entity_type = ? AND entity_id = ? GROUP BY key`, entityType, entityID)
	if err != nil {
		log.Println("forum: error reading reactions:", err)
		return counts
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		counts[key] = count
	}
	return counts
}

func reactionCountsBulk(entityType string, entityIDs []int) map[int]map[string]int {
	all := make(map[int]map[string]int)
	for _, id := range entityIDs {
		all[id] = reactionCounts(entityType, id)
	}
	return all
}

// toggleVote applies the three-state vote semantics: voting the same way
// again removes the vote, the other way flips it, otherwise it is inserted.
func toggleVote(entityType string, entityID, userID, value int) error {
	var existingID, existingValue int
	err := db.DB.QueryRow(`SELECT id, value FROM votes WHERE entity_type = ? AND entity_id = ? AND user_id = ?`,
		entityType, entityID, userID).Scan(&existingID, &existingValue)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.DB.Exec(`INSERT INTO votes (entity_type, entity_id, user_id, value) VALUES (?, ?, ?, ?)`,
			entityType, entityID, userID, value)
		return err
	case err != nil:
		return err
	case existingValue == value:
		_, err = db.DB.Exec(`DELETE FROM votes WHERE id = ?`, existingID)
		return err
	default:
		_, err = db.DB.Exec(`UPDATE votes SET value = ? WHERE id = ?`, value, existingID)
		return err
	}
}

func voteValue(action string) int {
	if action == "up" {
		return 1
	}
	return -1
}

func HandleThreadVote(c *gin.Context) {
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
	if err := toggleVote("thread", threadID, user.ID, voteValue(c.PostForm("action"))); err != nil {
		c.JSON(500, gin.H{"error": "Database error recording vote"})
		return
	}
	c.Redirect(http.StatusFound, "/forum/thread/"+c.Param("id"))
}

func HandleReplyVote(c *gin.Context) {
	user := auth.CurrentUser(c)
	replyID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return
	}
	if user == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	if err := toggleVote("reply", replyID, user.ID, voteValue(c.PostForm("action"))); err != nil {
		c.JSON(500, gin.H{"error": "Database error recording vote"})
		return
	}

	var threadID int
	if err := db.DB.QueryRow(`SELECT thread_id FROM replies WHERE id = ?`, replyID).Scan(&threadID); err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return
	}
	c.Redirect(http.StatusFound, "/forum/thread/"+strconv.Itoa(threadID)+"#reply-"+c.Param("id"))
}

// HandleReact toggles a single emoji reaction per user per entity. The
// entity kind comes from the route, not a wildcard, so it is always
// "thread" or "reply".
func HandleReact(entity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		react(c, entity)
	}
}

func react(c *gin.Context, entity string) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	entityID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/forum")
		return
	}
	key := c.PostForm("key")
	if key == "" || len(key) > 32 {
		c.Redirect(http.StatusFound, "/forum")
		return
	}

	var existingID int
	err = db.DB.QueryRow(`SELECT id FROM reactions WHERE entity_type = ? AND entity_id = ? AND user_id = ? AND key = ?`,
		entity, entityID, user.ID, key).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.DB.Exec(`INSERT INTO reactions (entity_type, entity_id, user_id, key) VALUES (?, ?, ?, ?)`,
			entity, entityID, user.ID, key); err != nil {
			c.JSON(500, gin.H{"error": "Database error recording reaction"})
			return
		}
	case err != nil:
		c.JSON(500, gin.H{"error": "Database error reading reaction"})
		return
	default:
		if _, err := db.DB.Exec(`DELETE FROM reactions WHERE id = ?`, existingID); err != nil {
			c.JSON(500, gin.H{"error": "Database error removing reaction"})
			return
		}
	}

	threadID := entityID
	if entity == "reply" {
		if err := db.DB.QueryRow(`SELECT thread_id FROM replies WHERE id = ?`, entityID).Scan(&threadID); err != nil {
			c.Redirect(http.StatusFound, "/forum")
			return
		}
	}
	c.Redirect(http.StatusFound, "/forum/thread/"+strconv.Itoa(threadID))
}

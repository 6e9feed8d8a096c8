// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package writeup

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"ctfhub/server/leaderboard"
)

// HandleToggleUpvote 点赞/取消点赞（需登录，不能给自己的题解点赞）
// 每次切换后作者total_upvotes ±1 → 重算贡献分/称号 → 全量重算排名
func HandleToggleUpvote(c *gin.Context, db *sql.DB) {
	writeupID := c.Param("id")
	userID := c.GetInt64("userID")

	var authorID int64
	err := db.QueryRow(`SELECT author_id FROM writeups WHERE id = $1`, writeupID).Scan(&authorID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "WRITEUP_NOT_FOUND"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if authorID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CANNOT_UPVOTE_OWN", "message": "不能给自己的题解点赞"})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM writeup_upvotes WHERE writeup_id = $1 AND user_id = $2)`,
		writeupID, userID).Scan(&exists)

	delta := 1
	if exists {
		delta = -1
		if _, err := db.Exec(`DELETE FROM writeup_upvotes WHERE writeup_id = $1 AND user_id = $2`,
			writeupID, userID); err != nil {
			log.Printf("remove upvote error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
			return
		}
	} else {
		if _, err := db.Exec(`INSERT INTO writeup_upvotes (writeup_id, user_id) VALUES ($1, $2)`,
			writeupID, userID); err != nil {
			log.Printf("add upvote error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
			return
		}
	}

	var upvotes int
	db.QueryRow(`UPDATE writeups SET upvotes = upvotes + $1, updated_at = NOW() WHERE id = $2 RETURNING upvotes`,
		delta, writeupID).Scan(&upvotes)

	if err := leaderboard.ApplyDelta(db, authorID, leaderboard.Delta{Upvotes: delta}); err != nil {
		log.Printf("apply upvote delta error: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"upvotes": upvotes, "upvoted": !exists})
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package writeup

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ctfhub/server/leaderboard"
	"ctfhub/server/logs"
	"ctfhub/server/scoring"
)

// Writeup 题解
type Writeup struct {
	ID         int64    `json:"id"`
	AuthorID   int64    `json:"authorId"`
	AuthorName string   `json:"authorName"`
	Title      string   `json:"title"`
	Content    string   `json:"content,omitempty"`
	CTFName    string   `json:"ctfName"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Upvotes    int      `json:"upvotes"`
	HotScore   float64  `json:"hotScore"`
	Upvoted    bool     `json:"upvoted"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
}

type createWriteupRequest struct {
	Title    string   `json:"title" binding:"required"`
	Content  string   `json:"content"`
	CTFName  string   `json:"ctfName"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type updateWriteupRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	CTFName  string   `json:"ctfName"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// HandleListWriteups 获取题解列表（公开API，支持sort=hot|new|top）
func HandleListWriteups(c *gin.Context, db *sql.DB) {
	sortBy := c.DefaultQuery("sort", "hot")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	category := c.Query("category")

	// hot排序在应用层计算（热度分是upvotes和创建时间的纯函数，不落库）。
	// 热度排序必须先取全量再排序截断，不能让SQL按时间截断决定候选集，
	// 否则旧但高赞的题解会整条掉出榜单。团队规模的表全量读取没有压力
	orderSQL := `w.created_at DESC`
	switch sortBy {
	case "top":
		orderSQL = `w.upvotes DESC, w.created_at DESC`
	case "new", "hot":
		orderSQL = `w.created_at DESC`
	}

	query := `
		SELECT w.id, w.author_id, COALESCE(u.display_name, u.username), w.title, w.ctf_name,
			w.category, w.tags, w.upvotes, w.created_at, w.updated_at
		FROM writeups w
		JOIN users u ON w.author_id = u.id`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE w.category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY ` + orderSQL
	if sortBy != "hot" {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		log.Printf("query writeups error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	now := time.Now()
	var writeups []Writeup
	for rows.Next() {
		w, ok := scanWriteup(rows, now)
		if !ok {
			continue
		}
		writeups = append(writeups, w)
	}

	if sortBy == "hot" {
		writeups = rankHot(writeups, limit)
	}

	if writeups == nil {
		writeups = []Writeup{}
	}

	c.JSON(http.StatusOK, writeups)
}

// HandleGetWriteup 获取题解详情（公开API）
func HandleGetWriteup(c *gin.Context, db *sql.DB) {
	writeupID := c.Param("id")
	userID := c.GetInt64("userID") // 未登录时为0

	var w Writeup
	var tagsJSON string
	var createdAt, updatedAt time.Time
	err := db.QueryRow(`
		SELECT w.id, w.author_id, COALESCE(u.display_name, u.username), w.title, w.content,
			w.ctf_name, w.category, w.tags, w.upvotes, w.created_at, w.updated_at
		FROM writeups w
		JOIN users u ON w.author_id = u.id
		WHERE w.id = $1`, writeupID).
		Scan(&w.ID, &w.AuthorID, &w.AuthorName, &w.Title, &w.Content, &w.CTFName,
			&w.Category, &tagsJSON, &w.Upvotes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "WRITEUP_NOT_FOUND"})
		return
	}
	if err != nil {
		log.Printf("query writeup error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	json.Unmarshal([]byte(tagsJSON), &w.Tags)
	if w.Tags == nil {
		w.Tags = []string{}
	}
	w.HotScore = scoring.HotScore(w.Upvotes, createdAt, time.Now())
	w.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	w.UpdatedAt = updatedAt.Format("2006-01-02 15:04:05")

	if userID > 0 {
		db.QueryRow(`SELECT EXISTS(SELECT 1 FROM writeup_upvotes WHERE writeup_id = $1 AND user_id = $2)`,
			w.ID, userID).Scan(&w.Upvoted)
	}

	c.JSON(http.StatusOK, w)
}

// HandleCreateWriteup 创建题解（需登录）
// 创建成功后串联副作用：作者writeup_count+1 → 重算贡献分/称号 → 全量重算排名
func HandleCreateWriteup(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req createWriteupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Category == "" {
		req.Category = "MISC"
	}
	tagsJSON, _ := json.Marshal(req.Tags)
	if req.Tags == nil {
		tagsJSON = []byte("[]")
	}

	var id int64
	err := db.QueryRow(`
		INSERT INTO writeups (author_id, title, content, ctf_name, category, tags)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		userID, req.Title, req.Content, req.CTFName, req.Category, string(tagsJSON)).Scan(&id)
	if err != nil {
		log.Printf("create writeup error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	if err := leaderboard.ApplyDelta(db, userID, leaderboard.Delta{Writeups: 1}); err != nil {
		log.Printf("apply writeup delta error: %v", err)
	}

	logs.WriteLogSimple(db, logs.TypeWriteup, logs.LevelSuccess, userID, c.ClientIP(),
		"发布题解 ["+req.Title+"]")

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateWriteup 更新题解（作者本人或管理员）
func HandleUpdateWriteup(c *gin.Context, db *sql.DB) {
	writeupID := c.Param("id")
	userID := c.GetInt64("userID")
	role := c.GetString("role")

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
	if authorID != userID && role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "FORBIDDEN"})
		return
	}

	var req updateWriteupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Title != "" {
		db.Exec(`UPDATE writeups SET title = $1, updated_at = NOW() WHERE id = $2`, req.Title, writeupID)
	}
	if req.Content != "" {
		db.Exec(`UPDATE writeups SET content = $1, updated_at = NOW() WHERE id = $2`, req.Content, writeupID)
	}
	if req.CTFName != "" {
		db.Exec(`UPDATE writeups SET ctf_name = $1, updated_at = NOW() WHERE id = $2`, req.CTFName, writeupID)
	}
	if req.Category != "" {
		db.Exec(`UPDATE writeups SET category = $1, updated_at = NOW() WHERE id = $2`, req.Category, writeupID)
	}
	if req.Tags != nil {
		tagsJSON, _ := json.Marshal(req.Tags)
		db.Exec(`UPDATE writeups SET tags = $1, updated_at = NOW() WHERE id = $2`, string(tagsJSON), writeupID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteWriteup 删除题解（作者本人或管理员）
// 作者writeup_count-1，题解已有的赞同时从作者total_upvotes中扣除
func HandleDeleteWriteup(c *gin.Context, db *sql.DB) {
	writeupID := c.Param("id")
	userID := c.GetInt64("userID")
	role := c.GetString("role")

	var authorID int64
	var upvotes int
	var title string
	err := db.QueryRow(`SELECT author_id, upvotes, title FROM writeups WHERE id = $1`, writeupID).
		Scan(&authorID, &upvotes, &title)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "WRITEUP_NOT_FOUND"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if authorID != userID && role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "FORBIDDEN"})
		return
	}

	// 点赞关联记录随外键级联删除
	if _, err := db.Exec(`DELETE FROM writeups WHERE id = $1`, writeupID); err != nil {
		log.Printf("delete writeup error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	if err := leaderboard.ApplyDelta(db, authorID, leaderboard.Delta{Writeups: -1, Upvotes: -upvotes}); err != nil {
		log.Printf("apply writeup delta error: %v", err)
	}

	logs.WriteLogSimple(db, logs.TypeWriteup, logs.LevelWarning, userID, c.ClientIP(),
		"删除题解 ["+title+"]")

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// rankHot 按热度分降序排序并截断。排序必须发生在全量候选集上，
// 截断只发生在排序之后
func rankHot(writeups []Writeup, limit int) []Writeup {
	sort.Slice(writeups, func(i, j int) bool {
		if writeups[i].HotScore != writeups[j].HotScore {
			return writeups[i].HotScore > writeups[j].HotScore
		}
		return writeups[i].CreatedAt > writeups[j].CreatedAt
	})
	if len(writeups) > limit {
		writeups = writeups[:limit]
	}
	return writeups
}

// scanWriteup 扫描列表行并计算热度分
func scanWriteup(rows *sql.Rows, now time.Time) (Writeup, bool) {
	var w Writeup
	var tagsJSON string
	var createdAt, updatedAt time.Time
	if err := rows.Scan(&w.ID, &w.AuthorID, &w.AuthorName, &w.Title, &w.CTFName,
		&w.Category, &tagsJSON, &w.Upvotes, &createdAt, &updatedAt); err != nil {
		return w, false
	}
	json.Unmarshal([]byte(tagsJSON), &w.Tags)
	if w.Tags == nil {
		w.Tags = []string{}
	}
	w.HotScore = scoring.HotScore(w.Upvotes, createdAt, now)
	w.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	w.UpdatedAt = updatedAt.Format("2006-01-02 15:04:05")
	return w, true
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package announcement

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Announcement 团队公告
type Announcement struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsPinned  bool   `json:"isPinned"`
	CreatedBy *int64 `json:"createdBy,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// CreateAnnouncementRequest 创建公告请求
type CreateAnnouncementRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	IsPinned bool   `json:"isPinned"`
}

// HandleListAnnouncements 获取公告列表（公开API，置顶优先）
func HandleListAnnouncements(c *gin.Context, db *sql.DB) {
	rows, err := db.Query(`
		SELECT id, title, COALESCE(content, ''), is_pinned, created_by, created_at
		FROM announcements
		ORDER BY is_pinned DESC, created_at DESC
		LIMIT 100`)
	if err != nil {
		log.Printf("query announcements error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var announcements []Announcement
	for rows.Next() {
		var a Announcement
		var createdAt time.Time
		var createdBy sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.IsPinned, &createdBy, &createdAt); err != nil {
			continue
		}
		if createdBy.Valid {
			a.CreatedBy = &createdBy.Int64
		}
		a.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		announcements = append(announcements, a)
	}

	if announcements == nil {
		announcements = []Announcement{}
	}

	c.JSON(http.StatusOK, announcements)
}

// HandleCreateAnnouncement 创建公告（管理员）
func HandleCreateAnnouncement(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var createdBy interface{}
	if userID > 0 {
		createdBy = userID
	}

	var id int64
	err := db.QueryRow(`
		INSERT INTO announcements (title, content, is_pinned, created_by)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		req.Title, req.Content, req.IsPinned, createdBy).Scan(&id)
	if err != nil {
		log.Printf("create announcement error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateAnnouncement 更新公告（管理员）
func HandleUpdateAnnouncement(c *gin.Context, db *sql.DB) {
	announcementID := c.Param("id")

	var req struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		IsPinned *bool  `json:"isPinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Title != "" {
		db.Exec(`UPDATE announcements SET title = $1, updated_at = NOW() WHERE id = $2`, req.Title, announcementID)
	}
	if req.Content != "" {
		db.Exec(`UPDATE announcements SET content = $1, updated_at = NOW() WHERE id = $2`, req.Content, announcementID)
	}
	if req.IsPinned != nil {
		db.Exec(`UPDATE announcements SET is_pinned = $1, updated_at = NOW() WHERE id = $2`, *req.IsPinned, announcementID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteAnnouncement 删除公告（管理员）
func HandleDeleteAnnouncement(c *gin.Context, db *sql.DB) {
	announcementID := c.Param("id")

	result, err := db.Exec(`DELETE FROM announcements WHERE id = $1`, announcementID)
	if err != nil {
		log.Printf("delete announcement error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "ANNOUNCEMENT_NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

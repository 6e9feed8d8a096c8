// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"ctfhub/server/leaderboard"
	"ctfhub/server/logs"
)

// MemberDetail 成员详情
type MemberDetail struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	Email       *string `json:"email"`
	Role        string  `json:"role"`
	Status      string  `json:"status"`
	Title       string  `json:"title"`
	Score       int     `json:"contributionScore"`
	Rank        int     `json:"rank"`
	LastLoginIP *string `json:"lastLoginIp"`
	LastLoginAt *string `json:"lastLoginAt"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// CreateMemberRequest 创建成员请求
type CreateMemberRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Password    string `json:"password" binding:"required"`
}

// UpdateMemberRequest 更新成员请求
type UpdateMemberRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

// ResetPasswordRequest 重置密码请求
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

// HandleListMembers 获取成员列表
func HandleListMembers(c *gin.Context, db *sql.DB) {
	search := c.Query("search")

	query := `
		SELECT id, username, display_name, email, role, status, title, contribution_score, rank,
		       last_login_ip,
		       TO_CHAR(last_login_at, 'YYYY-MM-DD HH24:MI') as last_login_at,
		       TO_CHAR(created_at, 'YYYY-MM-DD HH24:MI') as created_at,
		       TO_CHAR(updated_at, 'YYYY-MM-DD HH24:MI') as updated_at
		FROM users`
	args := []interface{}{}
	if search != "" {
		query += ` WHERE username ILIKE $1 OR display_name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY id ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		log.Printf("list members error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	defer rows.Close()

	var members []MemberDetail
	for rows.Next() {
		var m MemberDetail
		if err := rows.Scan(&m.ID, &m.Username, &m.DisplayName, &m.Email, &m.Role, &m.Status,
			&m.Title, &m.Score, &m.Rank, &m.LastLoginIP, &m.LastLoginAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			log.Printf("scan member error: %v", err)
			continue
		}
		members = append(members, m)
	}

	if members == nil {
		members = []MemberDetail{}
	}

	// 统计
	var total, adminCount, activeToday, bannedCount int64
	db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&total)
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&adminCount)
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE last_login_at >= CURRENT_DATE`).Scan(&activeToday)
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE status = 'banned'`).Scan(&bannedCount)

	c.JSON(http.StatusOK, gin.H{
		"users": members,
		"stats": gin.H{
			"total":       total,
			"admins":      adminCount,
			"activeToday": activeToday,
			"banned":      bannedCount,
		},
	})
}

// HandleCreateMember 创建成员
func HandleCreateMember(c *gin.Context, db *sql.DB) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Role == "" {
		req.Role = "user"
	}
	if req.Role != "user" && req.Role != "admin" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ROLE"})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, req.Username).Scan(&exists)
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "USERNAME_TAKEN"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	var email interface{}
	if req.Email != "" {
		email = req.Email
	}

	var id int64
	err = db.QueryRow(`
		INSERT INTO users (username, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		req.Username, req.DisplayName, email, string(hash), req.Role).Scan(&id)
	if err != nil {
		log.Printf("create member error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 新成员入榜
	if err := leaderboard.RecomputeRanks(db); err != nil {
		log.Printf("recompute ranks error: %v", err)
	}

	adminID := c.GetInt64("userID")
	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelInfo, adminID, c.ClientIP(),
		"创建成员 ["+req.Username+"]")

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateMember 更新成员信息
func HandleUpdateMember(c *gin.Context, db *sql.DB) {
	memberID := c.Param("id")

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.DisplayName != "" {
		db.Exec(`UPDATE users SET display_name = $1, updated_at = NOW() WHERE id = $2`, req.DisplayName, memberID)
	}
	if req.Email != "" {
		db.Exec(`UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2`, req.Email, memberID)
	}
	if req.Role == "user" || req.Role == "admin" {
		db.Exec(`UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, req.Role, memberID)
	}
	if req.Status == "active" || req.Status == "banned" {
		db.Exec(`UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2`, req.Status, memberID)
		// 封禁时递增token_version，立即踢掉现有会话
		if req.Status == "banned" {
			db.Exec(`UPDATE users SET token_version = token_version + 1 WHERE id = $1`, memberID)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteMember 删除成员（关联数据级联删除，随后全量重算排名）
func HandleDeleteMember(c *gin.Context, db *sql.DB) {
	memberID := c.Param("id")
	adminID := c.GetInt64("userID")

	var username string
	err := db.QueryRow(`SELECT username FROM users WHERE id = $1`, memberID).Scan(&username)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if _, err := db.Exec(`DELETE FROM users WHERE id = $1`, memberID); err != nil {
		log.Printf("delete member error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if err := leaderboard.RecomputeRanks(db); err != nil {
		log.Printf("recompute ranks error: %v", err)
	}

	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelWarning, adminID, c.ClientIP(),
		"删除成员 ["+username+"]")

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// HandleResetMemberPassword 重置成员密码
func HandleResetMemberPassword(c *gin.Context, db *sql.DB) {
	memberID := c.Param("id")
	adminID := c.GetInt64("userID")

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	result, err := db.Exec(`UPDATE users SET password_hash = $1, token_version = token_version + 1, updated_at = NOW() WHERE id = $2`,
		string(hash), memberID)
	if err != nil {
		log.Printf("reset password error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
		return
	}

	logs.WriteLogSimple(db, logs.TypeAdminOp, logs.LevelWarning, adminID, c.ClientIP(),
		"重置成员密码 (ID: "+memberID+")")

	c.JSON(http.StatusOK, gin.H{"message": "PASSWORD_RESET"})
}

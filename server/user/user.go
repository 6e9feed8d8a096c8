// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package user

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"ctfhub/server/logs"
	"ctfhub/server/scoring"
)

// ProfileInfo 用户个人信息（含贡献统计）
type ProfileInfo struct {
	ID          int64         `json:"id"`
	Username    string        `json:"username"`
	DisplayName string        `json:"displayName"`
	Email       *string       `json:"email"`
	Role        string        `json:"role"`
	Avatar      *string       `json:"avatar"`
	Bio         *string       `json:"bio"`
	Stats       scoring.Stats `json:"stats"`
	Score       int           `json:"contributionScore"`
	Title       string        `json:"title"`
	Rank        int           `json:"rank"`
	LastLoginIP *string       `json:"lastLoginIp"`
	LastLoginAt *string       `json:"lastLoginAt"`
	CreatedAt   string        `json:"createdAt"`
}

// UpdateProfileRequest 更新个人信息请求
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Bio         string `json:"bio"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ValidatePasswordStrength 验证密码强度：必须包含大小写字母、数字、特殊符号
func ValidatePasswordStrength(password string) (bool, string) {
	if len(password) < 8 {
		return false, "密码长度至少8位"
	}
	// 大写字母
	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	if !hasUpper {
		return false, "密码必须包含大写字母"
	}
	// 小写字母
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	if !hasLower {
		return false, "密码必须包含小写字母"
	}
	// 数字
	hasDigit := regexp.MustCompile(`[0-9]`).MatchString(password)
	if !hasDigit {
		return false, "密码必须包含数字"
	}
	// 特殊符号
	hasSpecial := regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?~]`).MatchString(password)
	if !hasSpecial {
		return false, "密码必须包含特殊符号(!@#$%^&*等)"
	}
	return true, ""
}

// HandleGetProfile 获取当前用户个人信息
func HandleGetProfile(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")
	queryProfile(c, db, userID, true)
}

// HandleGetPublicProfile 获取指定用户公开信息（成员页）
func HandleGetPublicProfile(c *gin.Context, db *sql.DB) {
	username := c.Param("username")

	var userID int64
	err := db.QueryRow(`SELECT id FROM users WHERE username = $1`, username).Scan(&userID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	queryProfile(c, db, userID, false)
}

func queryProfile(c *gin.Context, db *sql.DB, userID int64, private bool) {
	var p ProfileInfo
	var email, avatar, bio, lastLoginIP, lastLoginAt sql.NullString

	err := db.QueryRow(`
		SELECT id, username, display_name, email, role, avatar, bio,
		       writeup_count, total_upvotes, ctf_participation,
		       contribution_score, title, rank,
		       last_login_ip,
		       COALESCE(TO_CHAR(last_login_at, 'YYYY-MM-DD HH24:MI'), ''),
		       COALESCE(TO_CHAR(created_at, 'YYYY-MM-DD HH24:MI'), '')
		FROM users
		WHERE id = $1`, userID).Scan(
		&p.ID, &p.Username, &p.DisplayName, &email, &p.Role, &avatar, &bio,
		&p.Stats.WriteupCount, &p.Stats.TotalUpvotes, &p.Stats.CTFParticipation,
		&p.Score, &p.Title, &p.Rank,
		&lastLoginIP, &lastLoginAt, &p.CreatedAt)

	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
		return
	}
	if err != nil {
		log.Printf("get profile error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if avatar.Valid {
		p.Avatar = &avatar.String
	}
	if bio.Valid {
		p.Bio = &bio.String
	}
	// 邮箱和登录信息只给本人看
	if private {
		if email.Valid {
			p.Email = &email.String
		}
		if lastLoginIP.Valid {
			p.LastLoginIP = &lastLoginIP.String
		}
		if lastLoginAt.Valid && lastLoginAt.String != "" {
			p.LastLoginAt = &lastLoginAt.String
		}
	}

	c.JSON(http.StatusOK, p)
}

// HandleUpdateProfile 更新个人信息
func HandleUpdateProfile(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.DisplayName == "" && req.Email == "" && req.Bio == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_UPDATES"})
		return
	}

	if req.DisplayName != "" {
		db.Exec(`UPDATE users SET display_name = $1, updated_at = NOW() WHERE id = $2`, req.DisplayName, userID)
	}
	if req.Email != "" {
		db.Exec(`UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2`, req.Email, userID)
	}
	if req.Bio != "" {
		db.Exec(`UPDATE users SET bio = $1, updated_at = NOW() WHERE id = $2`, req.Bio, userID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleChangePassword 修改密码
func HandleChangePassword(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	// 验证密码强度
	if valid, msg := ValidatePasswordStrength(req.NewPassword); !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WEAK_PASSWORD", "message": msg})
		return
	}

	var currentHash string
	err := db.QueryRow(`SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&currentHash)
	if err != nil {
		log.Printf("get password hash error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	if req.OldPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OLD_PASSWORD_REQUIRED"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.OldPassword)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WRONG_PASSWORD"})
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("generate password hash error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 更新密码并递增token_version，使现有会话全部失效
	_, err = db.Exec(`UPDATE users SET password_hash = $1, token_version = token_version + 1, updated_at = NOW() WHERE id = $2`,
		string(newHash), userID)
	if err != nil {
		log.Printf("update password error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	logs.WriteLogSimple(db, logs.TypePasswordChange, logs.LevelInfo, userID, c.ClientIP(), "修改密码")

	c.JSON(http.StatusOK, gin.H{"message": "PASSWORD_CHANGED"})
}

// HandleUploadAvatar 上传头像（base64 JSON方式）
func HandleUploadAvatar(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID")

	var req struct {
		Avatar string `json:"avatar"` // data:image/png;base64,xxxxx
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Avatar == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_AVATAR"})
		return
	}

	// 解析 base64 数据
	var ext, data string
	if strings.HasPrefix(req.Avatar, "data:image/") {
		parts := strings.SplitN(req.Avatar, ",", 2)
		if len(parts) != 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_BASE64"})
			return
		}
		if strings.Contains(parts[0], "png") {
			ext = ".png"
		} else if strings.Contains(parts[0], "gif") {
			ext = ".gif"
		} else if strings.Contains(parts[0], "webp") {
			ext = ".webp"
		} else {
			ext = ".jpg"
		}
		data = parts[1]
	} else {
		ext = ".jpg"
		data = req.Avatar
	}

	imgData, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_BASE64"})
		return
	}

	// 验证大小（最大 2MB）
	if len(imgData) > 2*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "FILE_TOO_LARGE"})
		return
	}

	avatarDir := "web/uploads/avatars"
	if err := os.MkdirAll(avatarDir, 0755); err != nil {
		log.Printf("create avatar dir error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	filename := fmt.Sprintf("%d_%d%s", userID, time.Now().UnixNano(), ext)
	filePath := filepath.Join(avatarDir, filename)
	if err := os.WriteFile(filePath, imgData, 0644); err != nil {
		log.Printf("save avatar error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	avatarPath := "/uploads/avatars/" + filename
	if _, err := db.Exec(`UPDATE users SET avatar = $1, updated_at = NOW() WHERE id = $2`, avatarPath, userID); err != nil {
		log.Printf("update avatar error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	logs.WriteLogSimple(db, logs.TypeAvatarUpdate, logs.LevelInfo, userID, c.ClientIP(), "更新头像")

	c.JSON(http.StatusOK, gin.H{"avatar": avatarPath})
}

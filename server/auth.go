// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ctfhub/server/leaderboard"
	"ctfhub/server/logs"
	userpkg "ctfhub/server/user"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

// ensureAdmin 确保管理员账户存在（由环境变量完全控制）
func ensureAdmin(db *sql.DB) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	displayName := os.Getenv("ADMIN_DISPLAY_NAME")

	if username == "" || password == "" {
		return nil
	}

	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var existingID int64
	err = db.QueryRow(`SELECT id FROM users WHERE username = $1`, username).Scan(&existingID)

	if err == sql.ErrNoRows {
		var newID int64
		err = db.QueryRow(`INSERT INTO users (username, display_name, role, password_hash, status)
			VALUES ($1, $2, 'admin', $3, 'active') RETURNING id`,
			username, displayName, string(hash)).Scan(&newID)
		if err != nil {
			return err
		}
		log.Printf("[ensureAdmin] Created admin: %s (ID: %d)", username, newID)
	} else if err == nil {
		// 用户已存在，更新为管理员并更新密码
		_, err = db.Exec(`UPDATE users SET role = 'admin', display_name = $1, password_hash = $2, status = 'active', updated_at = NOW() WHERE id = $3`,
			displayName, string(hash), existingID)
		if err != nil {
			return err
		}
		log.Printf("[ensureAdmin] Updated admin: %s (ID: %d)", username, existingID)
	} else {
		return err
	}

	return leaderboard.RecomputeRanks(db)
}

// handleLogin 处理登录请求
func handleLogin(c *gin.Context, db *sql.DB, secret []byte) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var (
		id           int64
		username     string
		displayName  string
		role         string
		passwordHash string
		tokenVersion int
		status       string
	)

	err := db.QueryRow(
		`SELECT id, username, display_name, role, password_hash, COALESCE(token_version, 1), COALESCE(status, 'active') FROM users WHERE username = $1`,
		req.Username,
	).Scan(&id, &username, &displayName, &role, &passwordHash, &tokenVersion, &status)

	clientIP := c.ClientIP()

	if err == sql.ErrNoRows {
		// 用户不存在，记录失败日志
		logs.WriteLog(db, logs.TypeLogin, logs.LevelError, nil, clientIP,
			"登录失败: 用户 ["+req.Username+"] 不存在", nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_CREDENTIALS"})
		return
	}
	if err != nil {
		log.Printf("query user error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 检查用户是否被封禁
	if status == "banned" {
		logs.WriteLogSimple(db, logs.TypeLogin, logs.LevelError, id, clientIP,
			"登录失败: 用户 ["+displayName+"] 已被封禁")
		c.JSON(http.StatusForbidden, gin.H{"error": "ACCOUNT_DISABLED", "message": "该账号不可用，请联系管理员"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		logs.WriteLogSimple(db, logs.TypeLogin, logs.LevelError, id, clientIP,
			"登录失败: 用户 ["+displayName+"] 密码错误")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_CREDENTIALS"})
		return
	}

	// 更新最后登录IP和时间
	db.Exec(`UPDATE users SET last_login_ip = $1, last_login_at = NOW(), updated_at = NOW() WHERE id = $2`, clientIP, id)

	// 记录登录历史
	userAgent := c.GetHeader("User-Agent")
	db.Exec(`INSERT INTO user_login_history (user_id, ip_address, user_agent, login_at) VALUES ($1, $2, $3, NOW())`,
		id, clientIP, userAgent)

	logs.WriteLogSimple(db, logs.TypeLogin, logs.LevelSuccess, id, clientIP, displayName+" 登录系统")

	token, err := generateJWT(User{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		Role:        role,
	}, secret, tokenVersion)
	if err != nil {
		log.Printf("generate token error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": User{
			ID:          id,
			Username:    username,
			DisplayName: displayName,
			Role:        role,
		},
	})
}

// handleRegister 注册新成员
func handleRegister(c *gin.Context, db *sql.DB, secret []byte) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if !usernamePattern.MatchString(req.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_USERNAME", "message": "用户名只能包含字母、数字、下划线和连字符，长度3-32"})
		return
	}

	if valid, msg := userpkg.ValidatePasswordStrength(req.Password); !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WEAK_PASSWORD", "message": msg})
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
		VALUES ($1, $2, $3, $4, 'user') RETURNING id`,
		req.Username, req.DisplayName, email, string(hash)).Scan(&id)
	if err != nil {
		log.Printf("register error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	// 新成员入榜（计数器全为0，排名照样要分配）
	if err := leaderboard.RecomputeRanks(db); err != nil {
		log.Printf("recompute ranks error: %v", err)
	}

	logs.WriteLogSimple(db, logs.TypeRegister, logs.LevelSuccess, id, c.ClientIP(),
		req.DisplayName+" 注册账号")

	token, err := generateJWT(User{
		ID:          id,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        "user",
	}, secret, 1)
	if err != nil {
		log.Printf("generate token error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user": User{
			ID:          id,
			Username:    req.Username,
			DisplayName: req.DisplayName,
			Role:        "user",
		},
	})
}

// generateJWT 生成JWT令牌
func generateJWT(u User, secret []byte, tokenVersion int) (string, error) {
	claims := jwt.MapClaims{
		"sub":          u.ID,
		"username":     u.Username,
		"displayName":  u.DisplayName,
		"role":         u.Role,
		"tokenVersion": tokenVersion,
		"exp":          time.Now().Add(24 * time.Hour).Unix(),
		"iat":          time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package logs

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// 日志类型常量
const (
	TypeLogin          = "login"
	TypeRegister       = "register"
	TypeWriteup        = "writeup"
	TypeAdminOp        = "admin_op"
	TypeAvatarUpdate   = "avatar_update"
	TypePasswordChange = "password_change"
)

// 日志级别常量
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// LogEntry 日志条目
type LogEntry struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Level     string          `json:"level"`
	UserID    *int64          `json:"userId,omitempty"`
	UserName  string          `json:"userName,omitempty"`
	IPAddress string          `json:"ipAddress,omitempty"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

// WriteLog 写入日志（供其他模块调用）
func WriteLog(db *sql.DB, logType, level string, userID *int64, ipAddress, message string, details interface{}) error {
	var detailsJSON []byte
	var err error
	if details != nil {
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			detailsJSON = nil
		}
	}

	_, err = db.Exec(`
		INSERT INTO system_logs (type, level, user_id, ip_address, message, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		logType, level, userID, ipAddress, message, detailsJSON)
	if err != nil {
		log.Printf("[Logs] write log error: %v", err)
	}
	return err
}

// WriteLogSimple 简化版写入日志
func WriteLogSimple(db *sql.DB, logType, level string, userID int64, ipAddress, message string) error {
	return WriteLog(db, logType, level, &userID, ipAddress, message, nil)
}

// HandleGetLogs 获取日志列表（管理后台API）
func HandleGetLogs(c *gin.Context, db *sql.DB) {
	// 分页参数
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 10 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	// 过滤参数
	logType := c.Query("type")
	level := c.Query("level")
	search := c.Query("search")

	where := `WHERE 1=1`
	args := []interface{}{}
	argIdx := 1
	if logType != "" {
		where += ` AND l.type = $` + strconv.Itoa(argIdx)
		args = append(args, logType)
		argIdx++
	}
	if level != "" {
		where += ` AND l.level = $` + strconv.Itoa(argIdx)
		args = append(args, level)
		argIdx++
	}
	if search != "" {
		where += ` AND l.message ILIKE $` + strconv.Itoa(argIdx)
		args = append(args, "%"+search+"%")
		argIdx++
	}

	var total int
	db.QueryRow(`SELECT COUNT(*) FROM system_logs l `+where, args...).Scan(&total)

	query := `
		SELECT l.id, l.type, l.level, l.user_id, COALESCE(u.display_name, u.username, ''),
			COALESCE(l.ip_address, ''), l.message, l.details, l.created_at
		FROM system_logs l
		LEFT JOIN users u ON l.user_id = u.id
		` + where + `
		ORDER BY l.created_at DESC
		LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, pageSize, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		log.Printf("query logs error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var userID sql.NullInt64
		var details []byte
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Type, &e.Level, &userID, &e.UserName,
			&e.IPAddress, &e.Message, &details, &createdAt); err != nil {
			continue
		}
		if userID.Valid {
			e.UserID = &userID.Int64
		}
		if len(details) > 0 {
			e.Details = details
		}
		e.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		entries = append(entries, e)
	}

	if entries == nil {
		entries = []LogEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":     entries,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package event

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ctfhub/server/leaderboard"
)

// Event CTF赛事
type Event struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Organizer  string  `json:"organizer"`
	Format     string  `json:"format"` // jeopardy | attack-defense | mixed
	Weight     float64 `json:"weight"`
	URL        string  `json:"url"`
	Status     string  `json:"status"` // upcoming | running | finished（由时间推导，不落库）
	Interested int     `json:"interested"`
	MyInterest bool    `json:"myInterest"`
	StartTime  string  `json:"startTime"`
	EndTime    string  `json:"endTime"`
	CreatedAt  string  `json:"createdAt"`
}

type createEventRequest struct {
	Name      string  `json:"name" binding:"required"`
	Organizer string  `json:"organizer"`
	Format    string  `json:"format"`
	Weight    float64 `json:"weight"`
	URL       string  `json:"url"`
	StartTime string  `json:"startTime" binding:"required"`
	EndTime   string  `json:"endTime" binding:"required"`
}

type updateEventRequest struct {
	Name      string   `json:"name"`
	Organizer string   `json:"organizer"`
	Format    string   `json:"format"`
	Weight    *float64 `json:"weight"`
	URL       string   `json:"url"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
}

// statusOf 根据起止时间推导赛事状态
func statusOf(start, end, now time.Time) string {
	if now.Before(start) {
		return "upcoming"
	}
	if now.After(end) {
		return "finished"
	}
	return "running"
}

// HandleListEvents 获取赛事日历（公开API，按开始时间排序）
func HandleListEvents(c *gin.Context, db *sql.DB) {
	userID := c.GetInt64("userID") // 未登录时为0

	rows, err := db.Query(`
		SELECT e.id, e.name, e.organizer, e.format, e.weight, e.url, e.start_time, e.end_time, e.created_at,
			(SELECT COUNT(*) FROM event_interests ei WHERE ei.event_id = e.id)
		FROM ctf_events e
		ORDER BY e.start_time DESC
		LIMIT 200`)
	if err != nil {
		log.Printf("query events error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	now := time.Now()
	var events []Event
	for rows.Next() {
		var e Event
		var start, end, createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Name, &e.Organizer, &e.Format, &e.Weight, &e.URL,
			&start, &end, &createdAt, &e.Interested); err != nil {
			continue
		}
		e.Status = statusOf(start, end, now)
		e.StartTime = start.Format("2006-01-02 15:04:05")
		e.EndTime = end.Format("2006-01-02 15:04:05")
		e.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		if userID > 0 {
			db.QueryRow(`SELECT EXISTS(SELECT 1 FROM event_interests WHERE event_id = $1 AND user_id = $2)`,
				e.ID, userID).Scan(&e.MyInterest)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []Event{}
	}

	c.JSON(http.StatusOK, events)
}

// HandleCreateEvent 创建赛事（管理员）
func HandleCreateEvent(c *gin.Context, db *sql.DB) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	start, err := time.Parse("2006-01-02 15:04:05", req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TIME", "message": "时间格式应为 2006-01-02 15:04:05"})
		return
	}
	end, err := time.Parse("2006-01-02 15:04:05", req.EndTime)
	if err != nil || !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TIME", "message": "结束时间必须晚于开始时间"})
		return
	}

	if req.Format == "" {
		req.Format = "jeopardy"
	}

	var id int64
	err = db.QueryRow(`
		INSERT INTO ctf_events (name, organizer, format, weight, url, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		req.Name, req.Organizer, req.Format, req.Weight, req.URL, start, end).Scan(&id)
	if err != nil {
		log.Printf("create event error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateEvent 更新赛事（管理员）
func HandleUpdateEvent(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if req.Name != "" {
		db.Exec(`UPDATE ctf_events SET name = $1, updated_at = NOW() WHERE id = $2`, req.Name, eventID)
	}
	if req.Organizer != "" {
		db.Exec(`UPDATE ctf_events SET organizer = $1, updated_at = NOW() WHERE id = $2`, req.Organizer, eventID)
	}
	if req.Format != "" {
		db.Exec(`UPDATE ctf_events SET format = $1, updated_at = NOW() WHERE id = $2`, req.Format, eventID)
	}
	if req.Weight != nil {
		db.Exec(`UPDATE ctf_events SET weight = $1, updated_at = NOW() WHERE id = $2`, *req.Weight, eventID)
	}
	if req.URL != "" {
		db.Exec(`UPDATE ctf_events SET url = $1, updated_at = NOW() WHERE id = $2`, req.URL, eventID)
	}
	if req.StartTime != "" {
		if start, err := time.Parse("2006-01-02 15:04:05", req.StartTime); err == nil {
			db.Exec(`UPDATE ctf_events SET start_time = $1, updated_at = NOW() WHERE id = $2`, start, eventID)
		}
	}
	if req.EndTime != "" {
		if end, err := time.Parse("2006-01-02 15:04:05", req.EndTime); err == nil {
			db.Exec(`UPDATE ctf_events SET end_time = $1, updated_at = NOW() WHERE id = $2`, end, eventID)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteEvent 删除赛事（管理员）
// 对该赛事感兴趣的用户需要回退参赛计数，否则贡献分会虚高
func HandleDeleteEvent(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	var interested []int64
	rows, err := db.Query(`SELECT user_id FROM event_interests WHERE event_id = $1`, eventID)
	if err == nil {
		for rows.Next() {
			var uid int64
			if err := rows.Scan(&uid); err == nil {
				interested = append(interested, uid)
			}
		}
		rows.Close()
	}

	result, err := db.Exec(`DELETE FROM ctf_events WHERE id = $1`, eventID)
	if err != nil {
		log.Printf("delete event error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND"})
		return
	}

	for _, uid := range interested {
		if err := leaderboard.ApplyDelta(db, uid, leaderboard.Delta{Participation: -1}); err != nil {
			log.Printf("apply participation delta error: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}

// HandleToggleInterest 参赛兴趣开关（需登录）
// 切换后ctf_participation ±1 → 重算贡献分/称号 → 全量重算排名
func HandleToggleInterest(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")
	userID := c.GetInt64("userID")

	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM ctf_events WHERE id = $1)`, eventID).Scan(&exists)
	if err != nil || !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "EVENT_NOT_FOUND"})
		return
	}

	var interested bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM event_interests WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID).Scan(&interested)

	delta := 1
	if interested {
		delta = -1
		if _, err := db.Exec(`DELETE FROM event_interests WHERE event_id = $1 AND user_id = $2`,
			eventID, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
			return
		}
	} else {
		if _, err := db.Exec(`INSERT INTO event_interests (event_id, user_id) VALUES ($1, $2)`,
			eventID, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
			return
		}
	}

	if err := leaderboard.ApplyDelta(db, userID, leaderboard.Delta{Participation: delta}); err != nil {
		log.Printf("apply participation delta error: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"interested": !interested})
}

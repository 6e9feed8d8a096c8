// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetChatStats 由main注入，返回聊天中继的实时统计（频道数、在线数）
var GetChatStats func() (channels, online int)

// OverviewStats 概览统计
type OverviewStats struct {
	Users         int `json:"users"`
	Writeups      int `json:"writeups"`
	Events        int `json:"events"`
	Announcements int `json:"announcements"`
	ChatChannels  int `json:"chatChannels"`
	ChatOnline    int `json:"chatOnline"`
}

// HandleAdminOverview 后台概览统计
func HandleAdminOverview(c *gin.Context, db *sql.DB) {
	var stats OverviewStats

	// 查询用户数
	db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&stats.Users)

	// 查询题解数
	db.QueryRow(`SELECT COUNT(*) FROM writeups`).Scan(&stats.Writeups)

	// 查询赛事数
	db.QueryRow(`SELECT COUNT(*) FROM ctf_events`).Scan(&stats.Events)

	// 查询公告数
	db.QueryRow(`SELECT COUNT(*) FROM announcements`).Scan(&stats.Announcements)

	// 聊天实时统计（中继进程内状态，不走数据库）
	if GetChatStats != nil {
		stats.ChatChannels, stats.ChatOnline = GetChatStats()
	}

	c.JSON(http.StatusOK, stats)
}

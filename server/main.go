// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package main

import (
	"database/sql"
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ctfhub/server/admin"
	"ctfhub/server/announcement"
	"ctfhub/server/chat"
	"ctfhub/server/event"
	"ctfhub/server/leaderboard"
	"ctfhub/server/logs"
	"ctfhub/server/store"
	"ctfhub/server/user"
	"ctfhub/server/writeup"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	if err := ensureAdmin(db); err != nil {
		log.Fatalf("failed to ensure admin user: %v", err)
	}

	// 聊天中继（纯内存，重启丢历史）
	historyLimit := 0
	if v := os.Getenv("CHAT_HISTORY_LIMIT"); v != "" {
		historyLimit, _ = strconv.Atoi(v)
	}
	hub := chat.NewHub(historyLimit)
	go hub.Run()

	// 初始化后台概览的聊天统计函数
	admin.GetChatStats = func() (int, int) {
		stats := hub.Stats()
		return stats.Channels, stats.Online
	}

	r := gin.Default()

	// 头像等上传文件
	r.Static("/uploads", "web/uploads")

	api := r.Group("/api")
	{
		api.POST("/login", func(c *gin.Context) {
			handleLogin(c, db, []byte(jwtSecret))
		})
		api.POST("/register", func(c *gin.Context) {
			handleRegister(c, db, []byte(jwtSecret))
		})

		// 聊天WebSocket（不经过中间件，自己验证token）
		api.GET("/chat/ws", func(c *gin.Context) {
			chat.HandleChatWebSocket(c, hub, db, []byte(jwtSecret))
		})

		// ========== 公开API（无需认证，带token时识别身份） ==========
		public := api.Group("")
		public.Use(optionalAuthMiddleware([]byte(jwtSecret)))
		{
			public.GET("/writeups", func(c *gin.Context) {
				writeup.HandleListWriteups(c, db)
			})
			public.GET("/writeups/:id", func(c *gin.Context) {
				writeup.HandleGetWriteup(c, db)
			})
			public.GET("/events", func(c *gin.Context) {
				event.HandleListEvents(c, db)
			})
			public.GET("/announcements", func(c *gin.Context) {
				announcement.HandleListAnnouncements(c, db)
			})
			public.GET("/leaderboard", func(c *gin.Context) {
				leaderboard.HandleGetLeaderboard(c, db)
			})
			public.GET("/members/:username", func(c *gin.Context) {
				user.HandleGetPublicProfile(c, db)
			})
		}

		// ========== 登录用户API ==========
		authed := api.Group("")
		authed.Use(userAuthMiddleware([]byte(jwtSecret), db))
		{
			authed.GET("/profile", func(c *gin.Context) {
				user.HandleGetProfile(c, db)
			})
			authed.PUT("/profile", func(c *gin.Context) {
				user.HandleUpdateProfile(c, db)
			})
			authed.POST("/profile/password", func(c *gin.Context) {
				user.HandleChangePassword(c, db)
			})
			authed.POST("/profile/avatar", func(c *gin.Context) {
				user.HandleUploadAvatar(c, db)
			})

			authed.POST("/writeups", func(c *gin.Context) {
				writeup.HandleCreateWriteup(c, db)
			})
			authed.PUT("/writeups/:id", func(c *gin.Context) {
				writeup.HandleUpdateWriteup(c, db)
			})
			authed.DELETE("/writeups/:id", func(c *gin.Context) {
				writeup.HandleDeleteWriteup(c, db)
			})
			authed.POST("/writeups/:id/upvote", func(c *gin.Context) {
				writeup.HandleToggleUpvote(c, db)
			})

			authed.POST("/events/:id/interest", func(c *gin.Context) {
				event.HandleToggleInterest(c, db)
			})
		}

		// ========== 管理后台API ==========
		adminGroup := api.Group("/admin")
		adminGroup.Use(authMiddleware([]byte(jwtSecret)))
		{
			adminGroup.GET("/overview", func(c *gin.Context) {
				admin.HandleAdminOverview(c, db)
			})

			adminGroup.GET("/users", func(c *gin.Context) {
				admin.HandleListMembers(c, db)
			})
			adminGroup.POST("/users", func(c *gin.Context) {
				admin.HandleCreateMember(c, db)
			})
			adminGroup.PUT("/users/:id", func(c *gin.Context) {
				admin.HandleUpdateMember(c, db)
			})
			adminGroup.DELETE("/users/:id", func(c *gin.Context) {
				admin.HandleDeleteMember(c, db)
			})
			adminGroup.POST("/users/:id/reset-password", func(c *gin.Context) {
				admin.HandleResetMemberPassword(c, db)
			})

			adminGroup.POST("/users/import", func(c *gin.Context) {
				admin.HandleImportMembers(c, db)
			})
			adminGroup.POST("/users/import/excel", func(c *gin.Context) {
				admin.HandleImportMembersExcel(c, db)
			})
			adminGroup.GET("/users/import/template", func(c *gin.Context) {
				admin.HandleDownloadImportTemplate(c, db)
			})

			adminGroup.POST("/events", func(c *gin.Context) {
				event.HandleCreateEvent(c, db)
			})
			adminGroup.PUT("/events/:id", func(c *gin.Context) {
				event.HandleUpdateEvent(c, db)
			})
			adminGroup.DELETE("/events/:id", func(c *gin.Context) {
				event.HandleDeleteEvent(c, db)
			})

			adminGroup.POST("/announcements", func(c *gin.Context) {
				announcement.HandleCreateAnnouncement(c, db)
			})
			adminGroup.PUT("/announcements/:id", func(c *gin.Context) {
				announcement.HandleUpdateAnnouncement(c, db)
			})
			adminGroup.DELETE("/announcements/:id", func(c *gin.Context) {
				announcement.HandleDeleteAnnouncement(c, db)
			})

			adminGroup.GET("/leaderboard/export", func(c *gin.Context) {
				leaderboard.HandleExportLeaderboard(c, db)
			})

			adminGroup.GET("/logs", func(c *gin.Context) {
				logs.HandleGetLogs(c, db)
			})
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("[Server] listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

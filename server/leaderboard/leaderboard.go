// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package leaderboard

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ctfhub/server/scoring"
)

// Entry 排行榜条目
type Entry struct {
	Rank             int     `json:"rank"`
	UserID           int64   `json:"userId"`
	Username         string  `json:"username"`
	DisplayName      string  `json:"displayName"`
	Avatar           *string `json:"avatar"`
	Title            string  `json:"title"`
	Score            int     `json:"score"`
	WriteupCount     int     `json:"writeupCount"`
	TotalUpvotes     int     `json:"totalUpvotes"`
	CTFParticipation int     `json:"ctfParticipation"`
}

// Delta 统计计数器增量（Writeup创建/删除、点赞增减、赛事兴趣切换触发）
type Delta struct {
	Writeups      int
	Upvotes       int
	Participation int
}

// ApplyDelta 调整用户计数器并重算贡献分和称号，随后全量重算排名。
// 计数器变更、分数/称号回写、排名重算必须按此顺序串联（调用方只管调这里）
func ApplyDelta(db *sql.DB, userID int64, d Delta) error {
	var stats scoring.Stats
	err := db.QueryRow(`
		UPDATE users SET
			writeup_count = writeup_count + $1,
			total_upvotes = total_upvotes + $2,
			ctf_participation = ctf_participation + $3,
			updated_at = NOW()
		WHERE id = $4
		RETURNING writeup_count, total_upvotes, ctf_participation`,
		d.Writeups, d.Upvotes, d.Participation, userID,
	).Scan(&stats.WriteupCount, &stats.TotalUpvotes, &stats.CTFParticipation)
	if err != nil {
		return err
	}

	score, err := scoring.ContributionScore(stats)
	if err != nil {
		// 计数器出现负值说明某处增量计算有bug，记录并上抛
		log.Printf("[Leaderboard] bad counters for user %d: %v", userID, err)
		return err
	}

	_, err = db.Exec(`UPDATE users SET contribution_score = $1, title = $2, updated_at = NOW() WHERE id = $3`,
		score, scoring.TitleFor(score), userID)
	if err != nil {
		return err
	}

	return RecomputeRanks(db)
}

// RecomputeRanks 全量重算排名（任何人的分数变动都会使现有排名失效）
// 团队规模小（几十到上百人），全量重算的代价可以接受
func RecomputeRanks(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, contribution_score FROM users`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var contributors []scoring.Contributor
	for rows.Next() {
		var c scoring.Contributor
		if err := rows.Scan(&c.UserID, &c.Score); err != nil {
			continue
		}
		contributors = append(contributors, c)
	}

	ranked := scoring.Rank(contributors)

	// 批量回写，放在一个事务里保证排名一致性
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`UPDATE users SET rank = $1 WHERE id = $2`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range ranked {
		if _, err := stmt.Exec(r.Rank, r.UserID); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// HandleGetLeaderboard 获取排行榜（公开API）
func HandleGetLeaderboard(c *gin.Context, db *sql.DB) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, err := queryEntries(db, limit)
	if err != nil {
		log.Printf("query leaderboard error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

func queryEntries(db *sql.DB, limit int) ([]Entry, error) {
	rows, err := db.Query(`
		SELECT rank, id, username, display_name, avatar, title, contribution_score,
			writeup_count, total_upvotes, ctf_participation
		FROM users
		WHERE rank > 0
		ORDER BY rank ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var avatar sql.NullString
		if err := rows.Scan(&e.Rank, &e.UserID, &e.Username, &e.DisplayName, &avatar, &e.Title,
			&e.Score, &e.WriteupCount, &e.TotalUpvotes, &e.CTFParticipation); err != nil {
			continue
		}
		if avatar.Valid {
			e.Avatar = &avatar.String
		}
		entries = append(entries, e)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package leaderboard

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// HandleExportLeaderboard 导出排行榜为Excel（管理后台）
func HandleExportLeaderboard(c *gin.Context, db *sql.DB) {
	entries, err := queryEntries(db, 500)
	if err != nil {
		log.Printf("export leaderboard error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}

	f := buildExportSheet(entries)
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=leaderboard.xlsx")

	if err := f.Write(c.Writer); err != nil {
		log.Printf("write excel error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WRITE_ERROR"})
		return
	}
}

// buildExportSheet 把排行榜条目填入工作表，条目顺序即行顺序
func buildExportSheet(entries []Entry) *excelize.File {
	f := excelize.NewFile()

	headers := []string{"排名", "用户名", "显示名", "称号", "贡献分", "Writeup数", "获赞数", "参赛数"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Sheet1", cell, h)
	}

	for i, e := range entries {
		row := i + 2
		values := []interface{}{e.Rank, e.Username, e.DisplayName, e.Title, e.Score,
			e.WriteupCount, e.TotalUpvotes, e.CTFParticipation}
		for j, val := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue("Sheet1", cell, val)
		}
	}

	f.SetColWidth("Sheet1", "A", "A", 8)
	f.SetColWidth("Sheet1", "B", "C", 20)
	f.SetColWidth("Sheet1", "D", "D", 15)
	f.SetColWidth("Sheet1", "E", "H", 12)

	return f
}

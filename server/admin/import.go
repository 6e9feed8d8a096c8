// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package admin

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"ctfhub/server/leaderboard"
)

// 批量导入的默认初始密码
const defaultImportPassword = "CtfHub@2025"

// ImportMemberRow 导入成员数据行
type ImportMemberRow struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ImportResult 导入结果
type ImportResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// HandleImportMembersExcel 通过Excel批量导入成员
func HandleImportMembersExcel(c *gin.Context, db *sql.DB) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "FILE_REQUIRED", "message": "请上传Excel文件"})
		return
	}
	defer file.Close()

	// 读取Excel文件
	f, err := excelize.OpenReader(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FILE", "message": "无法读取Excel文件: " + err.Error()})
		return
	}
	defer f.Close()

	// 获取第一个工作表
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "EMPTY_FILE", "message": "Excel文件为空"})
		return
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "READ_ERROR", "message": "读取工作表失败"})
		return
	}

	if len(rows) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_DATA", "message": "Excel文件没有数据（需要表头+至少一行数据）"})
		return
	}

	// 解析表头，确定列映射
	header := rows[0]
	colMap := make(map[string]int)
	for i, col := range header {
		col = strings.TrimSpace(strings.ToLower(col))
		switch {
		case col == "用户名" || col == "username":
			colMap["username"] = i
		case col == "显示名" || col == "姓名" || col == "displayname" || col == "display_name" || col == "name":
			colMap["displayName"] = i
		case col == "邮箱" || col == "email":
			colMap["email"] = i
		}
	}

	if _, ok := colMap["username"]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_COLUMN", "message": "缺少用户名列"})
		return
	}

	var members []ImportMemberRow
	for _, row := range rows[1:] {
		get := func(key string) string {
			idx, ok := colMap[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		m := ImportMemberRow{
			Username:    get("username"),
			DisplayName: get("displayName"),
			Email:       get("email"),
		}
		if m.Username == "" {
			continue
		}
		members = append(members, m)
	}

	result := processMemberImport(db, members)
	c.JSON(http.StatusOK, result)
}

// HandleImportMembers 导入成员（JSON格式）
func HandleImportMembers(c *gin.Context, db *sql.DB) {
	var req struct {
		Users []ImportMemberRow `json:"users"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": "请求格式错误"})
		return
	}

	result := processMemberImport(db, req.Users)
	c.JSON(http.StatusOK, result)
}

// processMemberImport 逐行写入，单行失败不影响其他行
func processMemberImport(db *sql.DB, members []ImportMemberRow) ImportResult {
	result := ImportResult{Total: len(members), Errors: []string{}}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultImportPassword), bcrypt.DefaultCost)
	if err != nil {
		result.Failed = len(members)
		result.Errors = append(result.Errors, "生成默认密码哈希失败")
		return result
	}

	for i, m := range members {
		if m.Username == "" {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("第%d行: 用户名为空", i+2))
			continue
		}
		if m.DisplayName == "" {
			m.DisplayName = m.Username
		}

		var exists bool
		db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, m.Username).Scan(&exists)
		if exists {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("第%d行: 用户名 [%s] 已存在", i+2, m.Username))
			continue
		}

		var email interface{}
		if m.Email != "" {
			email = m.Email
		}

		_, err := db.Exec(`
			INSERT INTO users (username, display_name, email, password_hash, role)
			VALUES ($1, $2, $3, $4, 'user')`,
			m.Username, m.DisplayName, email, string(hash))
		if err != nil {
			log.Printf("import member error: %v", err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("第%d行: 用户名 [%s] 写入失败", i+2, m.Username))
			continue
		}
		result.Success++
	}

	// 导入完成后统一重算一次排名
	if result.Success > 0 {
		if err := leaderboard.RecomputeRanks(db); err != nil {
			log.Printf("recompute ranks error: %v", err)
		}
	}

	return result
}

// HandleDownloadImportTemplate 下载导入模板
func HandleDownloadImportTemplate(c *gin.Context, db *sql.DB) {
	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"用户名", "显示名", "邮箱"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Sheet1", cell, h)
	}

	examples := [][]string{
		{"zhangsan", "张三", "zhangsan@example.com"},
		{"lisi", "李四", ""},
		{"wangwu", "王五", "wangwu@example.com"},
	}
	for i, row := range examples {
		for j, val := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue("Sheet1", cell, val)
		}
	}

	f.SetColWidth("Sheet1", "A", "B", 15)
	f.SetColWidth("Sheet1", "C", "C", 25)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=member_import_template.xlsx")

	if err := f.Write(c.Writer); err != nil {
		log.Printf("write excel error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WRITE_ERROR"})
		return
	}
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// 贡献分权重常量（Writeup权重最高，其次是赛事参与，单个点赞最低）
const (
	WeightUpvote        = 10
	WeightWriteup       = 50
	WeightParticipation = 30
)

// Stats 用户贡献统计计数器
type Stats struct {
	WriteupCount     int `json:"writeupCount"`
	TotalUpvotes     int `json:"totalUpvotes"`
	CTFParticipation int `json:"ctfParticipation"`
}

// Contributor 参与排名计算的用户（只需要ID和贡献分）
type Contributor struct {
	UserID int64
	Score  int
}

// Ranked 排名计算结果
type Ranked struct {
	UserID int64
	Score  int
	Rank   int
}

// 称号阶梯（从高到低，首个满足的下限即为结果）
var titleLadder = []struct {
	Min  int
	Name string
}{
	{2500, "Legendary"},
	{2000, "Elite"},
	{1600, "Advanced"},
	{1200, "Expert"},
	{800, "Skilled"},
	{500, "Intermediate"},
	{300, "Proficient"},
	{150, "Novice"},
	{50, "Apprentice"},
	{0, "Initiate"},
}

// HotScore 计算Writeup热度分（Reddit式时间衰减）
// score = (upvotes - 1) / (hours + 2)^1.5，保留6位小数
// upvotes为0时结果为负，使至少被点赞过一次的内容排在前面。
// createdAt晚于now时hours为负（衰减更慢），不做报错处理；
// 注意：createdAt超前now两小时以上会除零，与原始实现保持一致，不做防护。
func HotScore(upvotes int, createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	score := float64(upvotes-1) / math.Pow(hours+2, 1.5)
	return math.Round(score*1e6) / 1e6
}

// ContributionScore 计算贡献分（线性加权）
// 计数器为负说明上游数据有问题，直接报错而不是静默截断
func ContributionScore(s Stats) (int, error) {
	if s.WriteupCount < 0 || s.TotalUpvotes < 0 || s.CTFParticipation < 0 {
		return 0, fmt.Errorf("negative counter: writeups=%d upvotes=%d participation=%d",
			s.WriteupCount, s.TotalUpvotes, s.CTFParticipation)
	}
	return s.TotalUpvotes*WeightUpvote + s.WriteupCount*WeightWriteup + s.CTFParticipation*WeightParticipation, nil
}

// TitleFor 根据贡献分返回称号
func TitleFor(score int) string {
	for _, t := range titleLadder {
		if score >= t.Min {
			return t.Name
		}
	}
	return titleLadder[len(titleLadder)-1].Name
}

// TitleRank 返回称号在阶梯中的序号（0=Legendary最高，9=Initiate最低）
func TitleRank(title string) int {
	for i, t := range titleLadder {
		if t.Name == title {
			return i
		}
	}
	return len(titleLadder) - 1
}

// Rank 计算全量排名（1为最高分）
// 按贡献分降序排列，同分时按用户ID升序（确定性平局规则）
func Rank(contributors []Contributor) []Ranked {
	sorted := make([]Contributor, len(contributors))
	copy(sorted, contributors)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	ranked := make([]Ranked, len(sorted))
	for i, c := range sorted {
		ranked[i] = Ranked{UserID: c.UserID, Score: c.Score, Rank: i + 1}
	}
	return ranked
}

// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package chat

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultHistoryLimit 每个频道保留的最大历史消息数
	DefaultHistoryLimit = 100

	// 客户端发送缓冲区大小（写满说明客户端已死，直接丢弃消息）
	clientSendBuffer = 64
)

// Message 聊天消息（线上格式，timestamp为ISO-8601字符串）
type Message struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
}

// 服务端下行事件类型
const (
	EventHistory   = "messages:history"
	EventNewMsg    = "message:new"
	EventUserList  = "users:list"
	EventUserJoin  = "user:joined"
	EventUserLeave = "user:left"
)

// 客户端上行事件类型
const (
	ActionJoin   = "join"
	ActionSend   = "message:send"
	ActionSwitch = "channel:switch"
)

// Envelope 下行事件信封
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// presenceNotice user:joined / user:left 事件载荷
type presenceNotice struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// Client 一个活跃连接。channel字段只允许Hub事件循环读写。
type Client struct {
	hub      *Hub
	send     chan []byte
	username string
	channel  string // 空串 = 尚未加入任何频道
}

// channelState 单个频道的全部可变状态（仅Hub事件循环触碰）
type channelState struct {
	history []Message
	members map[*Client]bool
}

// HubStats 管理后台概览用的实时统计
type HubStats struct {
	Channels int `json:"channels"`
	Online   int `json:"online"`
}

// hubEvent Hub事件循环处理的内部事件（封闭的变体集合）
type hubEvent struct {
	kind     int
	client   *Client
	username string
	channel  string
	content  string
	reply    chan HubStats
}

const (
	evJoin = iota
	evSwitch
	evSend
	evDisconnect
	evStats
)

// Hub 聊天中继。所有频道/历史/在线状态由单个事件循环独占，
// 事件逐个处理完毕后再取下一个，因此无需加锁。
// 状态纯内存，进程重启丢失历史和在线列表（设计如此）。
type Hub struct {
	events       chan hubEvent
	channels     map[string]*channelState
	historyLimit int
	nextID       int64
	now          func() time.Time
}

// NewHub 创建聊天中继，historyLimit小于等于0时使用默认值
func NewHub(historyLimit int) *Hub {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Hub{
		events:       make(chan hubEvent, 256),
		channels:     make(map[string]*channelState),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Run 事件循环，应在独立goroutine中运行
func (h *Hub) Run() {
	for ev := range h.events {
		switch ev.kind {
		case evJoin:
			h.handleJoin(ev.client, ev.username, ev.channel)
		case evSwitch:
			h.handleSwitch(ev.client, ev.channel)
		case evSend:
			h.handleSend(ev.client, ev.content)
		case evDisconnect:
			h.handleDisconnect(ev.client)
		case evStats:
			online := 0
			for _, ch := range h.channels {
				online += len(ch.members)
			}
			ev.reply <- HubStats{Channels: len(h.channels), Online: online}
		}
	}
}

// Close 停止事件循环
func (h *Hub) Close() {
	close(h.events)
}

// NewClient 注册一个新连接（尚未加入任何频道）
func (h *Hub) NewClient(username string) *Client {
	return &Client{
		hub:      h,
		send:     make(chan []byte, clientSendBuffer),
		username: username,
	}
}

// Join 将连接加入指定频道
func (h *Hub) Join(c *Client, username, channel string) {
	h.events <- hubEvent{kind: evJoin, client: c, username: username, channel: channel}
}

// Switch 切换频道（与当前频道相同时为no-op）
func (h *Hub) Switch(c *Client, channel string) {
	h.events <- hubEvent{kind: evSwitch, client: c, channel: channel}
}

// Send 在当前频道发送消息
func (h *Hub) Send(c *Client, content string) {
	h.events <- hubEvent{kind: evSend, client: c, content: content}
}

// Disconnect 连接断开（显式或传输层错误，两者同样处理）
func (h *Hub) Disconnect(c *Client) {
	h.events <- hubEvent{kind: evDisconnect, client: c}
}

// Stats 实时统计（供管理后台概览）
func (h *Hub) Stats() HubStats {
	reply := make(chan HubStats, 1)
	h.events <- hubEvent{kind: evStats, reply: reply}
	return <-reply
}

// ========== 以下方法只在事件循环goroutine内执行 ==========

func (h *Hub) handleJoin(c *Client, username, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	if username != "" {
		c.username = username
	}
	if c.channel == channel {
		// 重复join同一频道不重发历史、不重复广播
		return
	}
	if c.channel != "" {
		h.leaveChannel(c)
	}

	ch := h.channels[channel]
	if ch == nil {
		ch = &channelState{members: make(map[*Client]bool)}
		h.channels[channel] = ch
	}
	ch.members[c] = true
	c.channel = channel

	// 1. 给新成员按时间顺序发送历史（旧→新）
	hist := ch.history
	if hist == nil {
		hist = []Message{}
	}
	h.deliver(c, Envelope{Event: EventHistory, Data: hist})

	// 2. 向全频道（含新成员）广播完整在线列表
	h.broadcast(ch, Envelope{Event: EventUserList, Data: h.userList(ch)})

	// 3. 向其他成员广播加入通知
	notice := Envelope{Event: EventUserJoin, Data: presenceNotice{
		Username:  c.username,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}}
	for m := range ch.members {
		if m != c {
			h.deliver(m, notice)
		}
	}
}

func (h *Hub) handleSwitch(c *Client, channel string) {
	if c.channel == "" {
		// 未加入任何频道的连接发来的切换请求，静默忽略
		return
	}
	if channel == c.channel {
		return
	}
	h.handleJoin(c, "", channel)
}

func (h *Hub) handleSend(c *Client, content string) {
	if c.channel == "" {
		return
	}
	content = strings.TrimSpace(content)
	if content == "" {
		// 空消息静默丢弃，不广播也不报错
		return
	}
	ch := h.channels[c.channel]
	if ch == nil {
		return
	}

	h.nextID++
	msg := Message{
		ID:        h.nextID,
		Username:  c.username,
		Content:   content,
		Channel:   c.channel,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	// 追加历史，超出上限时从头部逐出（严格FIFO）
	ch.history = append(ch.history, msg)
	if len(ch.history) > h.historyLimit {
		ch.history = ch.history[len(ch.history)-h.historyLimit:]
	}

	// 广播给频道内所有成员（包括发送者本人，让客户端拿到服务端分配的ID和时间戳）
	h.broadcast(ch, Envelope{Event: EventNewMsg, Data: msg})
}

func (h *Hub) handleDisconnect(c *Client) {
	if c.channel != "" {
		h.leaveChannel(c)
	}
	close(c.send)
	c.channel = ""
}

// leaveChannel 将连接移出当前频道并通知剩余成员
func (h *Hub) leaveChannel(c *Client) {
	ch := h.channels[c.channel]
	if ch == nil {
		c.channel = ""
		return
	}
	delete(ch.members, c)
	c.channel = ""

	if len(ch.members) == 0 {
		return
	}
	h.broadcast(ch, Envelope{Event: EventUserList, Data: h.userList(ch)})
	h.broadcast(ch, Envelope{Event: EventUserLeave, Data: presenceNotice{
		Username:  c.username,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}})
}

// userList 频道内去重后的用户名列表（全量替换，不是增量）
func (h *Hub) userList(ch *channelState) []string {
	seen := make(map[string]bool)
	var names []string
	for m := range ch.members {
		if !seen[m.username] {
			seen[m.username] = true
			names = append(names, m.username)
		}
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	return names
}

func (h *Hub) broadcast(ch *channelState, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Chat] marshal error: %v", err)
		return
	}
	for m := range ch.members {
		h.deliverRaw(m, data)
	}
}

func (h *Hub) deliver(c *Client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Chat] marshal error: %v", err)
		return
	}
	h.deliverRaw(c, data)
}

// deliverRaw 尽力投递：缓冲区满直接丢弃该客户端的这条消息，
// 单个客户端投递失败不影响其他客户端
func (h *Hub) deliverRaw(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("[Chat] send buffer full, dropping message for %s", c.username)
	}
}

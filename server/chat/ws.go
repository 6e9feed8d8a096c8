// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package chat

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound 客户端上行事件信封
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	DisplayName string `json:"displayName"`
	Channel     string `json:"channel"`
}

type sendPayload struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

type switchPayload struct {
	Channel string `json:"channel"`
}

var errInvalidChatToken = errors.New("invalid chat token")

// parseChatToken 校验token并提取聊天接入需要的身份信息。
// 身份提供方只负责给出displayName，频道内不校验重名
func parseChatToken(secret []byte, tokenStr string) (userID int64, displayName string, tokenVersion int, err error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, "", 0, errInvalidChatToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", 0, errInvalidChatToken
	}
	if sub, ok := claims["sub"].(float64); ok {
		userID = int64(sub)
	}
	displayName, _ = claims["displayName"].(string)
	tokenVersion = 1
	if tv, ok := claims["tokenVersion"].(float64); ok {
		tokenVersion = int(tv)
	}
	if userID == 0 || displayName == "" {
		return 0, "", 0, errInvalidChatToken
	}
	return userID, displayName, tokenVersion, nil
}

// HandleChatWebSocket 聊天WebSocket接入（不经过中间件，自己验证token）
func HandleChatWebSocket(c *gin.Context, hub *Hub, db *sql.DB, jwtSecret []byte) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "MISSING_TOKEN"})
		return
	}

	userID, displayName, tokenVersion, err := parseChatToken(jwtSecret, tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_TOKEN"})
		return
	}

	// 与REST中间件相同的token_version失效检查：被封禁或改密的用户
	// 拿着未过期的旧token也不能再开新会话
	var dbTokenVersion int
	if err := db.QueryRow(`SELECT COALESCE(token_version, 1) FROM users WHERE id = $1`, userID).Scan(&dbTokenVersion); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "USER_NOT_FOUND"})
		return
	}
	if tokenVersion != dbTokenVersion {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "TOKEN_EXPIRED", "message": "登录已失效，请重新登录"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := hub.NewClient(displayName)
	go writePump(conn, client)
	readPump(conn, hub, client)
}

// readPump 读取客户端事件直到连接断开。网络层断开与显式断开同样处理，
// 格式错误的事件静默忽略（客户端可能有bug或恶意，不能拖垮事件循环）
func readPump(conn *websocket.Conn, hub *Hub, client *Client) {
	defer func() {
		hub.Disconnect(client)
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}

		switch in.Event {
		case ActionJoin:
			var p joinPayload
			if err := json.Unmarshal(in.Data, &p); err != nil {
				continue
			}
			hub.Join(client, p.DisplayName, p.Channel)
		case ActionSend:
			var p sendPayload
			if err := json.Unmarshal(in.Data, &p); err != nil {
				continue
			}
			hub.Send(client, p.Content)
		case ActionSwitch:
			var p switchPayload
			if err := json.Unmarshal(in.Data, &p); err != nil {
				continue
			}
			hub.Switch(client, p.Channel)
		}
	}
}

// writePump 将Hub投递的消息写到连接，send被Hub关闭后结束
func writePump(conn *websocket.Conn, client *Client) {
	for data := range client.send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	conn.Close()
}

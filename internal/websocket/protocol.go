package websocket

import (
	"encoding/json"
	"time"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
)

// Message WebSocket消息帧
type Message struct {
	Type      string          `json:"type"`                // 消息类型
	RoomCode  string          `json:"room_code,omitempty"` // 房间码
	Data      json.RawMessage `json:"data,omitempty"`      // 消息数据
	Timestamp int64           `json:"timestamp"`           // 毫秒时间戳
}

// MessageType 消息类型
const (
	// 客户端请求
	MessageTypeCreateGame    = "create_game"
	MessageTypeJoinGame      = "join_game"
	MessageTypeStartGame     = "start_game"
	MessageTypeSendMessage   = "send_message"
	MessageTypeVote          = "vote"
	MessageTypeReturnToLobby = "return_to_lobby"
	MessageTypePing          = "ping"

	// 服务端推送
	MessageTypeConnected   = "connected"
	MessageTypeGameCreated = "game_created"
	MessageTypeStateUpdate = "state_update"
	MessageTypePrivateData = "private_data"
	MessageTypeError       = "error"
	MessageTypePong        = "pong"
)

// 输入长度限制（按字符计）
const (
	MaxNameLength = 20
	MaxTextLength = 200
)

// CreateGameRequest 创建房间
type CreateGameRequest struct {
	PlayerName string `json:"player_name"`
}

// JoinGameRequest 加入房间
type JoinGameRequest struct {
	RoomCode   string `json:"room_code"`
	PlayerName string `json:"player_name"`
}

// SendMessageRequest 发言
type SendMessageRequest struct {
	Text string `json:"text"`
}

// VoteRequest 投票
type VoteRequest struct {
	TargetID string `json:"target_id"`
}

// ConnectedData 连接成功
type ConnectedData struct {
	PlayerID string `json:"player_id"`
}

// GameCreatedData 房间创建成功
type GameCreatedData struct {
	RoomCode string `json:"room_code"`
}

// ErrorData 错误信息
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newMessage 构造消息帧
func newMessage(msgType, roomCode string, data interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		RoomCode:  roomCode,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// encode 序列化消息帧
func encode(msgType, roomCode string, data interface{}) ([]byte, error) {
	msg, err := newMessage(msgType, roomCode, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// errorData 把错误转换为错误帧数据
func errorData(err error) *ErrorData {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	message := appErr.Message
	if appErr.Details != "" {
		message += ": " + appErr.Details
	}
	return &ErrorData{Code: int(appErr.Code), Message: message}
}

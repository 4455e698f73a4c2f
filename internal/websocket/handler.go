package websocket

import (
	"encoding/json"
	"strings"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/logger"
	"github.com/wfunc/imposter-game/internal/utils"
	"go.uber.org/zap"
)

// HandleClientMessage 解析客户端消息并分发到房间操作
func (h *Hub) HandleClientMessage(c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("", apperrors.New(apperrors.ErrMessageFormat, err.Error()))
		return
	}
	if msg.Type == "" {
		c.sendError("", apperrors.New(apperrors.ErrMessageFormat, "消息类型不能为空"))
		return
	}

	logger.LogWebSocketMessage("receive", msg.Type, map[string]interface{}{
		"client_id": c.ID,
		"size":      len(data),
	})

	var err error
	switch msg.Type {
	case MessageTypePing:
		c.send(MessageTypePong, "", nil)
		return
	case MessageTypeCreateGame:
		err = h.createGame(c, msg.Data)
	case MessageTypeJoinGame:
		err = h.joinGame(c, msg.Data)
	case MessageTypeStartGame:
		err = h.inRoom(c, func(code string) error {
			return h.games.StartGame(code, c.ID)
		})
	case MessageTypeSendMessage:
		var req SendMessageRequest
		if err = decode(msg.Data, &req); err != nil {
			break
		}
		text, ok := utils.NormalizeText(req.Text, MaxTextLength)
		if !ok {
			err = apperrors.Newf(apperrors.ErrInvalidParam, "发言长度必须为1到%d个字符", MaxTextLength)
			break
		}
		err = h.inRoom(c, func(code string) error {
			return h.games.SendMessage(code, c.ID, text)
		})
	case MessageTypeVote:
		var req VoteRequest
		if err = decode(msg.Data, &req); err != nil {
			break
		}
		err = h.inRoom(c, func(code string) error {
			return h.games.CastVote(code, c.ID, req.TargetID)
		})
	case MessageTypeReturnToLobby:
		err = h.inRoom(c, func(code string) error {
			return h.games.ReturnToLobby(code, c.ID)
		})
	default:
		err = apperrors.Newf(apperrors.ErrMessageFormat, "不支持的消息类型: %s", msg.Type)
	}

	if err != nil {
		h.logger.Debug("客户端请求被拒绝",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type),
			zap.Error(err))
		c.sendError(h.RoomOf(c), err)
	}
}

// decode 解析消息数据
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.New(apperrors.ErrMessageFormat, "缺少消息数据")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.New(apperrors.ErrMessageFormat, err.Error())
	}
	return nil
}

// playerName 校验玩家名称
func playerName(raw string) (string, error) {
	name, ok := utils.NormalizeText(raw, MaxNameLength)
	if !ok {
		return "", apperrors.Newf(apperrors.ErrInvalidParam, "名称长度必须为1到%d个字符", MaxNameLength)
	}
	return name, nil
}

// inRoom 在客户端所在房间执行操作
func (h *Hub) inRoom(c *Client, fn func(code string) error) error {
	code := h.RoomOf(c)
	if code == "" {
		return apperrors.New(apperrors.ErrNotInRoom)
	}
	return fn(code)
}

// createGame 创建房间，创建者成为房主
func (h *Hub) createGame(c *Client, data json.RawMessage) error {
	if h.RoomOf(c) != "" {
		return apperrors.New(apperrors.ErrInvalidIntent, "已在房间中")
	}
	var req CreateGameRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	name, err := playerName(req.PlayerName)
	if err != nil {
		return err
	}

	code, err := h.games.CreateSession(c.ID, name)
	if err != nil {
		return err
	}
	h.bind(code, c)
	c.send(MessageTypeGameCreated, code, &GameCreatedData{RoomCode: code})

	// 创建时的推送早于绑定，这里补发一次
	if snap, err := h.games.Snapshot(code); err == nil {
		c.send(MessageTypeStateUpdate, code, snap)
	}
	if priv, err := h.games.PrivateSnapshot(code, c.ID); err == nil {
		c.send(MessageTypePrivateData, code, priv)
	}

	logger.LogGameEvent("room_created", code, map[string]interface{}{
		"host_id": c.ID,
	})
	return nil
}

// joinGame 加入房间
func (h *Hub) joinGame(c *Client, data json.RawMessage) error {
	if h.RoomOf(c) != "" {
		return apperrors.New(apperrors.ErrInvalidIntent, "已在房间中")
	}
	var req JoinGameRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	name, err := playerName(req.PlayerName)
	if err != nil {
		return err
	}
	code := strings.ToUpper(strings.TrimSpace(req.RoomCode))
	if code == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "缺少房间码")
	}

	// 先绑定，加入后的推送才能送达
	h.bind(code, c)
	if err := h.games.JoinSession(code, c.ID, name); err != nil {
		h.unbind(c)
		return err
	}

	logger.LogGameEvent("player_joined", code, map[string]interface{}{
		"player_id": c.ID,
	})
	return nil
}

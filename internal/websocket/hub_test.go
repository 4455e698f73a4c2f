package websocket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/game"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) (*Hub, *game.Manager) {
	t.Helper()
	manager := game.NewManager(&game.ManagerConfig{Logger: zap.NewNop(), MaxPlayers: 4})
	hub := NewHub(manager, DefaultOptions(), zap.NewNop())
	manager.SetNotifier(hub)
	t.Cleanup(manager.Shutdown)
	return hub, manager
}

func connect(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(hub, nil)
	hub.registerClient(client)
	msg := nextOfType(t, client, MessageTypeConnected)
	var data ConnectedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.Equal(t, client.ID, data.PlayerID)
	return client
}

// nextOfType 读取直到指定类型的消息
func nextOfType(t *testing.T, c *Client, msgType string) *Message {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case data := <-c.Send:
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == msgType {
				return &msg
			}
		case <-timeout:
			t.Fatalf("未收到消息: %s", msgType)
			return nil
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func send(t *testing.T, hub *Hub, c *Client, msgType string, data interface{}) {
	t.Helper()
	msg, err := newMessage(msgType, "", data)
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	hub.HandleClientMessage(c, raw)
}

func expectError(t *testing.T, c *Client, code apperrors.ErrorCode) {
	t.Helper()
	msg := nextOfType(t, c, MessageTypeError)
	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, int(code), data.Code, data.Message)
}

func createRoom(t *testing.T, hub *Hub, host *Client) string {
	t.Helper()
	send(t, hub, host, MessageTypeCreateGame, &CreateGameRequest{PlayerName: "Host"})
	msg := nextOfType(t, host, MessageTypeGameCreated)
	var data GameCreatedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.NotEmpty(t, data.RoomCode)
	return data.RoomCode
}

func TestHub_PingPong(t *testing.T) {
	hub, _ := newTestHub(t)
	c := connect(t, hub)

	send(t, hub, c, MessageTypePing, nil)
	nextOfType(t, c, MessageTypePong)
}

func TestHub_InvalidFrames(t *testing.T) {
	hub, _ := newTestHub(t)
	c := connect(t, hub)

	hub.HandleClientMessage(c, []byte("not json"))
	expectError(t, c, apperrors.ErrMessageFormat)

	hub.HandleClientMessage(c, []byte(`{"data":{}}`))
	expectError(t, c, apperrors.ErrMessageFormat)

	send(t, hub, c, "spin", nil)
	expectError(t, c, apperrors.ErrMessageFormat)

	send(t, hub, c, MessageTypeJoinGame, nil)
	expectError(t, c, apperrors.ErrMessageFormat)
}

func TestHub_CreateGame(t *testing.T) {
	hub, _ := newTestHub(t)
	host := connect(t, hub)

	send(t, hub, host, MessageTypeCreateGame, &CreateGameRequest{PlayerName: "   "})
	expectError(t, host, apperrors.ErrInvalidParam)

	send(t, hub, host, MessageTypeCreateGame, &CreateGameRequest{PlayerName: strings.Repeat("x", MaxNameLength+1)})
	expectError(t, host, apperrors.ErrInvalidParam)

	code := createRoom(t, hub, host)
	assert.Equal(t, code, hub.RoomOf(host))

	msg := nextOfType(t, host, MessageTypeStateUpdate)
	assert.Equal(t, code, msg.RoomCode)
	var snap game.PublicSnapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, game.PhaseLobby, snap.State)
	assert.Equal(t, host.ID, snap.HostID)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Host", snap.Players[0].Name)

	nextOfType(t, host, MessageTypePrivateData)

	// 一个连接只能在一个房间
	send(t, hub, host, MessageTypeCreateGame, &CreateGameRequest{PlayerName: "Again"})
	expectError(t, host, apperrors.ErrInvalidIntent)
}

func TestHub_JoinGame(t *testing.T) {
	hub, _ := newTestHub(t)
	host := connect(t, hub)
	code := createRoom(t, hub, host)
	drain(host)

	guest := connect(t, hub)
	send(t, hub, guest, MessageTypeJoinGame, &JoinGameRequest{RoomCode: "0000", PlayerName: "Guest"})
	expectError(t, guest, apperrors.ErrRoomNotFound)
	assert.Empty(t, hub.RoomOf(guest))

	send(t, hub, guest, MessageTypeJoinGame, &JoinGameRequest{RoomCode: strings.ToLower(code), PlayerName: " Guest "})
	assert.Equal(t, code, hub.RoomOf(guest))

	for _, c := range []*Client{host, guest} {
		msg := nextOfType(t, c, MessageTypeStateUpdate)
		var snap game.PublicSnapshot
		require.NoError(t, json.Unmarshal(msg.Data, &snap))
		require.Len(t, snap.Players, 2)
		assert.Equal(t, "Guest", snap.Players[1].Name)
	}
}

func TestHub_IntentsRequireRoom(t *testing.T) {
	hub, _ := newTestHub(t)
	c := connect(t, hub)

	send(t, hub, c, MessageTypeStartGame, nil)
	expectError(t, c, apperrors.ErrNotInRoom)

	send(t, hub, c, MessageTypeVote, &VoteRequest{TargetID: "x"})
	expectError(t, c, apperrors.ErrNotInRoom)

	send(t, hub, c, MessageTypeReturnToLobby, nil)
	expectError(t, c, apperrors.ErrNotInRoom)
}

func TestHub_StartGameSendsPrivateWords(t *testing.T) {
	hub, manager := newTestHub(t)
	host := connect(t, hub)
	code := createRoom(t, hub, host)

	guests := []*Client{connect(t, hub), connect(t, hub)}
	for i, g := range guests {
		send(t, hub, g, MessageTypeJoinGame, &JoinGameRequest{RoomCode: code, PlayerName: string(rune('A' + i))})
	}

	// 非房主不能开始
	send(t, hub, guests[0], MessageTypeStartGame, nil)
	expectError(t, guests[0], apperrors.ErrInvalidIntent)

	all := append([]*Client{host}, guests...)
	for _, c := range all {
		drain(c)
	}

	send(t, hub, host, MessageTypeStartGame, nil)

	imposters := 0
	for _, c := range all {
		msg := nextOfType(t, c, MessageTypeStateUpdate)
		var snap game.PublicSnapshot
		require.NoError(t, json.Unmarshal(msg.Data, &snap))
		assert.Equal(t, game.PhaseWordAssignment, snap.State)

		msg = nextOfType(t, c, MessageTypePrivateData)
		var priv game.PrivateSnapshot
		require.NoError(t, json.Unmarshal(msg.Data, &priv))
		assert.Equal(t, c.ID, priv.PlayerID)
		assert.NotEmpty(t, priv.Word)
		if priv.IsImposter {
			imposters++
		}
	}
	assert.Equal(t, 1, imposters)

	// 描述阶段之前发言被拒绝
	send(t, hub, host, MessageTypeSendMessage, &SendMessageRequest{Text: "hello"})
	expectError(t, host, apperrors.ErrInvalidIntent)

	send(t, hub, host, MessageTypeSendMessage, &SendMessageRequest{Text: strings.Repeat("a", MaxTextLength+1)})
	expectError(t, host, apperrors.ErrInvalidParam)

	snap, err := manager.Snapshot(code)
	require.NoError(t, err)
	assert.Len(t, snap.TurnOrder, 3)
}

func TestHub_UnregisterDisconnectsPlayer(t *testing.T) {
	hub, manager := newTestHub(t)
	host := connect(t, hub)
	code := createRoom(t, hub, host)

	guest := connect(t, hub)
	send(t, hub, guest, MessageTypeJoinGame, &JoinGameRequest{RoomCode: code, PlayerName: "Guest"})
	assert.Equal(t, 2, hub.GetOnlineCount())

	hub.unregisterClient(host)
	assert.Equal(t, 1, hub.GetOnlineCount())

	snap, err := manager.Snapshot(code)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, snap.HostID)
	assert.False(t, snap.Players[0].Connected)

	// 重复注销无副作用
	hub.unregisterClient(host)

	hub.unregisterClient(guest)
	_, err = manager.Snapshot(code)
	assert.Equal(t, apperrors.ErrRoomNotFound, apperrors.GetCode(err))
	assert.Equal(t, 0, manager.ActiveRooms())
}

func TestHub_NotifyDoesNotBlock(t *testing.T) {
	manager := game.NewManager(&game.ManagerConfig{Logger: zap.NewNop()})
	defer manager.Shutdown()
	opts := DefaultOptions()
	opts.SendBufferSize = 1
	hub := NewHub(manager, opts, zap.NewNop())

	c := NewClient(hub, nil)
	hub.registerClient(c)
	hub.bind("ROOM", c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.NotifyRoom(&game.RoomUpdate{
				RoomCode: "ROOM",
				Public:   &game.PublicSnapshot{RoomCode: "ROOM"},
				Private:  map[string]*game.PrivateSnapshot{c.ID: {PlayerID: c.ID}},
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyRoom 阻塞")
	}
	assert.Len(t, c.Send, 1)
}

func TestHub_SendToClientErrors(t *testing.T) {
	hub, _ := newTestHub(t)
	opts := DefaultOptions()
	opts.SendBufferSize = 1
	hub.options = opts

	err := hub.SendToClient("missing", &Message{Type: MessageTypePong})
	assert.Equal(t, apperrors.ErrWebSocketClosed, apperrors.GetCode(err))

	c := NewClient(hub, nil)
	hub.registerClient(c)
	// connected 消息已占满缓冲
	err = hub.SendToClient(c.ID, &Message{Type: MessageTypePong})
	assert.Equal(t, apperrors.ErrWebSocketSend, apperrors.GetCode(err))
}

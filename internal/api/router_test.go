package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/imposter-game/internal/config"
	"github.com/wfunc/imposter-game/internal/game"
	"github.com/wfunc/imposter-game/internal/repository"
	ws "github.com/wfunc/imposter-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterTestSuite 路由测试套件
type RouterTestSuite struct {
	suite.Suite
	db      *gorm.DB
	repo    repository.GameRecordRepository
	manager *game.Manager
	hub     *ws.Hub
	router  *Router
	cancel  context.CancelFunc
	pingErr error
}

func (suite *RouterTestSuite) SetupTest() {
	suite.db = repository.SetupTestDB()
	suite.repo = repository.NewGameRecordRepository(suite.db)
	suite.manager = game.NewManager(&game.ManagerConfig{Logger: zap.NewNop()})
	suite.hub = ws.NewHub(suite.manager, ws.DefaultOptions(), zap.NewNop())
	suite.manager.SetNotifier(suite.hub)
	suite.pingErr = nil

	var ctx context.Context
	ctx, suite.cancel = context.WithCancel(context.Background())
	go suite.hub.Run(ctx)

	suite.router = NewRouter(&RouterConfig{
		Rooms:   suite.manager,
		Records: suite.repo,
		Hub:     suite.hub,
		DB: PingFunc(func(context.Context) error {
			return suite.pingErr
		}),
		WebSocket: config.WebSocketConfig{Path: "/ws"},
		Mode:      gin.TestMode,
		Logger:    zap.NewNop(),
	})
}

func (suite *RouterTestSuite) TearDownTest() {
	suite.cancel()
	suite.manager.Shutdown()
	repository.CleanupTestDB(suite.db)
}

func (suite *RouterTestSuite) get(path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	suite.router.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

// 测试健康检查
func (suite *RouterTestSuite) TestHealth() {
	w, body := suite.get("/health")
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("healthy", body["status"])
	suite.EqualValues(0, body["active_rooms"])

	suite.pingErr = errors.New("down")
	w, body = suite.get("/health")
	suite.Equal(http.StatusServiceUnavailable, w.Code)
	suite.Equal("unhealthy", body["status"])
}

// 测试房间查询
func (suite *RouterTestSuite) TestRooms() {
	code, err := suite.manager.CreateSession("h", "Host")
	suite.Require().NoError(err)

	w, body := suite.get("/api/v1/rooms")
	suite.Equal(http.StatusOK, w.Code)
	suite.EqualValues(1, body["active_rooms"])
	phases := body["phases"].(map[string]interface{})
	suite.EqualValues(1, phases["LOBBY"])

	w, body = suite.get("/api/v1/rooms/" + strings.ToLower(code))
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal(code, body["room_code"])
	suite.Equal("LOBBY", body["state"])

	w, body = suite.get("/api/v1/rooms/0000")
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal(false, body["success"])
	errBody := body["error"].(map[string]interface{})
	suite.EqualValues(2000, errBody["code"])
	suite.Nil(errBody["stack"])
}

// 测试对局记录
func (suite *RouterTestSuite) TestGames() {
	ctx := context.Background()
	now := time.Now()
	suite.Require().NoError(suite.repo.Create(ctx, repository.NewTestRecord("ABCD", game.WinnerCitizens, 2, now.Add(-time.Hour))))
	suite.Require().NoError(suite.repo.Create(ctx, repository.NewTestRecord("WXYZ", game.WinnerImposters, 3, now.Add(-time.Minute))))

	w, body := suite.get("/api/v1/games?page=1&page_size=1")
	suite.Equal(http.StatusOK, w.Code)
	games := body["games"].([]interface{})
	suite.Len(games, 1)
	suite.Equal("WXYZ", games[0].(map[string]interface{})["room_code"])
	pagination := body["pagination"].(map[string]interface{})
	suite.EqualValues(2, pagination["total"])

	w, body = suite.get("/api/v1/games?room_code=ABCD")
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(body["games"].([]interface{}), 1)

	w, body = suite.get("/api/v1/games/stats")
	suite.Equal(http.StatusOK, w.Code)
	suite.EqualValues(2, body["total_games"])
	suite.EqualValues(1, body["citizen_wins"])
	suite.EqualValues(1, body["imposter_wins"])
	suite.InDelta(2.5, body["average_rounds"], 0.001)

	w, _ = suite.get("/api/v1/games/stats?days=-1")
	suite.Equal(http.StatusBadRequest, w.Code)

	w, body = suite.get("/api/v1/games/1")
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(body["players"].([]interface{}), 3)

	w, _ = suite.get("/api/v1/games/999")
	suite.Equal(http.StatusNotFound, w.Code)

	w, _ = suite.get("/api/v1/games/abc")
	suite.Equal(http.StatusBadRequest, w.Code)
}

// 测试未知接口
func (suite *RouterTestSuite) TestNoRoute() {
	w, body := suite.get("/api/v1/unknown")
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal(false, body["success"])
}

// 测试通过WebSocket完成建房、加入和开始
func (suite *RouterTestSuite) TestWebSocketFlow() {
	server := httptest.NewServer(suite.router.Handler())
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	dial := func() (*websocket.Conn, string) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		suite.Require().NoError(err)
		msg := readType(suite.T(), conn, ws.MessageTypeConnected)
		var data ws.ConnectedData
		suite.Require().NoError(json.Unmarshal(msg.Data, &data))
		suite.Require().NotEmpty(data.PlayerID)
		return conn, data.PlayerID
	}

	host, hostID := dial()
	defer host.Close()
	writeFrame(suite.T(), host, ws.MessageTypeCreateGame, &ws.CreateGameRequest{PlayerName: "Host"})
	msg := readType(suite.T(), host, ws.MessageTypeGameCreated)
	var created ws.GameCreatedData
	suite.Require().NoError(json.Unmarshal(msg.Data, &created))

	var conns []*websocket.Conn
	for _, name := range []string{"Ann", "Bob"} {
		conn, _ := dial()
		defer conn.Close()
		writeFrame(suite.T(), conn, ws.MessageTypeJoinGame, &ws.JoinGameRequest{RoomCode: created.RoomCode, PlayerName: name})
		conns = append(conns, conn)
	}

	writeFrame(suite.T(), host, ws.MessageTypeStartGame, nil)
	for _, conn := range append([]*websocket.Conn{host}, conns...) {
		for {
			msg := readType(suite.T(), conn, ws.MessageTypePrivateData)
			var priv game.PrivateSnapshot
			suite.Require().NoError(json.Unmarshal(msg.Data, &priv))
			if priv.Word != "" {
				break
			}
		}
	}

	snap, err := suite.manager.Snapshot(created.RoomCode)
	suite.Require().NoError(err)
	suite.Equal(game.PhaseWordAssignment, snap.State)
	suite.Equal(hostID, snap.HostID)

	// 关闭连接即断开
	host.Close()
	suite.Eventually(func() bool {
		snap, err := suite.manager.Snapshot(created.RoomCode)
		return err == nil && snap.HostID != hostID
	}, 2*time.Second, 20*time.Millisecond)
}

func writeFrame(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	frame := map[string]interface{}{"type": msgType}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func readType(t *testing.T, conn *websocket.Conn, msgType string) *ws.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return &msg
		}
		assert.NotEqual(t, ws.MessageTypeError, msg.Type, string(msg.Data))
	}
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

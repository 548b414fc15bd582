package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pulseroom/internal/app"
	"pulseroom/internal/config"
)

const readTimeout = 3 * time.Second

// testServer runs the whole application on a loopback port with a
// temporary SQLite database.
type testServer struct {
	app     *app.Application
	baseURL string
	wsURL   string
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.Auth.Secret = "integration-test-secret"

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if err := application.Serve(context.Background(), listener); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	addr := application.GetAddr()
	return &testServer{
		app:     application,
		baseURL: "http://" + addr,
		wsURL:   "ws://" + addr + "/ws",
	}
}

type apiResponse struct {
	Detail string          `json:"detail"`
	Data   json.RawMessage `json:"data"`
}

func (s *testServer) request(t *testing.T, method, path, body, token string) (int, apiResponse) {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s returned invalid JSON: %v", method, path, err)
	}
	return resp.StatusCode, out
}

type createdRoom struct {
	RoomCode string `json:"room_code"`
	RoomID   int64  `json:"room_id"`
	Token    string `json:"token"`
}

type joinedRoom struct {
	Token     string `json:"token"`
	RoomCode  string `json:"room_code"`
	SessionID int64  `json:"session_id"`
}

func (s *testServer) createRoom(t *testing.T, nickname string) createdRoom {
	t.Helper()
	status, resp := s.request(t, http.MethodPost, "/api/create", `{"nickname":"`+nickname+`","name":"Biology"}`, "")
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", status, resp.Detail)
	}
	var room createdRoom
	if err := json.Unmarshal(resp.Data, &room); err != nil {
		t.Fatalf("invalid create data: %v", err)
	}
	return room
}

func (s *testServer) joinRoom(t *testing.T, nickname, code string) joinedRoom {
	t.Helper()
	status, resp := s.request(t, http.MethodPost, "/api/join", `{"nickname":"`+nickname+`","code":"`+code+`"}`, "")
	if status != http.StatusOK {
		t.Fatalf("join status = %d (%s)", status, resp.Detail)
	}
	var joined joinedRoom
	if err := json.Unmarshal(resp.Data, &joined); err != nil {
		t.Fatalf("invalid join data: %v", err)
	}
	return joined
}

// client is one browser tab on the websocket.
type client struct {
	t    *testing.T
	name string
	conn *websocket.Conn
}

type event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *testServer) dial(t *testing.T, name, token string) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("%s dial error = %v", name, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, name: name, conn: conn}
}

func (c *client) send(name string, data interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(map[string]interface{}{"event": name, "data": data}); err != nil {
		c.t.Fatalf("%s send %s error = %v", c.name, name, err)
	}
}

// expect reads the next event and requires it to be name. The payload is
// decoded into out when out is non-nil.
func (c *client) expect(name string, out interface{}) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	var ev event
	if err := c.conn.ReadJSON(&ev); err != nil {
		c.t.Fatalf("%s waiting for %s: %v", c.name, name, err)
	}
	if ev.Event != name {
		c.t.Fatalf("%s got %s (%s), want %s", c.name, ev.Event, string(ev.Data), name)
	}
	if out != nil {
		if err := json.Unmarshal(ev.Data, out); err != nil {
			c.t.Fatalf("%s invalid %s payload %s: %v", c.name, name, string(ev.Data), err)
		}
	}
}

// expectClosed requires the server to hang up without sending more events.
func (c *client) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		c.t.Fatalf("%s expected close, got %s", c.name, string(data))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.t.Fatalf("%s was not disconnected", c.name)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func websocketDial(url string) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		_ = conn.Close()
	}
	return conn, resp, err
}

package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
)

func newWSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newFakeStore()
	store.users["u1"] = storage.User{ID: "u1", Name: "name-u1"}
	srv, _ := newTestServer(store, nil, 0)
	h := NewWSHandler(srv, srv.gate, 300*time.Millisecond)

	router := gin.New()
	router.GET("/ws", h.Handle)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func readWSFrame(t *testing.T, ws *websocket.Conn) *Frame {
	t.Helper()
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("bad frame %s: %v", raw, err)
	}
	return f
}

func wantConnected(t *testing.T, f *Frame) {
	t.Helper()
	if f.Event != EvtConnected {
		t.Fatalf("event = %s, want %s (%v)", f.Event, EvtConnected, f.Data)
	}
	if u, _ := f.Data["user"].(map[string]any); u["id"] != "u1" {
		t.Errorf("connected user = %v", f.Data)
	}
}

// A query-string token authenticates the upgrade itself; the client may wait
// passively and still receive the connected ack.
func TestHandshakeQueryToken(t *testing.T) {
	ts := newWSTestServer(t)
	ws := dialWS(t, ts, "/ws?token=tok", nil)
	wantConnected(t, readWSFrame(t, ws))
}

func TestHandshakeAuthorizationHeader(t *testing.T) {
	ts := newWSTestServer(t)
	ws := dialWS(t, ts, "/ws", http.Header{"Authorization": {"Bearer tok"}})
	wantConnected(t, readWSFrame(t, ws))
}

// Without a request token the client authenticates with a first auth frame.
func TestHandshakeAuthFrame(t *testing.T) {
	ts := newWSTestServer(t)
	ws := dialWS(t, ts, "/ws", nil)
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"auth","data":{"token":"tok"}}`)); err != nil {
		t.Fatal(err)
	}
	wantConnected(t, readWSFrame(t, ws))
}

func TestHandshakeTimeoutWithoutToken(t *testing.T) {
	ts := newWSTestServer(t)
	ws := dialWS(t, ts, "/ws", nil)

	f := readWSFrame(t, ws)
	if f.Event != EvtError || dataInt(f, "code") != errs.CodeAuth {
		t.Fatalf("got %s/%v, want error %d", f.Event, f.Data, errs.CodeAuth)
	}
	// the server closes the socket after the rejection
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("socket still open after auth rejection")
	}
}

func TestHandshakeNonAuthFirstFrame(t *testing.T) {
	ts := newWSTestServer(t)
	ws := dialWS(t, ts, "/ws", nil)
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"join","data":{"roomId":"general"}}`)); err != nil {
		t.Fatal(err)
	}
	f := readWSFrame(t, ws)
	if f.Event != EvtError || dataInt(f, "code") != errs.CodeAuth {
		t.Fatalf("got %s/%v, want error %d", f.Event, f.Data, errs.CodeAuth)
	}
}

package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/decode"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/ids"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/safe"
)

const maxFrameBytes = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// origin policy is enforced at the proxy layer
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler upgrades HTTP requests and drives the per-connection session:
// handshake auth, the read loop, and teardown.
type WSHandler struct {
	srv         *Server
	gate        *AuthGate
	authTimeout time.Duration
}

func NewWSHandler(srv *Server, gate *AuthGate, authTimeout time.Duration) *WSHandler {
	if authTimeout <= 0 {
		authTimeout = 10 * time.Second
	}
	return &WSHandler{srv: srv, gate: gate, authTimeout: authTimeout}
}

// Handle is the gin endpoint for GET /ws.
func (h *WSHandler) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade failed from %s: %v", c.ClientIP(), err)
		return
	}
	safe.SafeGo(func() {
		h.serve(c.Request, ws)
	})
}

func (h *WSHandler) serve(r *http.Request, ws *websocket.Conn) {
	ws.SetReadLimit(maxFrameBytes)

	user, err := h.handshake(r, ws)
	if err != nil {
		ce := errs.AsCode(err)
		logger.Debugf("[ws] handshake rejected from %s: %v", r.RemoteAddr, err)
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, BuildError(ce.Code, ce.Msg))
		_ = ws.Close()
		return
	}

	conn := NewConn(ids.GenerateString(), ws, r.UserAgent(), h.srv.reg.Clock())
	conn.UserID = user.ID
	conn.UserName = user.Name

	ctx := context.Background()
	if err := h.srv.Attach(ctx, conn); err != nil {
		ce := errs.AsCode(err)
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, BuildError(ce.Code, ce.Msg))
		_ = ws.Close()
		return
	}

	safe.SafeGo(conn.writePump)
	conn.Enqueue(BuildConnected(user))
	logger.Infof("[ws] connected conn=%s user=%s devices=%d",
		conn.ID, conn.UserID, len(h.srv.reg.UserConns(conn.UserID)))

	h.readLoop(ctx, conn)
	h.srv.Detach(ctx, conn)
	logger.Infof("[ws] disconnected conn=%s user=%s", conn.ID, conn.UserID)
}

// handshake authenticates the socket before it joins the registry. A token
// carried on the upgrade request itself (Authorization header or ?token=)
// authenticates immediately, so clients holding one may wait passively for
// the connected ack. Only when the request carries no token does the client
// get authTimeout to send an auth{token} frame.
func (h *WSHandler) handshake(r *http.Request, ws *websocket.Conn) (*storage.User, error) {
	if token, err := ResolveToken("", r); err == nil {
		return h.gate.Authenticate(r.Context(), token)
	}

	_ = ws.SetReadDeadline(time.Now().Add(h.authTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return nil, errs.ErrAuth.WrapMsg("no auth frame before deadline: %v", err)
	}
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("first frame: %v", err)
	}
	if f.Event != EvtAuth {
		return nil, errs.ErrAuth.WithDetail("no token in payload, header or query")
	}
	p, err := decode.DecodeMap[AuthPayload](f.Data)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("auth payload: %v", err)
	}
	token, err := ResolveToken(p.Token, r)
	if err != nil {
		return nil, err
	}
	return h.gate.Authenticate(r.Context(), token)
}

// readLoop pulls frames until the socket dies. Liveness rides on pongs: the
// writer pings every pingPeriod and a missing pong for pongWait ends the read.
func (h *WSHandler) readLoop(ctx context.Context, c *Conn) {
	_ = c.WS.SetReadDeadline(time.Now().Add(pongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.WS.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("[ws] read ended conn=%s: %v", c.ID, err)
			}
			return
		}
		_ = c.WS.SetReadDeadline(time.Now().Add(pongWait))

		f, err := ParseFrame(raw)
		if err != nil {
			h.srv.sendErr(c, errs.ErrValidation.WrapMsg("bad frame: %v", err))
			continue
		}
		h.srv.Dispatch(ctx, c, f)
	}
}

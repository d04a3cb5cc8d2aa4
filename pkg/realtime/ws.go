package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/lifebank/notifykit/pkg/logger"
)

// RecipientParam names the query parameter identifying the client.
const RecipientParam = "recipientId"

const writeTimeout = 10 * time.Second

// ServeWS upgrades the request to a WebSocket and streams the recipient's
// events as JSON text frames until either side closes. Client frames other
// than control frames are ignored.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	recipientID := r.URL.Query().Get(RecipientParam)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.logger.WarnContext(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := g.Connect(ctx, recipientID)
	defer g.Disconnect(c)

	g.logger.DebugContext(ctx, "websocket connected", logger.RecipientID(recipientID))

	// reader: detects the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(msg.Data)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wsutil.WriteServerText(conn, data); err != nil {
				g.logger.DebugContext(ctx, "websocket write failed", logger.Error(err))
				return
			}
		}
	}
}

// ServeWSHandler returns ServeWS as an http.Handler.
func (g *Gateway) ServeWSHandler() http.Handler {
	return http.HandlerFunc(g.ServeWS)
}

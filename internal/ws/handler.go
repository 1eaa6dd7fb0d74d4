package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/DoyleJ11/codelobby/internal/lobby"
	"github.com/DoyleJ11/codelobby/internal/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	outboxSize   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
)

type Options struct {
	// AllowedOrigins are full origins ("http://localhost:3000") or "*".
	AllowedOrigins []string
	Logger         *zap.Logger
}

func Handler(lobbies Lobbies, games Games, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")
	accept := &websocket.AcceptOptions{OriginPatterns: originPatterns(opts.AllowedOrigins)}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, accept)
		if err != nil {
			log.Warn("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		connID := uuid.NewString()
		sub := lobby.NewSubscriber(connID, outboxSize)
		sess := NewSession(connID, sub, lobbies, games, log)
		log.Debug("connected", zap.String("conn_id", connID), zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeLoop(ctx, cancel, conn, sub, log)

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("read", zap.String("conn_id", connID), zap.Error(err))
					}
				}
				break
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				sub.Offer(types.ServerMessage{
					Event: types.EvtError,
					Data:  types.ErrorPayload{Message: "bad json"},
				})
				continue
			}
			sess.Handle(ctx, cm)
		}

		cleanup, done := context.WithTimeout(context.Background(), 5*time.Second)
		sess.Close(cleanup)
		done()
		conn.Close(websocket.StatusNormalClosure, "")
		log.Debug("disconnected", zap.String("conn_id", connID))
	}
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *lobby.Subscriber, log *zap.Logger) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sub.Done():
			conn.Close(websocket.StatusPolicyViolation, "connection too slow")
			return

		case msg := <-sub.Send():
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				log.Debug("write", zap.String("conn_id", sub.ConnID), zap.Error(err))
				return
			}

		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping", zap.String("conn_id", sub.ConnID), zap.Error(err))
				return
			}
		}
	}
}

// originPatterns turns configured origins into the host patterns Accept
// matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

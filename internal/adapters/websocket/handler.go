// Package websocket serves the live submission feed over a small
// STOMP-like JSON frame protocol.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/fanout"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

const (
	writeTimeout = 5 * time.Second
	// Clients see the same text for unknown and forbidden topics.
	rejectedMessage = "subscription rejected"
)

// FrameAuthorizer inspects every inbound frame before it is handled.
type FrameAuthorizer interface {
	AuthorizeFrame(ctx context.Context, sc session.Context, command, destination string) (topics.Decision, error)
}

type Handler struct {
	hub     *fanout.Hub
	frames  FrameAuthorizer
	logger  *slog.Logger
	origins []string
}

func NewHandler(hub *fanout.Hub, frames FrameAuthorizer, logger *slog.Logger, originPatterns []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, frames: frames, logger: logger, origins: originPatterns}
}

// ServeHTTP upgrades the request and runs one connection until either side
// closes it. The session comes from the HTTP middleware chain.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket accept failed",
			"module", "websocket",
			"layer", "adapter",
			"error", err,
		)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sc := session.FromContext(r.Context())
	sub := h.hub.Connect(sc)
	defer h.hub.Disconnect(sub)

	go h.pump(ctx, cancel, conn, sub)
	status, reason := h.readLoop(ctx, conn, sub)
	_ = conn.Close(status, reason)
}

// pump is the only reader of the subscriber queue. A closed queue means the
// hub dropped this subscriber.
func (h *Handler) pump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *fanout.Subscriber) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if err := h.write(ctx, conn, messageFrame(msg)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sub *fanout.Subscriber) (websocket.StatusCode, string) {
	connected := false
	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
				return websocket.StatusNormalClosure, ""
			}
			return websocket.StatusUnsupportedData, "malformed frame"
		}
		command := strings.ToUpper(strings.TrimSpace(frame.Command))

		if command != CommandConnect && !connected {
			_ = h.write(ctx, conn, errorFrame(frame.Receipt, "CONNECT required"))
			return websocket.StatusPolicyViolation, "not connected"
		}

		decision, err := h.frames.AuthorizeFrame(ctx, sub.Session(), command, frame.Destination)
		if err != nil {
			_ = h.write(ctx, conn, errorFrame(frame.Receipt, "temporarily unavailable"))
			continue
		}
		if !decision.Allowed() {
			_ = h.write(ctx, conn, errorFrame(frame.Receipt, rejectedMessage))
			continue
		}

		switch command {
		case CommandConnect:
			connected = true
			_ = h.write(ctx, conn, Frame{Command: CommandConnected, Receipt: frame.Receipt})
		case CommandSubscribe:
			h.subscribe(ctx, conn, sub, frame)
		case CommandUnsubscribe:
			h.hub.Unsubscribe(sub, frame.ID)
			h.receipt(ctx, conn, frame)
		case CommandSend:
			// Clients have nothing to publish; the frame is accepted and dropped.
			h.receipt(ctx, conn, frame)
		case CommandDisconnect:
			h.receipt(ctx, conn, frame)
			return websocket.StatusNormalClosure, ""
		default:
			_ = h.write(ctx, conn, errorFrame(frame.Receipt, "unknown command"))
		}
	}
}

func (h *Handler) subscribe(ctx context.Context, conn *websocket.Conn, sub *fanout.Subscriber, frame Frame) {
	if strings.TrimSpace(frame.ID) == "" || strings.TrimSpace(frame.Destination) == "" {
		_ = h.write(ctx, conn, errorFrame(frame.Receipt, "id and destination are required"))
		return
	}
	decision, err := h.hub.Subscribe(ctx, sub, frame.ID, frame.Destination)
	if err != nil {
		_ = h.write(ctx, conn, errorFrame(frame.Receipt, "temporarily unavailable"))
		return
	}
	if !decision.Allowed() {
		_ = h.write(ctx, conn, errorFrame(frame.Receipt, rejectedMessage))
		return
	}
	h.receipt(ctx, conn, frame)
}

func (h *Handler) receipt(ctx context.Context, conn *websocket.Conn, frame Frame) {
	if frame.Receipt == "" {
		return
	}
	_ = h.write(ctx, conn, Frame{Command: CommandReceipt, Receipt: frame.Receipt, ID: frame.ID})
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, frame Frame) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, frame)
}

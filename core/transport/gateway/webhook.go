package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	coreconfig "github.com/swiftline/courierbot/core/config"
	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/logger"
	"github.com/swiftline/courierbot/core/transport"
)

const maxWebhookBody = 1 << 20

// inboundPayload mirrors the gateway's webhook envelope. Unknown message
// types are skipped, not rejected: the gateway keeps delivering whatever
// the user sent.
type inboundPayload struct {
	Messages []inboundMessage `json:"messages"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Profile   struct {
		Name string `json:"name"`
	} `json:"profile"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Image struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
	Document struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	} `json:"document"`
}

// ParseWebhook decodes one webhook body into engine events. Messages of
// unsupported types are dropped; an empty batch is not an error.
func ParseWebhook(body []byte) ([]conversation.MessageEvent, error) {
	var payload inboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("gateway: decode webhook: %w", err)
	}

	events := make([]conversation.MessageEvent, 0, len(payload.Messages))
	for _, msg := range payload.Messages {
		if msg.From == "" {
			continue
		}
		ev := conversation.MessageEvent{
			Platform: transport.PlatformGateway,
			Identity: domain.PlatformIdentity{
				Platform:   transport.PlatformGateway,
				ExternalID: msg.From,
				Name:       msg.Profile.Name,
				Phone:      msg.From,
				ChatTarget: msg.From,
			},
		}
		switch msg.Type {
		case "text":
			ev.Text = msg.Text.Body
		case "image":
			ev.MediaRef = msg.Image.ID
			ev.Text = msg.Image.Caption
		case "document":
			ev.MediaRef = msg.Document.ID
		default:
			logger.GW.Debug("skipping unsupported message type",
				slog.String("event", "gw.webhook"),
				slog.String("type", msg.Type),
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Server receives gateway webhooks, drives the engine and pushes replies
// back through the Client.
type Server struct {
	cfg    coreconfig.GatewayConfig
	engine *conversation.Engine
	client *Client
	srv    *http.Server
}

// NewServer wires the webhook listener. The client may be shared with
// other outbound callers.
func NewServer(cfg coreconfig.GatewayConfig, engine *conversation.Engine, client *Client) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("gateway: engine is required")
	}
	if client == nil {
		return nil, fmt.Errorf("gateway: client is required")
	}
	s := &Server{cfg: cfg, engine: engine, client: client}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Run serves the webhook endpoint until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.GW.Info("webhook listening",
			slog.String("event", "gw.listen"),
			slog.String("addr", s.cfg.Listen),
		)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerification(w, r)
	case http.MethodPost:
		s.handleDelivery(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification answers the gateway's subscription handshake: echo
// the challenge when the verify token matches.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != s.cfg.VerifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	events, err := ParseWebhook(body)
	if err != nil {
		logger.GW.Warn("malformed webhook",
			slog.String("event", "gw.webhook"),
			slog.String("status", "bad_request"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	// Ack first, then process: the gateway retries non-2xx deliveries and
	// the conversation work must not block its delivery loop.
	w.WriteHeader(http.StatusOK)

	// One goroutine per sender keeps a sender's messages in arrival order;
	// two quick wizard answers in one batch must land as two fields, not
	// race for the same step.
	for _, batch := range groupBySender(events) {
		go func(batch []conversation.MessageEvent) {
			for _, ev := range batch {
				s.process(ev)
			}
		}(batch)
	}
}

// groupBySender splits a batch into per-sender slices, preserving the
// arrival order of each sender's messages and of the senders themselves.
func groupBySender(events []conversation.MessageEvent) [][]conversation.MessageEvent {
	index := make(map[string]int, len(events))
	groups := make([][]conversation.MessageEvent, 0, len(events))
	for _, ev := range events {
		i, ok := index[ev.Identity.ExternalID]
		if !ok {
			i = len(groups)
			index[ev.Identity.ExternalID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ev)
	}
	return groups
}

func (s *Server) process(ev conversation.MessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := s.engine.HandleMessage(ctx, ev)
	if err != nil {
		logger.GW.Error("engine call failed",
			slog.String("event", "gw.message"),
			slog.String("status", "error"),
			slog.String("from", ev.Identity.ExternalID),
			slog.String("err", err.Error()),
		)
		return
	}

	target := ev.Identity.ChatTarget
	if res.Response.MediaRef != "" {
		if err := s.client.SendMedia(ctx, target, res.Response.MediaRef, res.Response.MediaCaption); err != nil {
			logger.GW.Error("media reply failed",
				slog.String("event", "gw.send"),
				slog.String("status", "error"),
				slog.String("err", err.Error()),
			)
		}
	}
	if res.Response.Text == "" {
		return
	}
	if err := s.client.SendText(ctx, target, res.Response.Text, res.Response.Keyboard); err != nil {
		logger.GW.Error("reply failed",
			slog.String("event", "gw.send"),
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
	}
}

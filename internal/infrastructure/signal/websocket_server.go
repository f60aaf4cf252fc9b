package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/pkg/config"
	apperrors "pttrelay/pkg/errors"
	ctxlog "pttrelay/pkg/logger"
	"pttrelay/pkg/tracing"
	"pttrelay/pkg/utils"
	"pttrelay/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	MessageJoinChannel  = "joinChannel"
	MessageLeaveChannel = "leaveChannel"
	MessagePTTStatus    = "pttStatus"
	MessageAudioData    = "audioData"
	MessagePing         = "ping"
)

// Message is the JSON envelope of every inbound message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// channelRef names a channel either directly or by frequency in MHz.
type channelRef struct {
	ChannelID *string  `json:"channelId"`
	Frequency *float64 `json:"frequency"`
}

func (r channelRef) channelID() (domain.ChannelID, error) {
	if r.ChannelID != nil {
		return domain.ChannelID(*r.ChannelID), nil
	}
	if r.Frequency != nil {
		if err := validation.ValidateFrequency(*r.Frequency); err != nil {
			return "", err
		}
		return domain.ChannelIDFromFrequency(*r.Frequency), nil
	}
	return "", fmt.Errorf("channelId is required")
}

type PTTStatusPayload struct {
	channelRef
	Active *bool `json:"active"`
}

type AudioDataPayload struct {
	channelRef
	Reference domain.Reference `json:"reference"`
}

type Options struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	SendQueueSize   int
	MaxMessageBytes int64

	// MessagesPerSecond <= 0 disables per-connection rate limiting.
	MessagesPerSecond float64
	Burst             int

	// MaxConnections <= 0 means unlimited.
	MaxConnections int
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval:    25 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendQueueSize:   64,
		MaxMessageBytes: 16 * 1024,
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PingInterval:    cfg.Signal.PingInterval,
		PongTimeout:     cfg.Signal.PongTimeout,
		WriteTimeout:    cfg.Signal.WriteTimeout,
		SendQueueSize:   cfg.Signal.SendQueueSize,
		MaxMessageBytes: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		MaxConnections:  cfg.RateLimiting.WebSocket.MaxConcurrent,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		opts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		opts.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	return opts
}

type WebSocketServer struct {
	registry    ports.ConnectionRegistry
	roster      ports.RosterService
	broadcaster ports.Broadcaster
	media       ports.MediaService

	opts     Options
	upgrader websocket.Upgrader
	slots    chan struct{}
	clock    utils.Clock

	clients map[domain.ConnectionID]*client
	mu      sync.RWMutex
	wg      sync.WaitGroup

	logger    *zap.SugaredLogger
	ctxLogger *ctxlog.ContextLogger
}

func NewWebSocketServer(
	registry ports.ConnectionRegistry,
	roster ports.RosterService,
	broadcaster ports.Broadcaster,
	media ports.MediaService,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	s := &WebSocketServer{
		registry:    registry,
		roster:      roster,
		broadcaster: broadcaster,
		media:       media,
		opts:        opts,
		clock:       utils.Now,
		clients:     make(map[domain.ConnectionID]*client),
		logger:      logger,
		ctxLogger:   ctxlog.NewContextLogger(logger.Desugar()),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if opts.MaxConnections > 0 {
		s.slots = make(chan struct{}, opts.MaxConnections)
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		default:
			s.logger.Warnw("websocket connection limit reached", "remote_addr", r.RemoteAddr)
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	c := newClient(conn, s.opts.SendQueueSize)
	c.id = s.registry.OnConnect(r.RemoteAddr, c)

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := c.writePump(s.opts.PingInterval, s.opts.WriteTimeout); err != nil {
			s.logger.Debugw("websocket write failed", "connection_id", c.id, "error", err)
		}
	}()

	c.Send(domain.NewEvent(domain.EventConnected, domain.ConnectedPayload{ConnectionID: c.id}))
	s.logger.Infow("websocket connected", "connection_id", c.id, "remote_addr", r.RemoteAddr)

	s.readPump(c)

	s.roster.Disconnect(context.Background(), c.id, "closed")
	c.Close()
	<-writerDone

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	s.logger.Infow("websocket disconnected", "connection_id", c.id)
}

func (s *WebSocketServer) readPump(c *client) {
	conn := c.conn
	if s.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.opts.MaxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		s.registry.OnActivity(c.id)
		return nil
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}
	ctx := ctxlog.WithConnectionID(context.Background(), string(c.id))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) && !c.closed() {
				s.logger.Infow("websocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		s.registry.OnActivity(c.id)

		if limiter != nil && !limiter.Allow() {
			s.sendError(c.id, apperrors.NewRateLimitError())
			continue
		}

		s.handleMessage(ctx, c.id, data)
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, connID domain.ConnectionID, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		s.logger.Infow("malformed message", "connection_id", connID, "error", err)
		s.sendError(connID, apperrors.NewProtocolError("malformed message"))
		return
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(connID))
	defer span.End()
	ctx = ctxlog.WithTraceID(ctx, tracing.TraceID(ctx))

	var err error
	switch msg.Type {
	case MessageJoinChannel:
		err = s.handleJoin(ctx, connID, msg.Payload)
	case MessageLeaveChannel:
		err = s.handleLeave(ctx, connID, msg.Payload)
	case MessagePTTStatus:
		err = s.handlePTTStatus(ctx, connID, msg.Payload)
	case MessageAudioData:
		err = s.handleAudioData(ctx, connID, msg.Payload)
	case MessagePing:
		s.broadcaster.Send(connID, domain.NewEvent(domain.EventPong, domain.Pong{
			Timestamp: utils.Millis(s.clock()),
		}))
	default:
		err = apperrors.NewProtocolError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}

	if err == nil {
		return
	}
	tracing.RecordError(ctx, err)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		s.ctxLogger.Sugar(ctx).Infow("message rejected", "type", msg.Type, "error", err)
		s.sendError(connID, appErr)
		return
	}
	s.ctxLogger.LogError(ctx, err, "message handling failed", zap.String("type", msg.Type))
	s.sendError(connID, apperrors.NewInternalError("message could not be processed"))
}

// parseChannel accepts a bare channel id string, a bare frequency number,
// or an object with channelId or frequency.
func parseChannel(raw json.RawMessage) (domain.ChannelID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("channelId is required")
	}

	var ref channelRef
	switch raw[0] {
	case '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", err
		}
		ref.ChannelID = &id
	case '{':
		if err := json.Unmarshal(raw, &ref); err != nil {
			return "", fmt.Errorf("channelId must be a string")
		}
	default:
		var mhz float64
		if err := json.Unmarshal(raw, &mhz); err != nil {
			return "", fmt.Errorf("channelId must be a string")
		}
		ref.Frequency = &mhz
	}
	return ref.channelID()
}

func (s *WebSocketServer) handleJoin(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	channelID, err := parseChannel(raw)
	if err != nil {
		s.logger.Infow("join rejected", "connection_id", connID, "error", err)
		s.broadcaster.Send(connID, domain.NewEvent(domain.EventJoinConfirmation, domain.JoinConfirmation{
			Success: false,
			Error:   err.Error(),
		}))
		return nil
	}

	tracing.AddSpanAttributes(ctx, tracing.ChannelIDKey.String(string(channelID)))

	// Join answers malformed ids with a failed confirmation itself.
	if err := s.roster.Join(ctx, connID, channelID); err != nil && !errors.Is(err, domain.ErrInvalidChannelID) {
		return err
	}
	return nil
}

func (s *WebSocketServer) handleLeave(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	channelID, err := parseChannel(raw)
	if err != nil {
		return apperrors.NewProtocolError(err.Error())
	}

	tracing.AddSpanAttributes(ctx, tracing.ChannelIDKey.String(string(channelID)))

	if err := s.roster.Leave(ctx, connID, channelID); err != nil {
		if errors.Is(err, domain.ErrInvalidChannelID) {
			return apperrors.NewProtocolError(err.Error())
		}
		return err
	}
	return nil
}

func (s *WebSocketServer) handlePTTStatus(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var payload PTTStatusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apperrors.NewProtocolError("invalid pttStatus payload")
	}
	if payload.Active == nil {
		return apperrors.NewProtocolError("active is required")
	}
	channelID, err := payload.channelID()
	if err != nil {
		return apperrors.NewProtocolError(err.Error())
	}

	tracing.AddSpanAttributes(ctx, tracing.ChannelIDKey.String(string(channelID)))

	// Non-members are logged by the broadcaster and otherwise ignored.
	if err := s.broadcaster.BroadcastPTT(ctx, channelID, connID, *payload.Active); err != nil && !errors.Is(err, domain.ErrNotMember) {
		return err
	}
	return nil
}

func (s *WebSocketServer) handleAudioData(ctx context.Context, connID domain.ConnectionID, raw json.RawMessage) error {
	var payload AudioDataPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apperrors.NewProtocolError("invalid audioData payload")
	}
	if payload.Reference == "" {
		return apperrors.NewProtocolError("reference is required")
	}
	channelID, err := payload.channelID()
	if err != nil {
		return apperrors.NewProtocolError(err.Error())
	}

	tracing.AddSpanAttributes(ctx,
		tracing.ChannelIDKey.String(string(channelID)),
		tracing.ReferenceKey.String(string(payload.Reference)),
	)

	if _, err := s.media.Lookup(ctx, payload.Reference); err != nil {
		if domain.IsNotFound(err) {
			return apperrors.NewExpiredError("audio reference")
		}
		return apperrors.NewStorageError(err)
	}

	if err := s.broadcaster.RelayAudio(ctx, channelID, connID, payload.Reference); err != nil && !errors.Is(err, domain.ErrNotMember) {
		return err
	}
	return nil
}

func (s *WebSocketServer) sendError(connID domain.ConnectionID, appErr *apperrors.AppError) {
	s.broadcaster.Send(connID, domain.NewEvent(domain.EventError, domain.ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	}))
}

// ConnectionCount returns the number of upgraded connections being served.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes every connection and waits for their handlers to finish.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, c := range s.clients {
		c.Close()
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
)

type Config struct {
	Addr            string        `default:":8080"`
	ReadLimit       int64         `split_words:"true" default:"65536"`
	WriteTimeout    time.Duration `split_words:"true" default:"10s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	// AllowedOrigins empty accepts any origin.
	AllowedOrigins []string `split_words:"true"`
}

// SessionBus is what the transport needs from the message bus.
type SessionBus interface {
	Publish(ctx context.Context, msg contractx.Message, topic contractx.TopicID) error
	CloseSession(sessionID string)
}

type Server struct {
	bus      SessionBus
	hub      *Hub
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	cfg      Config
	logger   zerolog.Logger

	newSessionID func() string
}

func NewServer(bus SessionBus, hub *Hub, gatherer prometheus.Gatherer, cfg Config) (*Server, error) {
	if bus == nil {
		return nil, errors.New("message bus is required")
	}
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 65536
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		bus:          bus,
		hub:          hub,
		gatherer:     gatherer,
		cfg:          cfg,
		logger:       logx.Component("transport"),
		newSessionID: uuid.NewString,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/chat", s.chat).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down and closes open chats.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.hub.CloseAll()
	if err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// inbound accepts plain text or {"content": "..."}.
type inbound struct {
	Content string `json:"content"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessionID := s.newSessionID()
	logger := s.logger.With().Str("session_id", sessionID).Logger()
	s.hub.add(sessionID, ws)
	logger.Info().Str("remote", r.RemoteAddr).Msg("chat connected")

	ctx := context.WithoutCancel(r.Context())
	defer s.disconnect(ctx, sessionID, ws)

	ws.SetReadLimit(s.cfg.ReadLimit)
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("chat read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		text := parseInbound(data)
		if text == "" {
			continue
		}

		msg := contractx.EndUserMessage{Source: contractx.SourceUser, Content: text}
		topic := contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: sessionID}
		if err := s.bus.Publish(ctx, msg, topic); err != nil {
			logger.Error().Err(err).Msg("publish user message")
			return
		}
	}
}

func (s *Server) disconnect(ctx context.Context, sessionID string, ws *websocket.Conn) {
	s.hub.remove(sessionID)
	_ = ws.Close()

	// The end goes through the session's user_proxy like every user message,
	// so it cannot overtake one still queued there.
	done := contractx.HandoffMessage{Source: contractx.AgentTypeUserProxy.String(), Complete: true}
	if err := s.bus.Publish(ctx, done, contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: sessionID}); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("publish session end")
	}
	s.bus.CloseSession(sessionID)
	s.logger.Info().Str("session_id", sessionID).Msg("chat disconnected")
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func parseInbound(data []byte) string {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var in inbound
		if err := json.Unmarshal(data, &in); err == nil {
			return strings.TrimSpace(in.Content)
		}
	}
	return text
}

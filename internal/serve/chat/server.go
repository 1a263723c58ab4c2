// Package chat serves the tutoring chat API: streamed chat turns over SSE,
// resumable streams over SSE or WebSocket, history and deletion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/samsaffron/tutor/internal/auth"
	"github.com/samsaffron/tutor/internal/chaterr"
	"github.com/samsaffron/tutor/internal/config"
	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/store"
	"github.com/samsaffron/tutor/internal/usage"
)

// CatalogSource supplies model metadata for usage enrichment.
type CatalogSource interface {
	Get(ctx context.Context) *usage.Catalog
}

// Options wires a Server's collaborators.
type Options struct {
	Config   *config.Config
	Store    store.Store
	Models   *llm.ModelRegistry
	Auth     *auth.Authenticator
	Catalog  CatalogSource
	UsageLog *usage.Logger
	Logger   *zap.Logger
}

// Server handles the chat API.
type Server struct {
	cfg      *config.Config
	store    store.Store
	models   *llm.ModelRegistry
	auth     *auth.Authenticator
	catalog  CatalogSource
	usageLog *usage.Logger
	logger   *zap.Logger
	streams  *StreamRegistry
	limiters *limiterSet
	metrics  *Metrics
	now      func() time.Time
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("chat server: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("chat server: store is required")
	}
	if opts.Models == nil {
		return nil, errors.New("chat server: model registry is required")
	}
	authn := opts.Auth
	if authn == nil {
		var err error
		if authn, err = auth.New(opts.Config.Auth); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		models:   opts.Models,
		auth:     authn,
		catalog:  opts.Catalog,
		usageLog: opts.UsageLog,
		logger:   logger,
		streams:  NewStreamRegistry(opts.Config.Server.StreamTTL),
		limiters: newLimiterSet(opts.Config.Server.RequestsPerSec, opts.Config.Server.Burst),
		metrics:  NewMetrics(),
		now:      time.Now,
	}, nil
}

// Streams exposes the registry of resumable streams.
func (s *Server) Streams() *StreamRegistry {
	return s.streams
}

// Handler returns an http.Handler for the chat endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("DELETE /api/chat", s.handleDelete)
	mux.HandleFunc("GET /api/chat/{id}/messages", s.handleMessages)
	mux.HandleFunc("GET /api/chat/{id}/stream", s.handleResumeStream)
	mux.HandleFunc("GET /api/chat/{id}/ws", s.handleResumeWebSocket)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "streams": s.streams.Len()})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return chain(mux, s.recoverPanics, s.logRequests, s.cors, s.identify, s.rateLimit)
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests for up to the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gcCtx, stopGC := context.WithCancel(context.Background())
	defer stopGC()
	go s.streams.StartGC(gcCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("chat server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("chat server shutting down", zap.Duration("timeout", timeout))
	err := srv.Shutdown(shutdownCtx)
	s.streams.CancelAll()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		chaterr.New("bad_request:api").WithCause("Parameter id is required.").WriteHTTP(w)
		return
	}

	user := auth.FromContext(r.Context())
	if user == nil {
		chaterr.New("unauthorized:chat").WriteHTTP(w)
		return
	}

	chat, err := s.store.GetChatByID(r.Context(), id)
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:chat", err))
		return
	}
	if chat == nil || chat.UserID != user.ID {
		chaterr.New("forbidden:chat").WriteHTTP(w)
		return
	}

	s.cancelChatStreams(r.Context(), id)

	deleted, err := s.store.DeleteChatByID(r.Context(), id)
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:chat", err))
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) cancelChatStreams(ctx context.Context, chatID string) {
	ids, err := s.store.GetStreamIDsByChatID(ctx, chatID)
	if err != nil {
		s.logger.Warn("list chat streams", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	for _, id := range ids {
		if st := s.streams.Get(id); st != nil {
			st.Cancel()
		}
	}
}

// MessagesResponse is the body of GET /api/chat/{id}/messages.
type MessagesResponse struct {
	Chat     *store.Chat     `json:"chat"`
	Messages []store.Message `json:"messages"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	chat, cerr := s.readableChat(r)
	if cerr != nil {
		s.writeError(w, cerr)
		return
	}
	messages, err := s.store.GetMessagesByChatID(r.Context(), chat.ID)
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:chat", err))
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Chat: chat, Messages: messages})
}

// readableChat loads the chat named in the path if the caller may read it:
// owners always, anyone for public chats.
func (s *Server) readableChat(r *http.Request) (*store.Chat, *chaterr.Error) {
	id := r.PathValue("id")
	chat, err := s.store.GetChatByID(r.Context(), id)
	if err != nil {
		return nil, chaterr.Wrap("offline:chat", err)
	}
	if chat == nil {
		return nil, chaterr.New("not_found:chat")
	}
	if chat.Visibility == store.VisibilityPublic {
		return chat, nil
	}
	user := auth.FromContext(r.Context())
	if user == nil {
		return nil, chaterr.New("unauthorized:chat")
	}
	if chat.UserID != user.ID {
		return nil, chaterr.New("forbidden:chat")
	}
	return chat, nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.FromContext(r.Context())
	if user == nil {
		chaterr.New("unauthorized:chat").WriteHTTP(w)
		return
	}

	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		chaterr.New("bad_request:api").WithCause("limit must be between 1 and 100").WriteHTTP(w)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		chaterr.New("bad_request:api").WithCause("offset must not be negative").WriteHTTP(w)
		return
	}

	chats, err := s.store.ListChats(r.Context(), store.ListOptions{UserID: user.ID, Limit: limit + 1, Offset: offset})
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:history", err))
		return
	}
	resp := HistoryResponse{Chats: chats, HasMore: len(chats) > limit}
	if resp.HasMore {
		resp.Chats = chats[:limit]
	}
	if resp.Chats == nil {
		resp.Chats = []store.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// latestStream returns the chat's most recent registered stream, or nil.
func (s *Server) latestStream(ctx context.Context, chatID string) (*ActiveStream, error) {
	ids, err := s.store.GetStreamIDsByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.streams.Get(ids[len(ids)-1]), nil
}

func (s *Server) handleResumeStream(w http.ResponseWriter, r *http.Request) {
	chat, cerr := s.readableChat(r)
	if cerr != nil {
		s.writeError(w, cerr)
		return
	}
	st, err := s.latestStream(r.Context(), chat.ID)
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:stream", err))
		return
	}
	if st == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	since := sinceParam(r)
	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:stream", err))
		return
	}
	s.pipeSSE(r.Context(), sse, st, since)
}

// sinceParam reads the catchup position from ?since= or Last-Event-ID.
func sinceParam(r *http.Request) int64 {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0
	}
	return since
}

// pipeSSE writes the stream's parts after since until it ends or the client
// goes away. The producer keeps running either way. [DONE] is only written
// once the whole stream went out, so a cut connection reads as truncated.
func (s *Server) pipeSSE(ctx context.Context, sse *sseWriter, st *ActiveStream, since int64) {
	if st.Follow(since, ctx.Done(), sse.WritePart) {
		_ = sse.WriteDone()
	}
}

// ClientEvent is the JSON envelope sent client->server over WebSocket.
type ClientEvent struct {
	Type string `json:"type"`
}

func (s *Server) handleResumeWebSocket(w http.ResponseWriter, r *http.Request) {
	chat, cerr := s.readableChat(r)
	if cerr != nil {
		s.writeError(w, cerr)
		return
	}
	st, err := s.latestStream(r.Context(), chat.ID)
	if err != nil {
		s.writeError(w, chaterr.Wrap("offline:stream", err))
		return
	}
	if st == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	owner := auth.FromContext(r.Context())
	canInterrupt := owner != nil && owner.ID == chat.UserID

	conn, err := s.upgrade(w, r)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var ev ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Type == "interrupt" && canInterrupt {
				st.Cancel()
			}
		}
	}()

	write := func(p StreamPart) error { return writeEvent(conn, p) }
	if st.Follow(sinceParam(r), closed, write) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished"))
	}
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(s.cfg.Server.CORSOrigins) == 0 || s.allowOrigin(origin)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// writeError logs unexpected failures and writes the client-safe form.
func (s *Server) writeError(w http.ResponseWriter, e *chaterr.Error) {
	if e.Err != nil {
		s.logger.Error("chat api error", zap.String("code", e.Code()), zap.Error(e.Err))
	}
	e.WriteHTTP(w)
}

package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samsaffron/tutor/internal/auth"
	"github.com/samsaffron/tutor/internal/chaterr"
	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/progress"
	"github.com/samsaffron/tutor/internal/store"
	"github.com/samsaffron/tutor/internal/tutor"
	"github.com/samsaffron/tutor/internal/usage"
)

const quotaWindow = 24 * time.Hour

// turn is everything the producer needs to finish one assistant response.
type turn struct {
	chat      *store.Chat
	user      *auth.User
	chatModel string
	engine    *llm.Engine
	started   time.Time
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeChatRequest(r)
	if err != nil {
		s.fail(w, chaterr.New("bad_request:api").WithCause(err.Error()))
		return
	}
	in, err := s.validate(req)
	if err != nil {
		s.fail(w, chaterr.New("bad_request:api").WithCause(err.Error()))
		return
	}

	user := auth.FromContext(ctx)
	if user == nil {
		s.fail(w, chaterr.New("unauthorized:chat"))
		return
	}

	ent := auth.EntitlementsFor(s.cfg.Entitlements, user.Type, s.models.IDs())
	if !ent.CanUseModel(in.ChatModel) {
		s.fail(w, chaterr.New("bad_request:api").WithCause("chat model not available for this account"))
		return
	}

	count, err := s.store.GetMessageCountByUserID(ctx, user.ID, s.now().Add(-quotaWindow))
	if err != nil {
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}
	if count > ent.MaxMessagesPerDay {
		s.fail(w, chaterr.New("rate_limit:chat"))
		return
	}

	chat, cerr := s.loadOrCreateChat(ctx, user, in)
	if cerr != nil {
		s.fail(w, cerr)
		return
	}

	history, err := s.store.GetMessagesByChatID(ctx, chat.ID)
	if err != nil {
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}

	problemType := tutor.DefaultProblemType
	if pt, err := tutor.ParseProblemType(chat.ProblemType); err == nil {
		problemType = pt
	}
	if in.HasProblemType {
		problemType = in.ProblemType
	}

	messages := []llm.Message{llm.SystemText(tutor.SystemPrompt(tutor.PromptOptions{
		ChatModel:   in.ChatModel,
		ProblemType: problemType,
		Hints:       tutor.HintsFromRequest(r),
	}))}
	for _, m := range history {
		messages = append(messages, m.ToLLM())
	}
	messages = append(messages, tutor.FewShotExamples()...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Parts: in.Parts})

	userMsg := store.Message{
		ID:        in.MessageID,
		ChatID:    chat.ID,
		Role:      llm.RoleUser,
		Parts:     in.Parts,
		ThinkMs:   in.ThinkMs,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessages(ctx, []store.Message{userMsg}); err != nil {
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}

	streamID := uuid.NewString()
	if err := s.store.CreateStreamID(ctx, streamID, chat.ID); err != nil {
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}

	engine, err := s.models.Engine(in.ChatModel)
	if err != nil {
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}

	// The response outlives the request so a dropped client can resume it.
	maxDuration := s.cfg.Server.MaxDuration
	if maxDuration <= 0 {
		maxDuration = 60 * time.Second
	}
	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maxDuration)

	stream, err := engine.Stream(streamCtx, llm.Request{Messages: messages})
	if err != nil {
		cancel()
		if llm.IsGatewayActivationError(err) {
			s.fail(w, chaterr.Wrap("bad_request:activate_gateway", err))
			return
		}
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}

	st := s.streams.Start(streamID, chat.ID, user.ID, cancel)
	t := turn{chat: chat, user: user, chatModel: in.ChatModel, engine: engine, started: s.now()}

	sse, err := newSSEWriter(w)
	if err != nil {
		cancel()
		stream.Close()
		st.Close()
		s.fail(w, chaterr.Wrap("offline:chat", err))
		return
	}
	s.metrics.RequestsTotal.WithLabelValues("ok").Inc()

	go s.produce(streamCtx, cancel, st, stream, t)
	s.pipeSSE(ctx, sse, st, 0)
}

// fail counts and writes a request failure.
func (s *Server) fail(w http.ResponseWriter, e *chaterr.Error) {
	s.metrics.RequestsTotal.WithLabelValues(e.Code()).Inc()
	s.writeError(w, e)
}

func (s *Server) loadOrCreateChat(ctx context.Context, user *auth.User, in chatInput) (*store.Chat, *chaterr.Error) {
	chat, err := s.store.GetChatByID(ctx, in.ChatID)
	if err != nil {
		return nil, chaterr.Wrap("offline:chat", err)
	}
	if chat != nil {
		if chat.UserID != user.ID {
			return nil, chaterr.New("forbidden:chat")
		}
		if in.HasProblemType && string(in.ProblemType) != chat.ProblemType {
			chat.ProblemType = string(in.ProblemType)
			if err := s.store.SaveChat(ctx, chat); err != nil {
				return nil, chaterr.Wrap("offline:chat", err)
			}
		}
		return chat, nil
	}

	problemType := in.ProblemType
	if !in.HasProblemType {
		problemType = tutor.DefaultProblemType
	}
	chat = &store.Chat{
		ID:          in.ChatID,
		UserID:      user.ID,
		Title:       s.generateTitle(ctx, in.Text),
		Visibility:  in.Visibility,
		ProblemType: string(problemType),
	}
	if err := s.store.SaveChat(ctx, chat); err != nil {
		return nil, chaterr.Wrap("offline:chat", err)
	}
	return chat, nil
}

func (s *Server) generateTitle(ctx context.Context, text string) string {
	if _, ok := s.models.Spec(llm.TitleModelID); !ok {
		return tutor.TruncateTitle(text)
	}
	engine, err := s.models.Engine(llm.TitleModelID)
	if err != nil {
		s.logger.Warn("title model unavailable", zap.Error(err))
		return tutor.TruncateTitle(text)
	}
	return tutor.GenerateTitle(ctx, engine, text)
}

// produce drains the model stream into st and persists the finished turn.
func (s *Server) produce(ctx context.Context, cancel context.CancelFunc, st *ActiveStream, stream llm.Stream, t turn) {
	defer cancel()
	defer stream.Close()
	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	logger := s.logger.With(zap.String("chat_id", t.chat.ID), zap.String("stream_id", st.ID))
	defer func() {
		if v := recover(); v != nil {
			logger.Error("stream producer panic",
				zap.Any("panic", v),
				zap.ByteString("stack", debug.Stack()))
			st.Publish(StreamPart{Type: PartError, ErrorText: StreamErrorText})
			st.Close()
		}
	}()
	messageID := uuid.NewString()
	st.Publish(StreamPart{Type: PartStart, MessageID: messageID})

	var (
		text      strings.Builder
		reasoning strings.Builder
		use       llm.Usage
		chunker   wordChunker
		last      *float64
	)
	emitText := func(delta string) {
		if delta == "" {
			return
		}
		text.WriteString(delta)
		st.Publish(StreamPart{Type: PartTextDelta, Delta: delta})
		if res := progress.Extract(text.String()); res.HasProgress && (last == nil || *last != res.Progress) {
			v := res.Progress
			last = &v
			st.Publish(StreamPart{Type: PartDataProgress, Progress: &v})
		}
	}

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil && ev.Type == llm.EventError {
			err = ev.Err
		}
		if err != nil {
			s.failStream(logger, st, err)
			return
		}
		switch ev.Type {
		case llm.EventTextDelta:
			for _, word := range chunker.Push(ev.Text) {
				emitText(word)
			}
		case llm.EventReasoningDelta:
			reasoning.WriteString(ev.Text)
			st.Publish(StreamPart{Type: PartReasoningDelta, Delta: ev.Text})
		case llm.EventUsage:
			if ev.Use != nil {
				use.Add(*ev.Use)
			}
		}
	}
	emitText(chunker.Flush())

	provider := t.engine.Provider()
	summary := s.enrichUsage(ctx, logger, provider.Model(), use)
	st.Publish(StreamPart{Type: PartDataUsage, Usage: &summary})

	// Persistence must finish even when the stream deadline has passed.
	saveCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer done()

	var parts []llm.Part
	if reasoning.Len() > 0 {
		parts = append(parts, llm.Part{Type: llm.PartReasoning, Text: reasoning.String()})
	}
	parts = append(parts, llm.Part{Type: llm.PartText, Text: text.String()})
	err := s.store.SaveMessages(saveCtx, []store.Message{{
		ID:        messageID,
		ChatID:    t.chat.ID,
		Role:      llm.RoleAssistant,
		Parts:     parts,
		CreatedAt: s.now(),
	}})
	if err != nil {
		logger.Error("save assistant message", zap.Error(err))
	}
	if err := s.store.UpdateChatLastContextByID(saveCtx, t.chat.ID, summary); err != nil {
		logger.Warn("unable to persist last usage for chat", zap.Error(err))
	}
	if last != nil {
		if err := s.store.UpdateChatProgress(saveCtx, t.chat.ID, *last); err != nil {
			logger.Warn("unable to persist progress for chat", zap.Error(err))
		}
	}
	s.recordUsage(logger, t, provider, summary)

	st.Publish(StreamPart{Type: PartFinish, FinishReason: "stop"})
}

func (s *Server) failStream(logger *zap.Logger, st *ActiveStream, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("stream cancelled")
	case llm.IsGatewayActivationError(err):
		logger.Error("model gateway requires activation", zap.Error(err))
	default:
		logger.Error("stream failed", zap.Error(err))
	}
	st.Publish(StreamPart{Type: PartError, ErrorText: StreamErrorText})
}

// enrichUsage prices usage from the model catalog, falling back to the raw
// counts when the model is not listed.
func (s *Server) enrichUsage(ctx context.Context, logger *zap.Logger, model string, u llm.Usage) usage.AppUsage {
	if s.catalog == nil {
		return usage.Raw(u)
	}
	cat := s.catalog.Get(ctx)
	if _, ok := cat.Lookup(model); !ok {
		logger.Warn("usage enrichment failed", zap.String("model", model))
		return usage.Raw(u)
	}
	return usage.Summarize(model, u, cat)
}

func (s *Server) recordUsage(logger *zap.Logger, t turn, provider llm.Provider, summary usage.AppUsage) {
	model := provider.Model()
	s.metrics.TokensTotal.WithLabelValues(model, "input").Add(float64(summary.InputTokens))
	s.metrics.TokensTotal.WithLabelValues(model, "output").Add(float64(summary.OutputTokens))
	s.metrics.TokensTotal.WithLabelValues(model, "cached").Add(float64(summary.CachedInputTokens))
	s.metrics.TokensTotal.WithLabelValues(model, "reasoning").Add(float64(summary.ReasoningTokens))
	s.metrics.StreamDuration.WithLabelValues(model).Observe(s.now().Sub(t.started).Seconds())

	if s.usageLog == nil {
		return
	}
	entry := usage.LogEntry{
		ChatID:            t.chat.ID,
		UserID:            t.user.ID,
		ChatModel:         t.chatModel,
		Model:             model,
		Provider:          provider.Name(),
		InputTokens:       summary.InputTokens,
		OutputTokens:      summary.OutputTokens,
		CachedInputTokens: summary.CachedInputTokens,
		ReasoningTokens:   summary.ReasoningTokens,
	}
	if summary.CostUSD != nil {
		entry.CostUSD = summary.CostUSD.TotalUSD
	}
	if err := s.usageLog.Log(entry); err != nil {
		logger.Warn("write usage log", zap.Error(err))
	}
}

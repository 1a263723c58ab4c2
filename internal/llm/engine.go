package llm

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Engine wraps a provider with request logging and one-shot completion.
type Engine struct {
	provider Provider
	logger   *zap.Logger
}

func NewEngine(provider Provider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		provider: provider,
		logger:   logger.With(zap.String("provider", provider.Name())),
	}
}

// Provider returns the wrapped provider.
func (e *Engine) Provider() Provider {
	return e.provider
}

// Stream starts a streamed completion. The returned stream logs its usage
// and duration once it ends.
func (e *Engine) Stream(ctx context.Context, req Request) (Stream, error) {
	e.logger.Debug("stream start",
		zap.String("model", chooseModel(req.Model, e.provider.Model())),
		zap.Int("messages", len(req.Messages)))
	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		e.logger.Warn("stream failed to start", zap.Error(err))
		return nil, err
	}
	return &loggedStream{inner: stream, logger: e.logger, started: time.Now()}, nil
}

// Complete runs req to completion and returns the text.
func (e *Engine) Complete(ctx context.Context, req Request) (string, error) {
	stream, err := e.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	out, err := Collect(stream)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

type loggedStream struct {
	inner   Stream
	logger  *zap.Logger
	started time.Time
	usage   Usage
	done    bool
}

func (s *loggedStream) Recv() (Event, error) {
	ev, err := s.inner.Recv()
	switch {
	case err == nil && ev.Type == EventUsage && ev.Use != nil:
		s.usage.Add(*ev.Use)
	case err == nil && ev.Type == EventError:
		s.finish(ev.Err)
	case errors.Is(err, io.EOF):
		s.finish(nil)
	case err != nil:
		s.finish(err)
	}
	return ev, err
}

func (s *loggedStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(s.started)),
		zap.Int("input_tokens", s.usage.InputTokens),
		zap.Int("output_tokens", s.usage.OutputTokens),
	}
	if err != nil {
		s.logger.Warn("stream failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug("stream done", fields...)
}

func (s *loggedStream) Close() error {
	return s.inner.Close()
}

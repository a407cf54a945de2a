// Package orchestrator runs conversation turns: it drives the model
// through tool-calling rounds, dispatches tools against the session's
// workflow, and streams the final reply as fragments.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/llm"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/session"
	"github.com/capitalize-ai/lead-qualifier/internal/tools"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
	"github.com/capitalize-ai/lead-qualifier/pkg/tracing"
)

var (
	// ErrSessionTerminated is returned for turns on an ended session.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrEmptyTurn is returned when the user text is blank.
	ErrEmptyTurn = errors.New("turn text is empty")
)

const (
	apologyText = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
	closingText = "Thanks for chatting! Goodbye!"
	stuckText   = "I wasn't able to finish that request. Could you tell me a bit more about what you need?"

	defaultSystemPrompt = "You are a friendly sales assistant for a coffee business solutions company. " +
		"Learn about the prospect's business, record what you learn with extract_qualification_data, " +
		"answer questions from the knowledge base, and help them book a consultation. " +
		"To book: locate or create the customer, check availability, then finish scheduling. " +
		"Keep replies short and conversational."
)

// Config bounds a turn.
type Config struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64

	// MaxToolRounds caps tool-calling rounds; the next call is forced to text.
	MaxToolRounds int
	// MaxCorrections caps rounds that hit a workflow precondition.
	MaxCorrections int
	// HistoryWindow is the number of trailing messages sent to the model.
	HistoryWindow int
	// ToolTimeout bounds each tool handler.
	ToolTimeout time.Duration
}

// DefaultConfig is used for zero fields.
var DefaultConfig = Config{
	SystemPrompt:   defaultSystemPrompt,
	MaxTokens:      1024,
	Temperature:    0.3,
	MaxToolRounds:  5,
	MaxCorrections: 2,
	HistoryWindow:  40,
	ToolTimeout:    15 * time.Second,
}

// Recorder persists transcript messages outside the process.
type Recorder interface {
	RecordMessages(ctx context.Context, msgs ...model.Message) error
}

// Option configures a Core.
type Option func(*Core)

// WithRecorder sets the transcript recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Core) { c.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// Core runs turns for every session.
type Core struct {
	client   llm.Client
	registry *tools.Registry
	sessions *session.Manager
	recorder Recorder
	cfg      Config
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a Core.
func New(client llm.Client, registry *tools.Registry, sessions *session.Manager, cfg Config, log *logger.Logger, opts ...Option) *Core {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultConfig.SystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultConfig.MaxToolRounds
	}
	if cfg.MaxCorrections <= 0 {
		cfg.MaxCorrections = DefaultConfig.MaxCorrections
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultConfig.HistoryWindow
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultConfig.ToolTimeout
	}

	c := &Core{
		client:   client,
		registry: registry,
		sessions: sessions,
		cfg:      cfg,
		log:      log.Named("orchestrator"),
		tracer:   tracing.Tracer("orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTurn submits one user message and returns the turn's fragments.
// The call blocks until the session's previous turn has finished. The
// returned channel is closed after the turn_complete fragment.
//
// Cancelling ctx stops delivery of fragments; the turn itself runs to
// completion so tool effects and history stay consistent.
func (c *Core) HandleTurn(ctx context.Context, sessionID, text string) (<-chan model.Fragment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTurn
	}
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminated() {
		return nil, ErrSessionTerminated
	}
	if err := sess.Acquire(ctx); err != nil {
		return nil, err
	}
	if sess.Terminated() {
		sess.Release()
		return nil, ErrSessionTerminated
	}

	out := make(chan model.Fragment, 32)
	go func() {
		defer close(out)
		defer sess.Release()
		t := &turn{
			core:   c,
			sess:   sess,
			ctx:    context.WithoutCancel(ctx),
			client: ctx,
			out:    out,
			log:    c.log.WithSession(sess.ID, sess.TenantID),
		}
		t.run(text)
	}()
	return out, nil
}

// turn is the state of one HandleTurn call.
type turn struct {
	core *Core
	sess *session.Session
	// ctx drives processing; client is the caller's context and only
	// gates fragment delivery.
	ctx    context.Context
	client context.Context
	out    chan<- model.Fragment
	log    *logger.Logger

	index       int
	rounds      int
	corrections int
	recorded    []model.Message
}

func (t *turn) emit(kind model.FragmentKind, text, code string) {
	f := model.Fragment{Kind: kind, Index: t.index, Text: text, Code: code}
	t.index++
	if t.client.Err() != nil {
		return
	}
	select {
	case t.out <- f:
	case <-t.client.Done():
	}
}

// say emits text as sentence-sized reply chunks.
func (t *turn) say(text string) {
	for _, s := range splitSentences(text) {
		t.emit(model.FragmentReplyChunk, s, "")
		t.emit(model.FragmentSentenceBoundary, "", "")
	}
}

func (t *turn) append(msgs ...model.Message) {
	for _, m := range t.sess.Append(msgs...) {
		if (m.Role == model.RoleUser || m.Role == model.RoleAssistant) && m.Content != "" {
			t.recorded = append(t.recorded, m)
		}
	}
}

func (t *turn) run(text string) {
	ctx, span := t.core.tracer.Start(t.ctx, "orchestrator.turn",
		trace.WithAttributes(attribute.String("session.id", t.sess.ID)))
	defer span.End()
	t.ctx = ctx

	outcome := t.converse(text)
	span.SetAttributes(attribute.String("turn.outcome", outcome), attribute.Int("turn.rounds", t.rounds))
	if outcome == "error" {
		span.SetStatus(codes.Error, "model unavailable")
	}
	metrics.RecordTurn(outcome, t.rounds)
	t.emit(model.FragmentTurnComplete, "", "")

	if t.core.recorder != nil && len(t.recorded) > 0 {
		if err := t.core.recorder.RecordMessages(t.ctx, t.recorded...); err != nil {
			t.log.Warn("failed to record transcript", zap.Error(err))
		}
	}
}

// converse runs the turn and reports its outcome label.
func (t *turn) converse(text string) string {
	t.emit(model.FragmentTypingStarted, "", "")
	t.append(model.Message{Role: model.RoleUser, Content: text})

	if IsTermination(text) {
		t.append(model.Message{Role: model.RoleAssistant, Content: closingText})
		t.say(closingText)
		t.end(session.ReasonExitPhrase)
		return "terminated"
	}

	for {
		forced := t.rounds >= t.core.cfg.MaxToolRounds ||
			(t.corrections > 0 && t.corrections >= t.core.cfg.MaxCorrections)
		choice := llm.ToolChoiceAuto
		if forced {
			choice = llm.ToolChoiceNone
		}

		sp := &speaker{t: t}
		resp, err := t.stream(choice, sp.feed)
		if err != nil && !sp.fed {
			t.apologize(err)
			return "error"
		}
		if err != nil {
			t.log.Warn("stream interrupted", zap.Error(err))
		}

		if err == nil && !forced && resp != nil && len(resp.ToolCalls) > 0 {
			t.rounds++
			farewell := t.runTools(resp, sp.said())
			if farewell != "" {
				t.append(model.Message{Role: model.RoleAssistant, Content: farewell})
				t.say(farewell)
				t.end(session.ReasonEndCall)
				return "farewell"
			}
			continue
		}

		content := ""
		if resp != nil {
			content = resp.Content
		}
		reply := sp.finish(content)
		if reply == "" {
			reply = stuckText
			t.say(reply)
		}
		t.append(assistantMessage(reply, nil, resp))
		if forced {
			return "forced"
		}
		return "ok"
	}
}

// speaker turns streamed tokens into reply fragments one sentence at a
// time. Text after the last sentence end is held back until the response
// is known to be a reply; a response that carries tool calls never
// speaks it.
type speaker struct {
	t         *turn
	sentences sentenceStream
	held      strings.Builder
	spoken    strings.Builder
	fed       bool
}

func (s *speaker) feed(token string, _ int) error {
	s.fed = true
	for _, seg := range s.sentences.feed(token) {
		s.held.WriteString(seg.text)
		if seg.end {
			s.flush()
		}
	}
	return nil
}

func (s *speaker) flush() {
	text := s.held.String()
	if strings.TrimSpace(text) == "" {
		return
	}
	s.held.Reset()
	s.t.emit(model.FragmentReplyChunk, text, "")
	s.t.emit(model.FragmentSentenceBoundary, "", "")
	s.spoken.WriteString(text)
}

// finish speaks the held tail and returns everything said. Clients that
// returned content without streaming it are split into sentences here.
func (s *speaker) finish(content string) string {
	if !s.fed && content != "" {
		_ = s.feed(content, 0)
	}
	s.flush()
	return s.said()
}

func (s *speaker) said() string {
	return strings.TrimSpace(s.spoken.String())
}

func (t *turn) apologize(err error) {
	t.log.Error("model call failed", zap.Int("round", t.rounds), zap.Error(err))
	t.say(apologyText)
	t.emit(model.FragmentError, "The assistant is temporarily unavailable.", "model_unavailable")
}

func (t *turn) end(reason string) {
	t.sess.Terminate()
	t.emit(model.FragmentSessionEnded, "", reason)
	t.log.Info("session ended by conversation", zap.String("reason", reason))
}

func (t *turn) request(choice llm.ToolChoice) *llm.CompletionRequest {
	cfg := t.core.cfg
	return &llm.CompletionRequest{
		Model:       cfg.Model,
		System:      t.systemPrompt(),
		Messages:    toChatMessages(t.sess.Window(cfg.HistoryWindow)),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Tools:       t.core.registry.Definitions(),
		ToolChoice:  choice,
	}
}

func (t *turn) systemPrompt() string {
	var b strings.Builder
	b.WriteString(t.core.cfg.SystemPrompt)
	fmt.Fprintf(&b, "\n\nCurrent time: %s.", t.core.now().UTC().Format(time.RFC1123))
	if id := t.sess.CustomerID(); id != "" {
		fmt.Fprintf(&b, " Located customer: %s.", id)
	}
	return b.String()
}

func (t *turn) stream(choice llm.ToolChoice, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	ctx, span := t.core.tracer.Start(t.ctx, "llm.stream",
		trace.WithAttributes(attribute.String("llm.tool_choice", string(choice))))
	defer span.End()

	req := t.request(choice)
	start := time.Now()
	resp, err := t.core.client.CompleteStream(ctx, req, cb)
	t.observe(span, "stream", start, resp, err)
	return resp, err
}

func (t *turn) observe(span trace.Span, mode string, start time.Time, resp *llm.CompletionResponse, err error) {
	modelName := t.core.cfg.Model
	status := "ok"
	in, out := 0, 0
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if resp != nil {
		if resp.Model != "" {
			modelName = resp.Model
		}
		in, out = resp.TokensIn, resp.TokensOut
	}
	if modelName == "" {
		modelName = t.core.client.Name()
	}
	span.SetAttributes(attribute.String("llm.model", modelName), attribute.Int("llm.tokens_in", in), attribute.Int("llm.tokens_out", out))
	metrics.RecordLLMCall(modelName, mode, status, time.Since(start).Seconds(), in, out)
}

func assistantMessage(content string, calls []model.ToolCall, resp *llm.CompletionResponse) model.Message {
	m := model.Message{Role: model.RoleAssistant, Content: content, ToolCalls: calls}
	if resp != nil {
		m.Model = &resp.Model
		m.TokensIn = &resp.TokensIn
		m.TokensOut = &resp.TokensOut
		m.LatencyMs = &resp.LatencyMs
	}
	return m
}

func toChatMessages(history []model.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, llm.ChatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
			IsError:    m.IsError,
		})
	}
	return out
}

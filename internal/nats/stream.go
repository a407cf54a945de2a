package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// LeadStreamName is the stream qualified leads are exported to.
	LeadStreamName = "LEADS"

	// LeadSubjectPrefix is the prefix for lead export subjects.
	LeadSubjectPrefix = "leads"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStreams creates the conversation and lead streams when missing.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	configs := []jetstream.StreamConfig{
		{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			MaxBytes:    10 * 1024 * 1024 * 1024,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			DenyDelete:  true,
			DenyPurge:   true,
			Description: "Chat transcripts and session events",
		},
		{
			Name:        LeadStreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", LeadSubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      2 * 365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Duplicates:  10 * time.Minute,
			DenyDelete:  true,
			DenyPurge:   true,
			Description: "Append-only log of lead qualification revisions",
		},
	}

	js := m.client.JetStream()
	for _, cfg := range configs {
		if _, err := js.Stream(ctx, cfg.Name); err == nil {
			continue
		} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
		}
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// token makes v safe to use as a single subject token.
func token(v string) string {
	if v == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}

// MessageSubject returns the subject for a message.
func MessageSubject(tenantID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, token(tenantID), token(sessionID), role)
}

// EventSubject returns the subject for an event.
func EventSubject(tenantID, sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, token(tenantID), token(sessionID), eventType)
}

// SessionFilter returns the filter subject for all messages of a session.
func SessionFilter(tenantID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, token(tenantID), token(sessionID))
}

// LeadSubject returns the export subject for a lead revision.
func LeadSubject(l *model.Lead) string {
	priority := string(l.Priority)
	if priority == "" {
		priority = "UNSCORED"
	}
	return fmt.Sprintf("%s.%s.%s", LeadSubjectPrefix, strings.ToLower(priority), token(l.ID))
}

// PublishMessage publishes a message to JetStream.
func (m *StreamManager) PublishMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	subject := MessageSubject(msg.TenantID, msg.SessionID, msg.Role)

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(msg.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}

// RecordMessages appends transcript messages in order.
func (m *StreamManager) RecordMessages(ctx context.Context, msgs ...model.Message) error {
	for i := range msgs {
		if _, err := m.PublishMessage(ctx, &msgs[i]); err != nil {
			return err
		}
	}
	return nil
}

// PublishEvent publishes a session lifecycle event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.SessionEvent) (uint64, error) {
	subject := EventSubject(event.TenantID, event.SessionID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// ExportLead appends a lead revision to the LEADS stream. Repeated
// exports of the same revision are de-duplicated by the server.
func (m *StreamManager) ExportLead(ctx context.Context, l *model.Lead) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}
	msgID := fmt.Sprintf("%s-%d", l.ID, l.UpdatedAt.UnixNano())
	if _, err := m.client.JetStream().Publish(ctx, LeadSubject(l), data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to export lead: %w", err)
	}
	return nil
}

// GetMessages retrieves a session's messages starting after a sequence.
func (m *StreamManager) GetMessages(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error) {
	js := m.client.JetStream()

	consumerConfig := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(tenantID, sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.OrderedConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var (
		messages     []model.Message
		lastSequence = afterSequence
	)
	for msg := range batch.Messages() {
		var message model.Message
		if err := json.Unmarshal(msg.Data(), &message); err != nil {
			continue
		}

		meta, err := msg.Metadata()
		if err == nil {
			message.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}

		messages = append(messages, message)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	hasMore := len(messages) == limit

	return messages, lastSequence, hasMore, nil
}

// RefreshStats publishes stream sizes to the metrics gauges.
func (m *StreamManager) RefreshStats(ctx context.Context) error {
	for _, name := range []string{StreamName, LeadStreamName} {
		stream, err := m.client.JetStream().Stream(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}
		info, err := stream.Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to read stream %s: %w", name, err)
		}
		metrics.NATSStreamMessages.WithLabelValues(name).Set(float64(info.State.Msgs))
		metrics.NATSStreamBytes.WithLabelValues(name).Set(float64(info.State.Bytes))
	}
	return nil
}

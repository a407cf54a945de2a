package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/session"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, e *model.SessionEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return uint64(len(p.events)), nil
}

type stubTurns struct {
	sessionID string
}

func (s *stubTurns) HandleTurn(ctx context.Context, sessionID, text string) (<-chan model.Fragment, error) {
	s.sessionID = sessionID
	ch := make(chan model.Fragment, 1)
	ch <- model.Fragment{Kind: model.FragmentTurnComplete}
	close(ch)
	return ch, nil
}

func TestSessionService_Lifecycle(t *testing.T) {
	t.Parallel()
	pub := &recordingPublisher{}
	svc := NewSessionService(session.NewManager(logger.NewNop()), pub, nil, logger.NewNop())
	ctx := context.Background()

	info := svc.Create(ctx, "acme", "user-1", &model.CreateSessionRequest{})
	if info.ID == "" || info.Lead == nil {
		t.Fatalf("Create() = %+v, want id and lead", info)
	}

	if _, err := svc.Get(ctx, "other", info.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get(other tenant) error = %v, want ErrNotFound", err)
	}
	if err := svc.End(ctx, "other", info.ID, session.ReasonClosed); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("End(other tenant) error = %v, want ErrNotFound", err)
	}

	if err := svc.End(ctx, "acme", info.ID, session.ReasonClosed); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, err := svc.Get(ctx, "acme", info.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() after end error = %v, want ErrNotFound", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("events = %d, want 2", len(pub.events))
	}
	if pub.events[0].Type != model.EventTypeSessionStarted || pub.events[1].Type != model.EventTypeSessionEnded {
		t.Errorf("event types = %s, %s", pub.events[0].Type, pub.events[1].Type)
	}
	if pub.events[1].Reason != session.ReasonClosed {
		t.Errorf("end reason = %q, want %q", pub.events[1].Reason, session.ReasonClosed)
	}
}

func TestSessionService_TranscriptUnavailable(t *testing.T) {
	t.Parallel()
	svc := NewSessionService(session.NewManager(logger.NewNop()), nil, nil, logger.NewNop())

	if _, err := svc.Transcript(context.Background(), "acme", "s1", 0, 10); !errors.Is(err, ErrTranscriptUnavailable) {
		t.Errorf("Transcript() error = %v, want ErrTranscriptUnavailable", err)
	}
}

func TestChatService_ChecksTenant(t *testing.T) {
	t.Parallel()
	sessions := NewSessionService(session.NewManager(logger.NewNop()), nil, nil, logger.NewNop())
	turns := &stubTurns{}
	chat := NewChatService(sessions, turns)
	info := sessions.Create(context.Background(), "acme", "u", &model.CreateSessionRequest{})

	if _, err := chat.Send(context.Background(), "other", info.ID, "hi"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Send(other tenant) error = %v, want ErrNotFound", err)
	}
	ch, err := chat.Send(context.Background(), "acme", info.ID, "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for range ch {
	}
	if turns.sessionID != info.ID {
		t.Errorf("turn ran for %q, want %q", turns.sessionID, info.ID)
	}
}

func TestLeadService(t *testing.T) {
	t.Parallel()
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, l := range []*model.Lead{
		{ID: "a", SessionID: "s1", BusinessType: model.BusinessExisting, Score: 90, Priority: model.PriorityHigh, ContactName: "Ana"},
		{ID: "b", SessionID: "s2", BusinessType: model.BusinessNewCafe, Score: 30, Priority: model.PriorityLow},
	} {
		if err := st.SaveLead(ctx, l); err != nil {
			t.Fatalf("SaveLead() error = %v", err)
		}
	}
	svc := NewLeadService(st)

	high, err := svc.HighPriority(ctx, 10)
	if err != nil {
		t.Fatalf("HighPriority() error = %v", err)
	}
	if len(high) != 1 || high[0].ID != "a" {
		t.Errorf("HighPriority() = %+v, want lead a", high)
	}

	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total != 2 || sum.High != 1 || sum.Low != 1 {
		t.Errorf("Summary() = %+v", sum)
	}

	text, lead, err := svc.Handoff(ctx, "a", "")
	if err != nil {
		t.Fatalf("Handoff() error = %v", err)
	}
	if lead.ID != "a" || text == "" {
		t.Errorf("Handoff() = %q, %+v", text, lead)
	}
	if _, _, err := svc.Handoff(ctx, "missing", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Handoff(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCustomerService(t *testing.T) {
	t.Parallel()
	st := store.NewMemoryStore()
	ctx := context.Background()
	c, err := st.CreateCustomer(ctx, &model.Customer{Name: "Mike Chen", Phone: "555-010-0001", Email: "mike@example.com"})
	if err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}
	svc := NewCustomerService(st)

	got, err := svc.Get(ctx, "0")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("Get(0) = %s, want %s", got.ID, c.ID)
	}
	appts, err := svc.Appointments(ctx, c.ID)
	if err != nil {
		t.Fatalf("Appointments() error = %v", err)
	}
	if appts == nil || len(appts) != 0 {
		t.Errorf("Appointments() = %v, want empty list", appts)
	}
	if _, err := svc.Orders(ctx, "CUST9999"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Orders(missing) error = %v, want ErrNotFound", err)
	}
}

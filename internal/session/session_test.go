package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/workflow"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager() (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	m := NewManager(logger.NewNop())
	m.now = clock.Now
	return m, clock
}

func TestCreateStartsWithScoredLead(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	s := m.Create("tenant-1", "user-1", nil)

	lead := s.Lead()
	if lead == nil || lead.SessionID != s.ID {
		t.Fatalf("Lead() = %+v, want lead bound to session %s", lead, s.ID)
	}
	if lead.BusinessType != model.BusinessUnknown || lead.Priority != model.PriorityLow {
		t.Fatalf("Lead() = %+v, want unknown business and LOW priority", lead)
	}

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLeadIsCopied(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	s := m.Create("t", "u", nil)

	lead := s.Lead()
	lead.PainPoints = append(lead.PainPoints, "quality")
	if len(s.Lead().PainPoints) != 0 {
		t.Fatal("mutating Lead() result changed the session")
	}
	s.SetLead(lead)
	if got := s.Lead().PainPoints; len(got) != 1 {
		t.Fatalf("Lead().PainPoints = %v after SetLead", got)
	}
}

func TestTurnSlotSerializes(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	s := m.Create("t", "u", nil)

	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if s.TryAcquire() {
		t.Fatal("TryAcquire() = true while held")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want deadline exceeded", err)
	}

	s.Release()
	if !s.TryAcquire() {
		t.Fatal("TryAcquire() = false after Release")
	}
	s.Release()
}

func TestWindowStartsAtUserMessage(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	s := m.Create("t", "u", nil)
	s.Append(
		model.Message{Role: model.RoleUser, Content: "hi"},
		model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "1", Name: "find_customer"}}},
		model.Message{Role: model.RoleTool, ToolCallID: "1", Content: "{}"},
		model.Message{Role: model.RoleAssistant, Content: "found you"},
		model.Message{Role: model.RoleUser, Content: "book me"},
		model.Message{Role: model.RoleAssistant, Content: "sure"},
	)

	got := s.Window(4)
	if len(got) != 2 || got[0].Content != "book me" {
		t.Fatalf("Window(4) = %+v, want window starting at the last user message", got)
	}
	if all := s.Window(0); len(all) != 6 {
		t.Fatalf("Window(0) returned %d messages, want 6", len(all))
	}
	if got[0].SessionID != s.ID || got[0].ID == "" {
		t.Fatalf("Append() did not fill identity: %+v", got[0])
	}
}

func TestWorkflowIsPerSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	a := m.Create("t", "u", nil)
	b := m.Create("t", "u", nil)

	a.Workflow(workflow.Booking).Advance(workflow.CustomerLocated)
	if b.Workflow(workflow.Booking).State() != workflow.Start {
		t.Fatal("workflow state leaked between sessions")
	}
	info := a.Info()
	if info.Workflows[workflow.Booking] != string(workflow.CustomerLocated) {
		t.Fatalf("Info().Workflows = %v", info.Workflows)
	}
}

func TestSweepRemovesIdleAndTerminated(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager()
	var mu sync.Mutex
	reasons := map[string]string{}
	m.OnEnd(func(s *Session, reason string) {
		mu.Lock()
		reasons[s.ID] = reason
		mu.Unlock()
	})

	idle := m.Create("t", "u", nil)
	clock.Advance(20 * time.Minute)
	active := m.Create("t", "u", nil)
	ended := m.Create("t", "u", nil)
	ended.Terminate()
	busy := m.Create("t", "u", nil)
	busy.Terminate()
	if !busy.TryAcquire() {
		t.Fatal("TryAcquire() = false")
	}
	clock.Advance(15 * time.Minute)
	active.Touch()

	if n := m.Sweep(30 * time.Minute); n != 2 {
		t.Fatalf("Sweep() removed %d, want 2", n)
	}
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
	if reasons[idle.ID] != ReasonIdle || reasons[ended.ID] != ReasonClosed {
		t.Fatalf("end reasons = %v", reasons)
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Fatalf("busy session was swept mid-turn: %v", err)
	}
	if !idle.Terminated() {
		t.Fatal("swept session not marked terminated")
	}
}

func TestEndUnknownSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	if err := m.End("nope", ReasonClosed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End() error = %v, want ErrNotFound", err)
	}
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager()
	if _, err := NewSweeper(m, "not a schedule", time.Minute, logger.NewNop()); err == nil {
		t.Fatal("NewSweeper() error = nil, want parse error")
	}
	s, err := NewSweeper(m, "@every 1m", time.Minute, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	s.Start()
	s.Stop(context.Background())
}

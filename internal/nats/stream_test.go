package nats

import (
	"testing"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

func TestSubjects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"message", MessageSubject("acme", "s1", model.RoleUser), "conv.acme.s1.msg.user"},
		{"event", EventSubject("acme", "s1", model.EventTypeSessionEnded), "conv.acme.s1.event.session_ended"},
		{"filter", SessionFilter("acme", "s1"), "conv.acme.s1.msg.>"},
		{"unsafe tenant", MessageSubject("acme.eu *", "s1", model.RoleAssistant), "conv.acme_eu__.s1.msg.assistant"},
		{"empty tenant", SessionFilter("", "s1"), "conv._.s1.msg.>"},
		{"lead", LeadSubject(&model.Lead{ID: "LEAD-1", Priority: model.PriorityHigh}), "leads.high.LEAD-1"},
		{"unscored lead", LeadSubject(&model.Lead{ID: "x.y"}), "leads.unscored.x_y"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s subject = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

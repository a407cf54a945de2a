// Package tools defines the closed set of functions the model may call
// during a conversation, their argument schemas and their handlers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/knowledge"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/notify"
	"github.com/capitalize-ai/lead-qualifier/internal/session"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/internal/workflow"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// Handler runs one tool call.
type Handler func(ctx context.Context, call *Call) (Outcome, error)

// Tool is a callable function exposed to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema

	// Workflow names the state machine the tool belongs to, if any.
	Workflow string
	// Requires is the step that must be reached before the tool runs.
	Requires workflow.State
	// Advances is the step reached when the tool succeeds.
	Advances workflow.State

	Handler Handler
}

// Call is a single invocation bound to a session.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Session   *session.Session
}

// Bind decodes the call arguments into v. Malformed JSON is reported as a
// validation error on the arguments.
func (c *Call) Bind(v any) error {
	raw := c.Arguments
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &store.ValidationError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

// Outcome is what a handler produced.
type Outcome struct {
	Data any
	// Advance is set when the tool's workflow step was reached. Tools
	// without a workflow ignore it.
	Advance bool
	// Farewell is set by end_call; the session is already terminated.
	Farewell string
}

// ErrorKind classifies a failed tool call for the model.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindPrecondition ErrorKind = "precondition"
	KindIntegrity    ErrorKind = "integrity"
	KindNotFound     ErrorKind = "not_found"
	KindTimeout      ErrorKind = "timeout"
	KindInternal     ErrorKind = "internal"
)

// Result is the tool-role message content sent back to the model.
type Result struct {
	Tool  string    `json:"tool"`
	OK    bool      `json:"ok"`
	Data  any       `json:"result,omitempty"`
	Error string    `json:"error,omitempty"`
	Kind  ErrorKind `json:"kind,omitempty"`
	Hint  string    `json:"hint,omitempty"`
}

// Success wraps handler data.
func Success(tool string, data any) Result {
	return Result{Tool: tool, OK: true, Data: data}
}

// Failure wraps a handler error. Internal errors are not echoed to the
// model.
func Failure(tool string, err error) Result {
	kind, msg := Classify(err)
	return Result{Tool: tool, Error: msg, Kind: kind}
}

// JSON renders the result for the conversation history.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"ok":false,"error":"result could not be encoded","kind":"internal"}`, r.Tool)
	}
	return string(data)
}

// Classify maps an error onto the kind and message reported to the model.
func Classify(err error) (ErrorKind, string) {
	var verr *store.ValidationError
	var perr *workflow.PreconditionError
	switch {
	case errors.As(err, &verr):
		return KindValidation, verr.Error()
	case errors.As(err, &perr):
		return KindPrecondition, fmt.Sprintf("step %s must be completed first (current step: %s)", perr.Required, perr.Current)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrOrphan), errors.Is(err, store.ErrInvalidTransition):
		return KindIntegrity, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, "the operation timed out, try again"
	}
	return KindInternal, "an internal error occurred while running the tool"
}

// KnowledgeBase answers knowledge questions.
type KnowledgeBase interface {
	Search(query string, limit int) []knowledge.Hit
	Topics() []string
	Entry(topicOrTitle string) (*knowledge.Entry, bool)
}

// Notifier delivers meeting invites. Delivery is best-effort and never
// fails the booking.
type Notifier interface {
	Invite(ctx context.Context, kind notify.Kind, appt *model.Appointment, customer *model.Customer) notify.Receipt
}

// LeadExporter appends persisted leads to an external log.
type LeadExporter interface {
	ExportLead(ctx context.Context, lead *model.Lead) error
}

// Deps are the collaborators handlers use. Knowledge, Notifier and
// Exporter are optional.
type Deps struct {
	Store     store.Store
	Knowledge KnowledgeBase
	Notifier  Notifier
	Exporter  LeadExporter
	Hours     BusinessHours
	Now       func() time.Time
	Log       *logger.Logger
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &store.ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/llm"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/tools"
	"github.com/capitalize-ai/lead-qualifier/internal/workflow"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

// runTools executes every call the model requested, in order, and appends
// the assistant request together with all results. spoken is the text the
// user already heard in that response. It returns the farewell text when
// end_call ran.
func (t *turn) runTools(resp *llm.CompletionResponse, spoken string) string {
	msgs := []model.Message{assistantMessage(spoken, resp.ToolCalls, resp)}
	farewell := ""
	rejected := false

	for _, call := range resp.ToolCalls {
		res, out := t.dispatch(call)
		if res.Kind == tools.KindPrecondition {
			rejected = true
		}
		if out.Farewell != "" {
			farewell = out.Farewell
		}
		msgs = append(msgs, model.Message{
			Role:       model.RoleTool,
			Content:    res.JSON(),
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    !res.OK,
		})
	}
	t.append(msgs...)

	if rejected {
		t.corrections++
	}
	return farewell
}

// dispatch checks the tool's workflow precondition, runs its handler
// under the tool timeout and advances the workflow on success.
func (t *turn) dispatch(call model.ToolCall) (tools.Result, tools.Outcome) {
	tool, ok := t.core.registry.Lookup(call.Name)
	if !ok {
		metrics.RecordToolCall(call.Name, "unknown", 0)
		return tools.Result{
			Tool:  call.Name,
			Error: fmt.Sprintf("unknown tool %q", call.Name),
			Kind:  tools.KindValidation,
		}, tools.Outcome{}
	}

	var machine *workflow.Machine
	if tool.Workflow != "" {
		machine = t.sess.Workflow(tool.Workflow)
		if machine.Terminal() {
			// A finished booking starts over; the located customer carries over.
			machine.Reset()
			if t.sess.CustomerID() != "" {
				machine.Advance(workflow.CustomerLocated)
			}
		}
		if err := machine.Check(tool.Requires); err != nil {
			metrics.PreconditionRejections.WithLabelValues(tool.Name, string(tool.Requires)).Inc()
			metrics.RecordToolCall(tool.Name, string(tools.KindPrecondition), 0)
			t.log.Info("tool rejected by workflow",
				zap.String("tool", tool.Name),
				zap.String("required", string(tool.Requires)),
				zap.String("current", string(machine.State())),
			)
			return t.core.registry.Fail(tool.Name, err), tools.Outcome{}
		}
	}

	ctx, span := t.core.tracer.Start(t.ctx, "tool."+tool.Name)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, t.core.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	out, err := tool.Handler(ctx, &tools.Call{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
		Session:   t.sess,
	})
	elapsed := time.Since(start)

	if err != nil {
		res := t.core.registry.Fail(tool.Name, err)
		metrics.RecordToolCall(tool.Name, string(res.Kind), elapsed.Seconds())
		span.SetAttributes(attribute.String("tool.error_kind", string(res.Kind)))
		if res.Kind == tools.KindInternal || res.Kind == tools.KindTimeout {
			span.SetStatus(codes.Error, err.Error())
			t.log.Error("tool failed", zap.String("tool", tool.Name), zap.Duration("elapsed", elapsed), zap.Error(err))
		} else {
			t.log.Debug("tool rejected input", zap.String("tool", tool.Name), zap.Error(err))
		}
		return res, tools.Outcome{}
	}

	if machine != nil && out.Advance && tool.Advances != "" {
		machine.Advance(tool.Advances)
	}
	metrics.RecordToolCall(tool.Name, "ok", elapsed.Seconds())
	t.log.Debug("tool succeeded", zap.String("tool", tool.Name), zap.Duration("elapsed", elapsed))
	return tools.Success(tool.Name, out.Data), out
}

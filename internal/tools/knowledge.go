package tools

import (
	"context"
	"errors"

	"github.com/capitalize-ai/lead-qualifier/internal/store"
)

var errNoKnowledge = errors.New("knowledge base is not configured")

type searchArgs struct {
	Query string `json:"query"`
}

func (h *handlers) searchKnowledge(ctx context.Context, call *Call) (Outcome, error) {
	var args searchArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if err := required("query", args.Query); err != nil {
		return Outcome{}, err
	}
	if h.deps.Knowledge == nil {
		return Outcome{}, errNoKnowledge
	}

	hits := h.deps.Knowledge.Search(args.Query, 3)
	if len(hits) == 0 {
		return Outcome{Data: map[string]any{
			"found":   false,
			"message": "Nothing in the knowledge base matches that question.",
		}}, nil
	}
	return Outcome{Data: map[string]any{
		"found":         true,
		"title":         hits[0].Title,
		"topic":         hits[0].Topic,
		"content":       hits[0].Excerpt,
		"results":       hits,
		"total_results": len(hits),
	}}, nil
}

func (h *handlers) knowledgeTopics(ctx context.Context, call *Call) (Outcome, error) {
	if h.deps.Knowledge == nil {
		return Outcome{}, errNoKnowledge
	}
	topics := h.deps.Knowledge.Topics()
	if topics == nil {
		topics = []string{}
	}
	return Outcome{Data: map[string]any{"topics": topics, "count": len(topics)}}, nil
}

type entryArgs struct {
	Topic string `json:"topic"`
	Title string `json:"title"`
}

func (h *handlers) knowledgeEntry(ctx context.Context, call *Call) (Outcome, error) {
	var args entryArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	q := args.Title
	if q == "" {
		q = args.Topic
	}
	if err := required("topic", q); err != nil {
		return Outcome{}, err
	}
	if h.deps.Knowledge == nil {
		return Outcome{}, errNoKnowledge
	}

	e, ok := h.deps.Knowledge.Entry(q)
	if !ok {
		return Outcome{}, store.ErrNotFound
	}
	return Outcome{Data: map[string]any{
		"found":   true,
		"id":      e.ID,
		"title":   e.Title,
		"topic":   e.Topic,
		"tags":    e.Tags,
		"content": e.Content,
	}}, nil
}

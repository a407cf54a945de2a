package service

import (
	"context"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/internal/tools"
)

// LeadService reads persisted qualification records.
type LeadService struct {
	store store.Store
}

// NewLeadService creates a lead service.
func NewLeadService(st store.Store) *LeadService {
	return &LeadService{store: st}
}

// List returns leads matching q, highest score first.
func (s *LeadService) List(ctx context.Context, q store.LeadQuery) ([]model.Lead, error) {
	leads, err := s.store.QueryLeads(ctx, q)
	if err != nil {
		return nil, err
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	return leads, nil
}

// HighPriority returns the top HIGH priority leads.
func (s *LeadService) HighPriority(ctx context.Context, limit int) ([]model.Lead, error) {
	return s.List(ctx, store.LeadQuery{Priority: model.PriorityHigh, Limit: limit})
}

// Summary aggregates every lead by priority.
func (s *LeadService) Summary(ctx context.Context) (model.LeadSummary, error) {
	leads, err := s.store.QueryLeads(ctx, store.LeadQuery{})
	if err != nil {
		return model.LeadSummary{}, err
	}
	return store.Summarize(leads), nil
}

// Get returns one lead.
func (s *LeadService) Get(ctx context.Context, id string) (*model.Lead, error) {
	return s.store.GetLead(ctx, id)
}

// Handoff renders the sales handoff summary for a lead.
func (s *LeadService) Handoff(ctx context.Context, id, summary string) (string, *model.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return tools.Handoff(lead, summary), lead, nil
}

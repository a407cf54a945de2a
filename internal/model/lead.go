package model

import (
	"time"
)

// BusinessType classifies the prospect's business.
type BusinessType string

const (
	BusinessNewCafe  BusinessType = "new_cafe"
	BusinessExisting BusinessType = "existing_business"
	BusinessUnknown  BusinessType = "unknown"
)

// Valid reports whether t is a known business type.
func (t BusinessType) Valid() bool {
	switch t {
	case BusinessNewCafe, BusinessExisting, BusinessUnknown:
		return true
	}
	return false
}

// Priority is the sales priority band of a lead.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Lead is the qualification record built up over one session.
//
// Score and Priority are derived from the other fields and must only be
// written by the scoring package.
type Lead struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	// Business profile
	BusinessType   BusinessType `json:"business_type"`
	Timeline       string       `json:"timeline,omitempty"`
	PainPoints     []string     `json:"pain_points,omitempty"`
	BusinessScale  string       `json:"business_scale,omitempty"`
	Volume         string       `json:"volume,omitempty"`
	SupportNeeds   []string     `json:"support_needs,omitempty"`
	CoffeeStyle    string       `json:"coffee_style,omitempty"`
	EquipmentNeeds string       `json:"equipment_needs,omitempty"`

	// Contact
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactRole  string `json:"contact_role,omitempty"`

	// Derived
	Score    int      `json:"score"`
	Priority Priority `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the lead.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	if l.PainPoints != nil {
		c.PainPoints = append([]string(nil), l.PainPoints...)
	}
	if l.SupportNeeds != nil {
		c.SupportNeeds = append([]string(nil), l.SupportNeeds...)
	}
	return &c
}

// LeadSummary aggregates persisted leads by priority.
type LeadSummary struct {
	Total        int     `json:"total"`
	High         int     `json:"high"`
	Medium       int     `json:"medium"`
	Low          int     `json:"low"`
	AverageScore float64 `json:"average_score"`
}

// Package model defines data structures for the lead qualification service.
package model

import (
	"time"
)

// SessionInfo is the externally visible view of a chat session.
type SessionInfo struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	UserID       string            `json:"user_id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActive   time.Time         `json:"last_active"`
	Terminated   bool              `json:"terminated"`
	CustomerID   string            `json:"customer_id,omitempty"`
	Workflows    map[string]string `json:"workflows,omitempty"`
	MessageCount int               `json:"message_count"`
	Lead         *Lead             `json:"lead,omitempty"`
}

// CreateSessionRequest is the request to open a new session.
type CreateSessionRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

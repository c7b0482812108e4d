package models

import (
	"time"
)

// ExchangeRecord is the audit trail of one relay request. It carries
// metadata only, never message content.
type ExchangeRecord struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"request_id"`
	PersonaID  string        `json:"persona_id"`
	Transport  string        `json:"transport"`
	State      string        `json:"state"`
	Reason     string        `json:"reason,omitempty"`
	Fragments  int           `json:"fragments"`
	Bytes      int           `json:"bytes"`
	StartedAt  time.Time     `json:"started_at"`
	FirstByte  time.Duration `json:"first_byte"`
	Duration   time.Duration `json:"duration"`
	HistoryLen int           `json:"history_len"`
}

// Package storage defines the event journal contract for campaign views.
//
// The journal is an audit log of every realtime event a view received and
// what the merge did with it. Views only append; nothing reads the journal
// back into view state.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Status classifies how a view handled a journaled event.
type Status string

const (
	// StatusApplied marks an event that changed view state.
	StatusApplied Status = "applied"
	// StatusIgnored marks a well-formed event the merge rules discarded.
	StatusIgnored Status = "ignored"
	// StatusRejected marks a payload that failed decoding.
	StatusRejected Status = "rejected"
)

// Entry is one journaled realtime event.
type Entry struct {
	Seq        int64
	CampaignID string
	Event      string
	Status     Status
	Outcome    string
	Reason     string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Journal appends and lists journaled events.
type Journal interface {
	Append(ctx context.Context, entry Entry) (int64, error)
	Recent(ctx context.Context, campaignID string, limit int) ([]Entry, error)
	Close() error
}

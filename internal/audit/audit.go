// Package audit records security-relevant events into an append-only
// trail. Events cover authentication, invite lifecycle and patient
// record access; recording failures propagate to the caller so that
// an action is never completed without its trail entry.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// Actions recorded by the system. Handlers pass these constants so the
// trail stays grepable.
const (
	ActionLogin          = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionLogout         = "auth.logout"
	ActionInviteIssued   = "invite.issued"
	ActionInviteAccepted = "invite.accepted"
	ActionPatientSearch  = "patient.search"
	ActionPatientView    = "patient.view"
	ActionPatientCreate  = "patient.create"
	ActionDuplicateCheck = "patient.duplicate_check"
)

// Event is a single audit trail entry. ActorID is empty for
// unauthenticated actions (failed logins, invite redemption before an
// identity exists) and stored as NULL.
type Event struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	ObjectType string    `json:"object_type,omitempty"`
	ObjectID   string    `json:"object_id,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	UASummary  string    `json:"ua_summary,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows a trail query. Zero fields are ignored; Limit is
// capped by the store.
type Filter struct {
	ActorID    string
	Action     string
	ObjectType string
	ObjectID   string
	From       time.Time
	To         time.Time
	Limit      int
}

// Appender persists events.
type Appender interface {
	AppendEvent(ctx context.Context, ev Event) (Event, error)
}

// Querier reads the trail back.
type Querier interface {
	QueryEvents(ctx context.Context, f Filter) ([]Event, error)
}

// Store combines append and query.
type Store interface {
	Appender
	Querier
}

// SummarizeUserAgent reduces a raw User-Agent header to
// "Browser/Version (OS)" for trail readability. Raw headers are kept
// alongside the summary.
func SummarizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	var b strings.Builder
	b.WriteString(name)
	if version != "" {
		b.WriteString("/")
		b.WriteString(version)
	}
	if os := ua.OS(); os != "" {
		b.WriteString(" (")
		b.WriteString(os)
		b.WriteString(")")
	}
	return b.String()
}

// ErrActionRequired rejects events without an action name.
var ErrActionRequired = errors.New("audit: action is required")

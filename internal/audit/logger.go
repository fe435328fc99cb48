package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Actions recorded by the account and session flows.
const (
	ActionAccountCreated  = "account.created"
	ActionAccountUpdated  = "account.updated"
	ActionAccountDeleted  = "account.deleted"
	ActionRoleMigrated    = "account.role_migrated"
	ActionPasswordChanged = "account.password_changed"
	ActionEmailChanged    = "account.email_changed"
	ActionLogin           = "session.login"
	ActionProviderLogin   = "session.provider_login"
	ActionLogout          = "session.logout"
	ActionRefresh         = "session.refresh"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`  // identifier of the caller
	Target    string    `json:"target,omitempty"` // identifier acted upon
	Details   string    `json:"details,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var (
	mu          sync.RWMutex
	auditLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// SetOutput redirects audit events, e.g. to a dedicated file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	auditLogger = zerolog.New(w).With().Timestamp().Logger()
}

// Log records an audit event. err, when non-nil, marks the event failed.
func Log(action, actor, target, details string, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Details:   details,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}

	mu.RLock()
	logger := auditLogger
	mu.RUnlock()

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		log.Error().Err(marshalErr).Msg("Failed to marshal audit event to JSON")
		logger.Error().
			Str("action", action).
			Str("actor", actor).
			Str("target", target).
			Bool("success", event.Success).
			Err(err).
			Msg("Audit Log (fallback)")
		return
	}
	logger.Log().RawJSON("audit_event", entry).Msg("")
}

package events

import "context"

// Streams
const (
	StreamVerification = "events:verification"
	StreamRoles        = "events:roles"
	StreamStorage      = "events:storage"
)

// Event types
const (
	EventVerificationStarted  = "verification_started"
	EventVerificationResolved = "verification_resolved"
	EventRoleGranted          = "role_granted"
	EventRoleRevoked          = "role_revoked"
	EventNFTSold              = "nft_sold"
	EventAuditFinding         = "audit_finding"
	EventStorageModeChanged   = "storage_mode_changed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }

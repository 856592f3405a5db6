// Package gateway talks to the external messaging gateway that owns the
// connected channel accounts (one gateway instance per account).
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// State is the connection state reported by the gateway.
type State string

const (
	StateOpen       State = "open"
	StateClose      State = "close"
	StateConnecting State = "connecting"
)

// Presence is the chat presence shown to the recipient.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
	PresenceAvailable Presence = "available"
)

// SendResult is returned for an accepted message.
type SendResult struct {
	ExternalID string
	Status     string
}

// Client is the gateway contract used by the send worker and the health tick.
type Client interface {
	SendText(ctx context.Context, instance, phone, text string) (SendResult, error)
	ConnectionState(ctx context.Context, instance string) (State, error)
	SetPresence(ctx context.Context, instance, phone string, presence Presence) error
}

// ErrorKind classifies gateway failures by how the caller must react.
type ErrorKind int

const (
	// KindTransient failures may succeed later; the lead stays eligible.
	KindTransient ErrorKind = iota
	// KindInvalidNumber means the recipient does not exist on the network.
	KindInvalidNumber
	// KindUnauthorized means the instance or API key was rejected.
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidNumber:
		return "invalid_number"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transient"
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a gateway error. Unclassified errors are transient.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// IsInvalidNumber reports whether err says the recipient does not exist.
func IsInvalidNumber(err error) bool {
	return err != nil && KindOf(err) == KindInvalidNumber
}

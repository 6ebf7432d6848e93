// Package events is the session transport: session-scoped broadcast subjects
// with at-least-once, cross-subscriber-unordered delivery.
package events

import (
	"context"
	"errors"
	"strings"
)

// SubjectPrefix is the root of every session subject.
const SubjectPrefix = "viewshare.session"

// Channel kinds within one session.
const (
	KindControl     = "control"
	KindInteraction = "interaction"
	KindPresence    = "presence"
	KindRows        = "rows"
)

// OriginHeader carries the publishing connection id.
const OriginHeader = "Viewshare-Origin"

// ErrDisconnected is returned by Broadcast while the transport is down.
var ErrDisconnected = errors.New("transport disconnected")

// Subject returns the subject for one channel of a session.
func Subject(sessionID, kind string) string {
	return SubjectPrefix + "." + sessionID + "." + kind
}

// SessionWildcard matches every channel of a session.
func SessionWildcard(sessionID string) string {
	return SubjectPrefix + "." + sessionID + ".>"
}

// SplitSubject returns the session id and channel kind of a session subject.
func SplitSubject(subject string) (sessionID, kind string, ok bool) {
	rest, found := strings.CutPrefix(subject, SubjectPrefix+".")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// Message is one delivery on a subject.
type Message struct {
	Subject string
	Origin  string
	Data    []byte
}

// Handler receives deliveries. Handlers must not block; they hand work to
// their owner's event loop.
type Handler func(Message)

// SubscribeOptions tunes one subscription.
type SubscribeOptions struct {
	// SelfEcho delivers messages published with the same Origin. Off by default.
	SelfEcho bool
	// Origin identifies the subscribing connection for echo suppression.
	Origin string
}

// accepts reports whether a message from origin passes the echo filter.
func (o SubscribeOptions) accepts(origin string) bool {
	return o.SelfEcho || o.Origin == "" || origin != o.Origin
}

// Publisher is the interface for emitting JSON-encoded events.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// Bus is the full session transport used by participants.
type Bus interface {
	Publisher

	// Broadcast publishes a pre-encoded payload tagged with the sender's origin.
	Broadcast(ctx context.Context, subject, origin string, data []byte) error

	// Subscribe registers h for subject (NATS wildcards allowed). The returned
	// cancel function is idempotent.
	Subscribe(subject string, opts SubscribeOptions, h Handler) (cancel func(), err error)

	// OnConnectionChange registers fn to be told when the connection is lost
	// (false) or restored (true). Retry policy belongs to the transport.
	OnConnectionChange(fn func(connected bool))
}

// MatchSubject matches a dot-separated subject against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func MatchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patParts := strings.Split(pattern, ".")
	subParts := strings.Split(subject, ".")

	for i, pp := range patParts {
		if pp == ">" {
			return i < len(subParts)
		}
		if i >= len(subParts) {
			return false
		}
		if pp != "*" && pp != subParts[i] {
			return false
		}
	}

	return len(patParts) == len(subParts)
}

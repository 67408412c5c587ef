package authcore

import (
	"io"
	"time"

	"github.com/quillnotes/authcore/internal/audit"
)

// TokenPair is the result of issuing or rotating a session: a short-lived
// signed access token and a single-use refresh credential. The refresh
// credential's plaintext secret exists only in this value.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshTokenID   string
	RefreshExpiresAt time.Time
}

// Identity is the authenticated principal behind a verified access token.
type Identity struct {
	Username string
	Admin    bool
}

// AuditEvent is the structured record emitted for every authentication
// decision, success or failure.
type AuditEvent = audit.Event

// AuditSink receives dispatched audit events.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that buffers events into a channel, mostly
// for tests and in-process consumers.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per event
// line to w, for shipping the audit stream to a file or log collector.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

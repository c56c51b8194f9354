package puzzle

import "github.com/google/uuid"

// Session carries the correlation id scoping one client lifetime's event
// channel subscriptions. The id is fixed at creation: every job submitted
// through the session shares it, and the remote tags that session's events
// with it.
type Session struct {
	id string
}

// NewSession mints a fresh correlation id.
func NewSession() Session {
	return Session{id: uuid.NewString()}
}

// ID returns the session's correlation id.
func (s Session) ID() string {
	return s.id
}

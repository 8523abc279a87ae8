package model

import "time"

// SessionStatus describes the table-visit lifecycle.
type SessionStatus string

const (
	SessionStatusOpen            SessionStatus = "open"
	SessionStatusAwaitingPayment SessionStatus = "awaiting_payment"
	SessionStatusClosed          SessionStatus = "closed"
	SessionStatusAbandoned       SessionStatus = "abandoned"
)

// Session is one diner's table visit, from table claim to settlement.
// Version increases by one on every transition; writers must present
// the version they last observed.
type Session struct {
	ID        string
	TableID   string
	Status    SessionStatus
	Version   int64
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// Live reports whether the session still holds its table.
func (s *Session) Live() bool {
	return s.Status == SessionStatusOpen || s.Status == SessionStatusAwaitingPayment
}

// legalTransitions is the full set of allowed status changes.
// awaiting_payment→open resumes ordering after a failed capture.
var legalTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusOpen:            {SessionStatusAwaitingPayment, SessionStatusAbandoned},
	SessionStatusAwaitingPayment: {SessionStatusClosed, SessionStatusOpen},
}

// CanTransition reports whether from→to is a legal status change.
func CanTransition(from, to SessionStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

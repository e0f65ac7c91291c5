package model

// Status is the lifecycle state of a PaymentIntent.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// statusRank orders the forward chain. Terminal branches (expired, failed)
// sit outside the chain and rank above everything non-delivered they can be
// reached from.
var statusRank = map[Status]int{
	StatusCreated:   0,
	StatusPending:   1,
	StatusPaid:      2,
	StatusConfirmed: 3,
	StatusDelivered: 4,
	StatusExpired:   4,
	StatusFailed:    4,
}

// Chain is the forward progression in order. Fast-forwarding walks this
// slice so the audit trail records every intermediate state.
var Chain = []Status{StatusCreated, StatusPending, StatusPaid, StatusConfirmed, StatusDelivered}

// Rank returns the ordering of s within the lifecycle; unknown statuses rank
// lowest so they can never overwrite real state.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// AtOrPast reports whether s already reached target, so that a replayed
// notification for target is a no-op.
func (s Status) AtOrPast(target Status) bool {
	if s == target {
		return true
	}
	return s.Rank() >= target.Rank()
}

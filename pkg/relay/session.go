package relay

import "context"

// TrackedMessages lists message ids tracked for one user's private chat.
type TrackedMessages struct {
	// Sent are messages the bot created.
	Sent []int
	// Commands are messages the user sent to the bot.
	Commands []int
}

// All returns sent and command ids together.
func (m TrackedMessages) All() []int {
	out := make([]int, 0, len(m.Sent)+len(m.Commands))
	out = append(out, m.Sent...)
	out = append(out, m.Commands...)

	return out
}

// SessionStore keeps per-user delivery tracking and batch stop flags.
type SessionStore interface {
	// RecordSent tracks messages the bot created in the user's chat.
	RecordSent(ctx context.Context, userID int64, ids ...int) error
	// RecordCommand tracks messages the user sent to the bot.
	RecordCommand(ctx context.Context, userID int64, ids ...int) error
	// DrainForDeletion returns and forgets every tracked message of the user.
	DrainForDeletion(ctx context.Context, userID int64) (TrackedMessages, error)
	// SetStopFlag sets or clears the user's batch stop request.
	SetStopFlag(ctx context.Context, userID int64, stop bool) error
	// CheckStopFlag reports whether the user requested a batch stop.
	CheckStopFlag(ctx context.Context, userID int64) (bool, error)
}

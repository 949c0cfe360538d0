package chat

import "time"

// DefaultMailboxSize is the per-participant outbound queue capacity.
const DefaultMailboxSize = 64

// DefaultChatGreeting is what the server configuration sends to every new
// chat participant. Rooms built without WithGreeting send nothing.
const DefaultChatGreeting = "Hi from server"

type roomOptions struct {
	mailboxSize         int
	maxParticipants     int
	maxConsecutiveDrops int
	greeting            string
	rateBurst           int
	rateInterval        time.Duration
}

func defaultRoomOptions() roomOptions {
	return roomOptions{
		mailboxSize: DefaultMailboxSize,
	}
}

// Option customises a Room.
type Option func(*roomOptions)

// WithMailboxSize sets the capacity of every participant's mailbox.
// Non-positive values keep the default.
func WithMailboxSize(n int) Option {
	return func(o *roomOptions) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

// WithMaxParticipants caps concurrent membership. Zero means unlimited.
func WithMaxParticipants(n int) Option {
	return func(o *roomOptions) {
		if n >= 0 {
			o.maxParticipants = n
		}
	}
}

// WithMaxConsecutiveDrops evicts a participant once this many broadcasts in a
// row were dropped for it. Zero disables eviction: frames are dropped only.
func WithMaxConsecutiveDrops(n int) Option {
	return func(o *roomOptions) {
		if n >= 0 {
			o.maxConsecutiveDrops = n
		}
	}
}

// WithGreeting sends text to every participant right after it joins.
// An empty greeting sends nothing.
func WithGreeting(text string) Option {
	return func(o *roomOptions) {
		o.greeting = text
	}
}

// WithRateLimit allows each participant burst messages per interval;
// messages beyond that are discarded. A zero burst disables limiting.
func WithRateLimit(burst int, interval time.Duration) Option {
	return func(o *roomOptions) {
		o.rateBurst = burst
		o.rateInterval = interval
	}
}

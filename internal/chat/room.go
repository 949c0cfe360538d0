package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chuckpreslar/emission"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Event names a room lifecycle notification delivered through Room.On.
type Event string

const (
	EventJoined    Event = "joined"
	EventLeft      Event = "left"
	EventDropped   Event = "dropped"
	EventBroadcast Event = "broadcast"
)

// Room is the shared chat room. All membership reads and writes go through
// mu: Join and Leave take the write lock, Broadcast holds the read lock while
// it enqueues, so a participant removed by Leave is never offered another
// frame.
type Room struct {
	log    zerolog.Logger
	opts   roomOptions
	events *emission.Emitter

	mu           sync.RWMutex
	participants map[ParticipantID]*Participant
	closed       bool

	wg sync.WaitGroup
}

// NewRoom creates an empty, open room.
func NewRoom(logger zerolog.Logger, opts ...Option) *Room {
	o := defaultRoomOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Room{
		log:          logger.With().Str("component", "room").Logger(),
		opts:         o,
		events:       emission.NewEmitter(),
		participants: make(map[ParticipantID]*Participant),
	}
	r.events.RecoverWith(func(event, _ interface{}, err error) {
		r.log.Error().Err(err).Interface("event", event).Msg("Room event listener panicked")
	})
	return r
}

// On registers fn to be called with the participant concerned by every
// occurrence of event.
func (r *Room) On(event Event, fn func(ParticipantID)) {
	r.events.On(event, fn)
}

func (r *Room) emit(event Event, id ParticipantID) {
	r.events.Emit(event, id)
}

// Join registers conn as a new participant and starts its loops. The
// participant stays in the room until its connection fails, ctx is cancelled,
// Leave is called or the room shuts down.
func (r *Room) Join(ctx context.Context, conn Connection) (ParticipantID, error) {
	p, err := r.join(ctx, conn)
	if err != nil {
		return "", err
	}
	return p.id, nil
}

// Serve joins conn and blocks until the participant is gone.
func (r *Room) Serve(ctx context.Context, conn Connection) error {
	p, err := r.join(ctx, conn)
	if err != nil {
		return err
	}
	<-p.done
	return nil
}

func (r *Room) join(ctx context.Context, conn Connection) (*Participant, error) {
	if conn == nil {
		return nil, errors.New("chat: nil connection")
	}

	r.mu.RLock()
	err := r.admitLocked()
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if r.opts.greeting != "" {
		if err := conn.Send(ctx, Text(r.opts.greeting)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("chat: greeting new participant: %w", err)
		}
	}

	r.mu.Lock()
	if err := r.admitLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	id := newParticipantID()
	for r.participants[id] != nil {
		id = newParticipantID()
	}
	p := newParticipant(ctx, id, conn, r.opts, r.log)
	r.participants[id] = p
	p.setState(StateActive)
	count := len(r.participants)
	r.wg.Add(1)
	r.mu.Unlock()

	go p.run(r)

	p.log.Info().Int("members", count).Msg("Participant joined")
	r.emit(EventJoined, id)
	return p, nil
}

// admitLocked reports why a new participant cannot join. Callers hold mu.
func (r *Room) admitLocked() error {
	if r.closed {
		return ErrRoomClosed
	}
	if r.opts.maxParticipants > 0 && len(r.participants) >= r.opts.maxParticipants {
		return ErrRoomFull
	}
	return nil
}

// Leave removes the participant and closes its connection and mailbox.
// Unknown or already removed ids are ignored.
func (r *Room) Leave(id ParticipantID) {
	r.mu.Lock()
	p, ok := r.participants[id]
	if ok {
		delete(r.participants, id)
	}
	count := len(r.participants)
	r.mu.Unlock()

	if !ok {
		return
	}

	p.stop()
	p.log.Info().Int("members", count).Msg("Participant left")
	r.emit(EventLeft, id)
}

// Broadcast enqueues text for every participant except sender and returns
// how many mailboxes accepted it. A full mailbox drops the frame for that
// participant only.
func (r *Room) Broadcast(sender ParticipantID, text string) int {
	frame := Text(text)

	var (
		delivered int
		dropped   []*Participant
		evicted   []ParticipantID
	)

	r.mu.RLock()
	for id, p := range r.participants {
		if id == sender {
			continue
		}

		err := p.mailbox.offer(frame)
		switch {
		case err == nil:
			p.resetDrops()
			delivered++
		case errors.Is(err, ErrMailboxFull):
			dropped = append(dropped, p)
			if n := p.recordDrop(); r.opts.maxConsecutiveDrops > 0 && n >= int64(r.opts.maxConsecutiveDrops) {
				evicted = append(evicted, id)
			}
		default:
			evicted = append(evicted, id)
		}
	}
	r.mu.RUnlock()

	for _, p := range dropped {
		p.log.Warn().
			Int("queued", p.mailbox.len()).
			Int("capacity", p.mailbox.capacity()).
			Msg("Mailbox full; dropping message")
		r.emit(EventDropped, p.id)
	}
	for _, id := range evicted {
		r.log.Warn().Str("participant", string(id)).Msg("Removing participant that cannot keep up")
		r.Leave(id)
	}

	r.emit(EventBroadcast, sender)
	return delivered
}

// Members returns a snapshot of the current participant ids.
func (r *Room) Members() []ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.participants)
}

// Len returns the number of current participants.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Shutdown closes the room to new participants, removes everyone and waits
// for all participant loops to stop, or until timeout elapses.
func (r *Room) Shutdown(timeout time.Duration) error {
	r.log.Info().Msg("Shutting down room...")

	r.mu.Lock()
	r.closed = true
	ids := lo.Keys(r.participants)
	r.mu.Unlock()

	for _, id := range ids {
		r.Leave(id)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Int("closed", len(ids)).Msg("Room shutdown completed")
		return nil
	case <-time.After(timeout):
		r.log.Warn().Msg("Room shutdown timeout reached, some participants may still be running")
		return context.DeadlineExceeded
	}
}

package chat

import "context"

// JoinParticipant exposes the joined participant so tests can observe its
// lifecycle after it has left the room.
func (r *Room) JoinParticipant(ctx context.Context, conn Connection) (*Participant, error) {
	return r.join(ctx, conn)
}

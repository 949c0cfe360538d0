// Package chat implements the transport-agnostic core of the relay: the
// Connection abstraction, the shared chat Room with its per-participant
// mailboxes and loops, and the stateless Echo handler.
//
// Room owns every Participant. Each participant runs a receive loop that
// feeds Room.Broadcast and a send loop that drains its bounded mailbox onto
// the connection. Broadcast never blocks on a slow participant; a full
// mailbox drops the newest frame for that participant only.
package chat

package chat

import "errors"

var (
	// ErrRoomClosed is returned by Join once the room has been shut down.
	ErrRoomClosed = errors.New("chat: room closed")
	// ErrRoomFull is returned by Join when the participant limit is reached.
	ErrRoomFull = errors.New("chat: room full")
	// ErrMailboxFull reports a dropped frame for a slow participant.
	ErrMailboxFull = errors.New("chat: mailbox full")
	// ErrMailboxClosed reports an enqueue onto a participant that is leaving.
	ErrMailboxClosed = errors.New("chat: mailbox closed")
)

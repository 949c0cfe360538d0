package chat

// FrameKind tags the variant carried by a Frame.
type FrameKind int

const (
	// FrameText carries a UTF-8 text payload.
	FrameText FrameKind = iota + 1
	// FrameClose signals that the peer started the close handshake.
	FrameClose
	// FrameOther is anything the chat logic does not interpret
	// (binary payloads, malformed text).
	FrameOther
)

// String returns a short name for logs.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameClose:
		return "close"
	case FrameOther:
		return "other"
	default:
		return "unknown"
	}
}

// Frame is one discrete message unit exchanged over a Connection.
type Frame struct {
	Kind FrameKind
	Text string
}

// Text builds a text frame.
func Text(s string) Frame {
	return Frame{Kind: FrameText, Text: s}
}

// CloseFrame builds a close frame.
func CloseFrame() Frame {
	return Frame{Kind: FrameClose}
}

// IsText reports whether f carries chat content.
func (f Frame) IsText() bool {
	return f.Kind == FrameText
}

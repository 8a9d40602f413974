package room

// Inbound is one message received from a participant. Exactly one of Audio
// and Chat is set.
type Inbound struct {
	Audio []byte
	Chat  string
}

// Transport carries one participant's traffic. Receive is called from a
// single reader goroutine; SendAudio, SendEvent and Ping from a single
// writer goroutine.
type Transport interface {
	// Receive blocks until the next message. Any error ends the session.
	Receive() (Inbound, error)
	// SendAudio writes PCM16LE audio at the participant's sample rate.
	SendAudio(pcm []byte) error
	// SendEvent writes an event. Transports without a control channel may
	// drop events they cannot represent.
	SendEvent(ev Event) error
	// Close is called once after the writer has stopped.
	Close() error
}

// Pinger is implemented by transports that need a keepalive.
type Pinger interface {
	Ping() error
}

// Spec describes a participant about to join.
type Spec struct {
	Room     string
	Identity string
	Kind     ParticipantKind
	// SampleRate of 0 selects DefaultSampleRate(Kind).
	SampleRate int
}

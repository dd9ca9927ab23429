package audio

// Capture produces fixed-duration encoded audio chunks while the local user
// is transmitting. Real device capture lives outside the session layer; the
// session only drains the channel.
type Capture interface {
	// Chunks yields encoded audio chunks until the capture is closed.
	Chunks() <-chan []byte
	Close() error
}

// Playback consumes inbound audio payloads for immediate playout. Jitter
// smoothing is the player's concern, not the session layer's.
type Playback interface {
	Play(payload []byte)
}

// Discard is a Playback that drops everything. It stands in when no output
// device is attached, and keeps the receive path non-blocking.
type Discard struct{}

func (Discard) Play([]byte) {}

// ChunkSource adapts a plain channel to Capture, for callers that feed
// chunks from their own capture pipeline.
type ChunkSource struct {
	C chan []byte
}

func NewChunkSource(buffer int) *ChunkSource {
	return &ChunkSource{C: make(chan []byte, buffer)}
}

func (s *ChunkSource) Chunks() <-chan []byte { return s.C }

func (s *ChunkSource) Close() error {
	close(s.C)
	return nil
}

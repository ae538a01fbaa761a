package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// Level reduces a chunk of little-endian PCM16 samples to a single loudness
// value on a 0-255 scale: the mean absolute amplitude, normalized. This
// matches the byte-frequency scale the voice activity threshold is tuned
// against.
func Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}

	return sum / float64(n) / 32768.0 * 255.0
}

// LevelMeter tracks the loudness of the most recent audio on a stream. It
// holds its own reader, so metering never steals samples from captures or
// the session recorder.
type LevelMeter struct {
	reader *StreamReader
	level  atomic.Uint64 // float64 bits
}

// NewLevelMeter attaches a meter to the stream and starts tracking
func NewLevelMeter(stream *Stream) (*LevelMeter, error) {
	reader, err := stream.CreateReader("level-meter")
	if err != nil {
		return nil, fmt.Errorf("attaching level meter: %w", err)
	}

	m := &LevelMeter{reader: reader}
	go m.run()
	return m, nil
}

func (m *LevelMeter) run() {
	buf := make([]byte, 4096)
	for {
		n, err := m.reader.Read(buf)
		if n > 0 {
			m.level.Store(math.Float64bits(Level(buf[:n])))
		}
		if err != nil {
			m.level.Store(0)
			return
		}
	}
}

// Level returns the loudness of the most recently metered chunk, 0-255
func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Close detaches the meter from the stream
func (m *LevelMeter) Close() error {
	return m.reader.Close()
}

package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

// readerBufferChunks bounds how many pending chunks a slow reader may hold
// before new audio overwrites its oldest data
const readerBufferChunks = 256

// Stream fans captured PCM16 audio out to any number of named readers. The
// device callback writes into the stream; the voice activity monitor, segment
// captures and the session recorder each hold their own reader. Readers never
// close the stream — only the owner (the session controller, via the device)
// does.
type Stream struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	readers map[string]*StreamReader
	closed  bool
	logger  *logger.Logger
}

// NewStream creates a stream carrying PCM16 audio in the given format
func NewStream(sampleRate, channels int, log *logger.Logger) *Stream {
	return &Stream{
		sampleRate: sampleRate,
		channels:   channels,
		readers:    make(map[string]*StreamReader),
		logger:     log.Named("audio-stream"),
	}
}

// SampleRate returns the stream sample rate in Hz
func (s *Stream) SampleRate() int { return s.sampleRate }

// Channels returns the stream channel count
func (s *Stream) Channels() int { return s.channels }

// Write delivers a chunk of PCM16 audio to every attached reader. A reader
// that has fallen readerBufferChunks behind loses its oldest chunk rather
// than stalling capture.
func (s *Stream) Write(chunk []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("stream is closed")
	}

	// Copy once; readers share the slice but never mutate it
	data := make([]byte, len(chunk))
	copy(data, chunk)

	for id, r := range s.readers {
		select {
		case r.chunks <- data:
		default:
			select {
			case <-r.chunks:
				s.logger.Debug("Reader falling behind, dropping oldest chunk", logger.String("reader", id))
			default:
			}
			select {
			case r.chunks <- data:
			default:
			}
		}
	}

	return len(chunk), nil
}

// CreateReader attaches a new named reader to the stream
func (s *Stream) CreateReader(id string) (*StreamReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("stream is closed")
	}
	if _, exists := s.readers[id]; exists {
		return nil, fmt.Errorf("reader %q already exists", id)
	}

	r := &StreamReader{
		id:     id,
		stream: s,
		chunks: make(chan []byte, readerBufferChunks),
		done:   make(chan struct{}),
	}
	s.readers[id] = r

	s.logger.Debug("Reader attached", logger.String("reader", id), logger.Int("reader_count", len(s.readers)))
	return r, nil
}

// RemoveReader detaches a reader by id
func (s *Stream) RemoveReader(id string) {
	s.mu.Lock()
	r, ok := s.readers[id]
	if ok {
		delete(s.readers, id)
	}
	s.mu.Unlock()

	if ok {
		r.closeOnce.Do(func() { close(r.done) })
		s.logger.Debug("Reader detached", logger.String("reader", id))
	}
}

// Close detaches all readers and marks the stream dead. Subsequent reads on
// detached readers drain their buffered audio, then return io.EOF.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	readers := make([]*StreamReader, 0, len(s.readers))
	for _, r := range s.readers {
		readers = append(readers, r)
	}
	s.readers = make(map[string]*StreamReader)
	s.mu.Unlock()

	for _, r := range readers {
		r.closeOnce.Do(func() { close(r.done) })
	}

	s.logger.Debug("Stream closed", logger.Int("readers_detached", len(readers)))
	return nil
}

// StreamReader is a single consumer of the stream. It implements
// io.ReadCloser; Close only detaches this reader, never the stream.
type StreamReader struct {
	id        string
	stream    *Stream
	chunks    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	pending   []byte
}

// Read fills p with the next available PCM bytes, blocking until audio
// arrives or the reader is detached
func (r *StreamReader) Read(p []byte) (int, error) {
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	select {
	case chunk := <-r.chunks:
		n := copy(p, chunk)
		if n < len(chunk) {
			r.pending = chunk[n:]
		}
		return n, nil
	case <-r.done:
		// Drain anything buffered before reporting EOF
		select {
		case chunk := <-r.chunks:
			n := copy(p, chunk)
			if n < len(chunk) {
				r.pending = chunk[n:]
			}
			return n, nil
		default:
			return 0, io.EOF
		}
	}
}

// Close detaches the reader from the stream
func (r *StreamReader) Close() error {
	r.stream.RemoveReader(r.id)
	return nil
}

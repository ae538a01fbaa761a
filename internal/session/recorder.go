// Package session owns the recording session lifecycle: acquiring the
// microphone, accumulating the full-session recording, and delivering it to
// the backend when the interview ends.
package session

import (
	"fmt"
	"io"
	"sync"

	"github.com/dwkim-hr/intervox/internal/audio"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Recorder accumulates the entire session's audio from its own stream reader
// while live segment captures run independently on theirs
type Recorder struct {
	reader     *audio.StreamReader
	sampleRate int
	channels   int
	logger     *logger.Logger

	mu      sync.Mutex
	pcm     []byte
	stopped bool
	done    chan struct{}
}

// StartRecorder attaches a reader to the stream and begins accumulating audio
func StartRecorder(stream *audio.Stream, log *logger.Logger) (*Recorder, error) {
	reader, err := stream.CreateReader("session-recorder")
	if err != nil {
		return nil, fmt.Errorf("attaching recorder: %w", err)
	}

	r := &Recorder{
		reader:     reader,
		sampleRate: stream.SampleRate(),
		channels:   stream.Channels(),
		logger:     log.Named("recorder"),
		done:       make(chan struct{}),
	}
	go r.drain()
	return r, nil
}

func (r *Recorder) drain() {
	defer close(r.done)

	buf := make([]byte, 8192)
	for {
		n, err := r.reader.Read(buf)
		if n > 0 {
			r.mu.Lock()
			if !r.stopped {
				r.pcm = append(r.pcm, buf[:n]...)
			}
			r.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				r.logger.Error("Recorder read failed", logger.Error(err))
			}
			return
		}
	}
}

// Finalize stops accumulation and returns the session audio as a WAV blob
func (r *Recorder) Finalize() ([]byte, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, fmt.Errorf("recorder already finalized")
	}
	r.stopped = true
	r.mu.Unlock()

	r.reader.Close()
	<-r.done

	r.mu.Lock()
	pcm := r.pcm
	r.pcm = nil
	r.mu.Unlock()

	wav, err := audio.EncodeWAV(pcm, r.sampleRate, r.channels)
	if err != nil {
		return nil, fmt.Errorf("encoding session recording: %w", err)
	}

	r.logger.Info("Recording finalized",
		logger.Int("pcm_bytes", len(pcm)),
		logger.Int("wav_bytes", len(wav)))
	return wav, nil
}

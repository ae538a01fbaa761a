package audio

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Capturer cuts fixed-duration WAV segments out of a live stream. Each
// capture attaches its own reader, so overlapping captures and other stream
// consumers never contend for audio.
type Capturer struct {
	stream *Stream
	seq    atomic.Uint64
	logger *logger.Logger
}

// NewCapturer creates a capturer over the given stream
func NewCapturer(stream *Stream, log *logger.Logger) *Capturer {
	return &Capturer{
		stream: stream,
		logger: log.Named("capturer"),
	}
}

// Segment is one captured slice of audio, already wrapped as WAV
type Segment struct {
	WAV        []byte
	CapturedAt time.Time
	Duration   time.Duration
}

// CaptureSegment records the next duration of audio from the stream and
// returns it as a finalized WAV blob. It fails if the stream dies before the
// segment fills or the context expires.
func (c *Capturer) CaptureSegment(ctx context.Context, duration time.Duration) (*Segment, error) {
	id := fmt.Sprintf("capture-%d", c.seq.Add(1))
	reader, err := c.stream.CreateReader(id)
	if err != nil {
		return nil, fmt.Errorf("attaching capture reader: %w", err)
	}
	defer reader.Close()

	sampleRate := c.stream.SampleRate()
	channels := c.stream.Channels()
	bytesNeeded := sampleRate * channels * 2 * int(duration.Milliseconds()) / 1000

	capturedAt := time.Now()
	pcm := make([]byte, 0, bytesNeeded)
	buf := make([]byte, 4096)

	type readResult struct {
		n   int
		err error
	}

	for len(pcm) < bytesNeeded {
		resCh := make(chan readResult, 1)
		go func() {
			n, err := reader.Read(buf)
			resCh <- readResult{n, err}
		}()

		select {
		case res := <-resCh:
			if res.n > 0 {
				remaining := bytesNeeded - len(pcm)
				if res.n > remaining {
					res.n = remaining
				}
				pcm = append(pcm, buf[:res.n]...)
			}
			if res.err != nil {
				if res.err == io.EOF {
					return nil, fmt.Errorf("stream ended %d bytes into a %d byte segment", len(pcm), bytesNeeded)
				}
				return nil, fmt.Errorf("reading segment audio: %w", res.err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	wavData, err := EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("encoding segment: %w", err)
	}

	c.logger.Debug("Segment captured",
		logger.String("capture_id", id),
		logger.Duration("duration", duration),
		logger.Int("wav_bytes", len(wavData)))

	return &Segment{
		WAV:        wavData,
		CapturedAt: capturedAt,
		Duration:   duration,
	}, nil
}

package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestLevelSilenceIsZero(t *testing.T) {
	if got := Level(pcm16(0, 0, 0, 0)); got != 0 {
		t.Errorf("silence should measure 0, got %f", got)
	}
	if got := Level(nil); got != 0 {
		t.Errorf("empty input should measure 0, got %f", got)
	}
}

func TestLevelFullScaleNears255(t *testing.T) {
	got := Level(pcm16(math.MaxInt16, math.MinInt16+1, math.MaxInt16, math.MinInt16+1))
	if got < 254 || got > 255 {
		t.Errorf("full-scale signal should measure near 255, got %f", got)
	}
}

func TestLevelScalesWithAmplitude(t *testing.T) {
	quiet := Level(pcm16(1000, -1000, 1000, -1000))
	loud := Level(pcm16(20000, -20000, 20000, -20000))
	if loud <= quiet {
		t.Errorf("louder signal should measure higher: quiet=%f loud=%f", quiet, loud)
	}
}

func TestStreamFanOutDeliversToAllReaders(t *testing.T) {
	s := NewStream(16000, 1, logger.NewNop())
	defer s.Close()

	r1, err := s.CreateReader("one")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := s.CreateReader("two")
	if err != nil {
		t.Fatal(err)
	}

	chunk := pcm16(1, 2, 3, 4)
	if _, err := s.Write(chunk); err != nil {
		t.Fatal(err)
	}

	for _, r := range []*StreamReader{r1, r2} {
		buf := make([]byte, len(chunk))
		n, err := r.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(chunk) {
			t.Errorf("expected %d bytes, got %d", len(chunk), n)
		}
	}
}

func TestStreamDuplicateReaderIDRejected(t *testing.T) {
	s := NewStream(16000, 1, logger.NewNop())
	defer s.Close()

	if _, err := s.CreateReader("dup"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateReader("dup"); err == nil {
		t.Error("expected duplicate reader id to be rejected")
	}
}

func TestStreamReaderCloseDetachesOnlyItself(t *testing.T) {
	s := NewStream(16000, 1, logger.NewNop())
	defer s.Close()

	r1, _ := s.CreateReader("leaving")
	r2, _ := s.CreateReader("staying")

	r1.Close()

	if _, err := s.Write(pcm16(5, 6)); err != nil {
		t.Fatalf("stream must survive a reader closing: %v", err)
	}

	buf := make([]byte, 4)
	if _, err := r2.Read(buf); err != nil {
		t.Errorf("remaining reader should still receive audio: %v", err)
	}
}

func TestStreamCloseDrainsThenEOF(t *testing.T) {
	s := NewStream(16000, 1, logger.NewNop())
	r, _ := s.CreateReader("r")

	s.Write(pcm16(9, 9))
	s.Close()

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("expected buffered audio before EOF, got n=%d err=%v", n, err)
	}
	if _, err := r.Read(buf); err != io.EOF {
		t.Errorf("expected EOF after drain, got %v", err)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := pcm16(100, -100, 200, -200)
	data, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(data) < 44 {
		t.Fatalf("wav output too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE markers: % x", data[0:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("sample rate in header: got %d, want 16000", rate)
	}
	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		t.Errorf("channels in header: got %d, want 1", channels)
	}
}

func TestEncodeWAVRejectsOddLength(t *testing.T) {
	if _, err := EncodeWAV([]byte{0x01}, 16000, 1); err == nil {
		t.Error("expected unaligned pcm to be rejected")
	}
}

func TestCaptureSegmentCollectsRequestedDuration(t *testing.T) {
	const sampleRate = 8000
	s := NewStream(sampleRate, 1, logger.NewNop())
	defer s.Close()
	c := NewCapturer(s, logger.NewNop())

	// Feed audio continuously while the capture runs
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		chunk := make([]byte, 640)
		for {
			select {
			case <-stop:
				return
			default:
				s.Write(chunk)
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	seg, err := c.CaptureSegment(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	wantPCM := sampleRate * 2 * 100 / 1000
	// WAV adds a 44-byte header to the raw samples
	if len(seg.WAV) != wantPCM+44 {
		t.Errorf("segment size: got %d bytes, want %d", len(seg.WAV), wantPCM+44)
	}
	if seg.Duration != 100*time.Millisecond {
		t.Errorf("segment duration: got %v", seg.Duration)
	}
}

func TestCaptureSegmentFailsWhenStreamDies(t *testing.T) {
	s := NewStream(8000, 1, logger.NewNop())
	c := NewCapturer(s, logger.NewNop())

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.CaptureSegment(ctx, 500*time.Millisecond); err == nil {
		t.Error("expected capture to fail when the stream closes mid-segment")
	}
}

func TestCaptureSegmentHonorsContext(t *testing.T) {
	s := NewStream(8000, 1, logger.NewNop())
	defer s.Close()
	c := NewCapturer(s, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// No audio arrives, so the capture can only end via the context
	_, err := c.CaptureSegment(ctx, time.Second)
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline error, got %v", err)
	}
}

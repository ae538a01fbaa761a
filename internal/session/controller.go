package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwkim-hr/intervox/internal/audio"
	"github.com/dwkim-hr/intervox/internal/metrics"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// State is the recording session lifecycle state
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateUploading State = "uploading"
	StateError     State = "error"
)

// ErrorReason classifies why a session entered the error state
type ErrorReason string

const (
	ReasonPermissionDenied ErrorReason = "permission_denied"
	ReasonDeviceNotFound   ErrorReason = "device_not_found"
	ReasonUploadFailed     ErrorReason = "upload_failed"
	ReasonUnknown          ErrorReason = "unknown"
)

// ErrSessionActive is returned when Start is called while a session is
// already in progress
var ErrSessionActive = errors.New("a recording session is already active")

// Store persists session lifecycle transitions
type Store interface {
	SaveSession(ctx context.Context, id, applicationID, interviewType string, startedAt time.Time) error
	UpdateSessionState(ctx context.Context, id, state, errorReason string) error
	MarkSessionEnded(ctx context.Context, id string, endedAt time.Time) error
	MarkSessionUploaded(ctx context.Context, id string, uploadedAt time.Time) error
}

// StateNotifier pushes state changes to connected listeners
type StateNotifier interface {
	BroadcastSessionState(sessionID, state, errorReason string)
	BroadcastUploadResult(sessionID string, success bool, detail string)
}

// AcquireFunc opens the capture device for a session
type AcquireFunc func() (audio.Device, error)

// PipelineFunc runs the live transcription pipeline over the session's audio
// stream. It should return when ctx is canceled.
type PipelineFunc func(ctx context.Context, sessionID string, stream *audio.Stream)

// Controller drives the recording session state machine:
// idle -> recording -> stopping -> uploading -> idle. Failed starts and
// failed uploads park in the error state; a new Start, a successful retry,
// or a discard clears it. Exactly one session may be active; concurrent
// Start calls are rejected, not queued.
type Controller struct {
	acquire  AcquireFunc
	pipeline PipelineFunc
	uploader Uploader
	store    Store
	notifier StateNotifier
	logger   *logger.Logger

	mu            sync.Mutex
	state         State
	starting      bool
	errorReason   ErrorReason
	sessionID     string
	applicationID string
	interviewType string
	startedAt     time.Time
	device        audio.Device
	recorder      *Recorder
	cancelPipe    context.CancelFunc
	pending       *Recording
}

// NewController creates a controller in the idle state. store, notifier and
// pipeline may be nil.
func NewController(acquire AcquireFunc, pipeline PipelineFunc, uploader Uploader, store Store, notifier StateNotifier, log *logger.Logger) *Controller {
	return &Controller{
		acquire:  acquire,
		pipeline: pipeline,
		uploader: uploader,
		store:    store,
		notifier: notifier,
		logger:   log.Named("session"),
		state:    StateIdle,
	}
}

// State returns the current lifecycle state and, when in the error state, the
// failure reason
func (c *Controller) State() (State, ErrorReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.errorReason
}

// SessionID returns the identifier of the active or most recent session
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Elapsed returns how long the current session has been recording, or zero
// when no session is in progress
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording && c.state != StateStopping {
		return 0
	}
	return time.Since(c.startedAt)
}

// Start begins a new recording session. It acquires the microphone, starts
// the full-session recorder, and launches the live transcription pipeline.
// Allowed from idle or error; an active session rejects with ErrSessionActive.
// The reported state stays unchanged until the device is actually held, so a
// device handle exists whenever the state reads recording.
func (c *Controller) Start(ctx context.Context, applicationID, interviewType string) (string, error) {
	c.mu.Lock()
	if c.starting || (c.state != StateIdle && c.state != StateError) {
		c.mu.Unlock()
		return "", ErrSessionActive
	}
	c.starting = true
	c.sessionID = uuid.NewString()
	c.applicationID = applicationID
	c.interviewType = interviewType
	sessionID := c.sessionID
	c.mu.Unlock()

	device, err := c.acquire()
	if err != nil {
		c.failStart(ctx, sessionID, err)
		return "", err
	}

	recorder, err := StartRecorder(device.Stream(), c.logger)
	if err != nil {
		device.Release()
		c.failStart(ctx, sessionID, err)
		return "", err
	}

	pipeCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.state = StateRecording
	c.starting = false
	c.errorReason = ""
	c.startedAt = time.Now()
	c.device = device
	c.recorder = recorder
	c.cancelPipe = cancel
	c.mu.Unlock()

	if c.pipeline != nil {
		go c.pipeline(pipeCtx, sessionID, device.Stream())
	}

	if c.store != nil {
		if err := c.store.SaveSession(ctx, sessionID, applicationID, interviewType, time.Now()); err != nil {
			c.logger.Error("Failed to persist session start", logger.Error(err))
		}
	}
	c.notifyState(sessionID, StateRecording, "")
	metrics.SetSessionActive(true)

	c.logger.Info("Session started",
		logger.String("session_id", sessionID),
		logger.String("application_id", applicationID),
		logger.String("interview_type", interviewType))
	return sessionID, nil
}

// failStart classifies a start failure and parks the controller in the error
// state, from which a new Start is permitted
func (c *Controller) failStart(ctx context.Context, sessionID string, err error) {
	reason := ReasonUnknown
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		reason = ReasonPermissionDenied
	case errors.Is(err, audio.ErrDeviceNotFound):
		reason = ReasonDeviceNotFound
	}

	c.mu.Lock()
	c.state = StateError
	c.starting = false
	c.errorReason = reason
	c.device = nil
	c.recorder = nil
	c.mu.Unlock()

	if c.store != nil {
		if serr := c.store.UpdateSessionState(ctx, sessionID, string(StateError), string(reason)); serr != nil {
			c.logger.Error("Failed to persist session error", logger.Error(serr))
		}
	}
	c.notifyState(sessionID, StateError, string(reason))

	c.logger.Error("Session start failed",
		logger.String("session_id", sessionID),
		logger.String("reason", string(reason)),
		logger.Error(err))
}

// Stop ends the active session: capture stops, the recording is finalized,
// the device is released, and the blob is uploaded. Stop on a non-recording
// session is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	sessionID := c.sessionID
	device := c.device
	recorder := c.recorder
	cancel := c.cancelPipe
	applicationID := c.applicationID
	interviewType := c.interviewType
	c.mu.Unlock()

	c.notifyState(sessionID, StateStopping, "")

	if cancel != nil {
		cancel()
	}

	wav, finalizeErr := recorder.Finalize()
	if err := device.Release(); err != nil {
		c.logger.Error("Device release failed", logger.Error(err))
	}

	c.mu.Lock()
	c.device = nil
	c.recorder = nil
	c.cancelPipe = nil
	c.mu.Unlock()

	metrics.SetSessionActive(false)

	if c.store != nil {
		if err := c.store.MarkSessionEnded(ctx, sessionID, time.Now()); err != nil {
			c.logger.Error("Failed to persist session end", logger.Error(err))
		}
	}

	if finalizeErr != nil {
		c.setIdle(ctx, sessionID)
		return fmt.Errorf("finalizing recording: %w", finalizeErr)
	}

	rec := &Recording{
		SessionID:     sessionID,
		ApplicationID: applicationID,
		InterviewType: interviewType,
		WAV:           wav,
		RecordedAt:    time.Now(),
	}
	return c.upload(ctx, rec)
}

// upload attempts delivery of a finalized recording. On failure the blob is
// retained for RetryUpload and the session parks in the error state until the
// user retries or discards.
func (c *Controller) upload(ctx context.Context, rec *Recording) error {
	c.mu.Lock()
	c.state = StateUploading
	c.errorReason = ""
	c.mu.Unlock()
	c.notifyState(rec.SessionID, StateUploading, "")

	err := c.uploader.Upload(ctx, rec)

	c.mu.Lock()
	if err != nil {
		c.pending = rec
		c.state = StateError
		c.errorReason = ReasonUploadFailed
	} else {
		c.pending = nil
	}
	c.mu.Unlock()

	if err != nil {
		if c.store != nil {
			if serr := c.store.UpdateSessionState(ctx, rec.SessionID, string(StateError), string(ReasonUploadFailed)); serr != nil {
				c.logger.Error("Failed to persist session state", logger.Error(serr))
			}
		}
		c.notifyState(rec.SessionID, StateError, string(ReasonUploadFailed))
		c.notifyUpload(rec.SessionID, false, err.Error())
		return fmt.Errorf("uploading recording: %w", err)
	}

	if c.store != nil {
		if serr := c.store.MarkSessionUploaded(ctx, rec.SessionID, time.Now()); serr != nil {
			c.logger.Error("Failed to persist upload time", logger.Error(serr))
		}
	}
	c.notifyUpload(rec.SessionID, true, "")
	c.setIdle(ctx, rec.SessionID)
	return nil
}

// RetryUpload re-attempts delivery of the retained recording from the last
// failed upload. Allowed from idle or the upload-failure error state.
func (c *Controller) RetryUpload(ctx context.Context) error {
	c.mu.Lock()
	rec := c.pending
	busy := c.starting || (c.state != StateIdle && c.state != StateError)
	c.mu.Unlock()

	if busy {
		return ErrSessionActive
	}
	if rec == nil {
		return errors.New("no recording awaiting upload")
	}
	return c.upload(ctx, rec)
}

// DiscardPending drops the retained recording, if any, and clears an
// upload-failure error back to idle
func (c *Controller) DiscardPending(ctx context.Context) {
	c.mu.Lock()
	c.pending = nil
	clearError := c.state == StateError && c.errorReason == ReasonUploadFailed
	sessionID := c.sessionID
	c.mu.Unlock()

	if clearError {
		c.setIdle(ctx, sessionID)
	}
}

// HasPendingUpload reports whether a failed upload's blob is retained
func (c *Controller) HasPendingUpload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Controller) setIdle(ctx context.Context, sessionID string) {
	c.mu.Lock()
	c.state = StateIdle
	c.errorReason = ""
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.UpdateSessionState(ctx, sessionID, string(StateIdle), ""); err != nil {
			c.logger.Error("Failed to persist session state", logger.Error(err))
		}
	}
	c.notifyState(sessionID, StateIdle, "")
}

func (c *Controller) notifyState(sessionID string, state State, reason string) {
	if c.notifier != nil {
		c.notifier.BroadcastSessionState(sessionID, string(state), reason)
	}
}

func (c *Controller) notifyUpload(sessionID string, success bool, detail string) {
	if c.notifier != nil {
		c.notifier.BroadcastUploadResult(sessionID, success, detail)
	}
}

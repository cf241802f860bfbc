// Package controller drives one intake session per channel: it owns the
// capture workers, the phrase segmentation loop, the respond/classify cycle,
// and the session lifecycle from start to final ticket flush.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guardline/guardline/internal/dialog"
	"github.com/guardline/guardline/internal/observe"
	"github.com/guardline/guardline/internal/ticket"
	"github.com/guardline/guardline/internal/transcript"
	"github.com/guardline/guardline/pkg/audio"
	"github.com/guardline/guardline/pkg/provider/stt"
	"github.com/guardline/guardline/pkg/provider/translit"
	"github.com/guardline/guardline/pkg/provider/tts"
)

// Channel identifies the intake modality a controller serves.
type Channel string

const (
	ChannelAudio Channel = "audio"
	ChannelVideo Channel = "video"
	ChannelText  Channel = "text"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// videoPrefix tags video-channel transcripts so the responder can distinguish
// modalities; video and its co-running audio share one conversation.
const videoPrefix = "[VIDEO CALL] "

const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultPhraseTimeout = 3 * time.Second
	defaultJoinTimeout   = 5 * time.Second
)

// Controller is the per-channel session orchestrator. It moves through
// Idle → Running → Stopping → Idle; at most one session is active at a time.
// All exported methods are safe for concurrent use.
type Controller struct {
	channel     Channel
	transcriber stt.Transcriber
	conv        *dialog.Conversation
	threat      *dialog.Threat
	store       *ticket.Store

	capture    audio.CaptureSource
	frames     audio.FrameSource
	sampler    *FrameSampler
	speaker    tts.Speaker
	translit   translit.Transliterator
	normalizer *transcript.Normalizer
	metrics    *observe.Metrics
	logger     *slog.Logger

	pollInterval  time.Duration
	phraseTimeout time.Duration
	joinTimeout   time.Duration

	mu         sync.Mutex
	state      State
	sessionID  string
	buf        *audio.Buffer
	stopCh     chan struct{}
	workerDone []chan struct{}
}

// Option is a functional option for Controller.
type Option func(*Controller)

// WithCapture sets the audio capture source. Required for the audio and
// video channels.
func WithCapture(src audio.CaptureSource) Option {
	return func(c *Controller) { c.capture = src }
}

// WithVideo attaches the frame source and sampler for the video channel. The
// controller owns the frame source and closes it on stop.
func WithVideo(frames audio.FrameSource, sampler *FrameSampler) Option {
	return func(c *Controller) {
		c.frames = frames
		c.sampler = sampler
	}
}

// WithSpeaker sets the speech-synthesis backend. Without one, replies are
// not voiced.
func WithSpeaker(s tts.Speaker) Option {
	return func(c *Controller) { c.speaker = s }
}

// WithTransliterator sets the transliteration step applied to replies before
// synthesis. Defaults to a passthrough.
func WithTransliterator(t translit.Transliterator) Option {
	return func(c *Controller) { c.translit = t }
}

// WithNormalizer sets the keyword normaliser applied to transcripts before
// classification.
func WithNormalizer(n *transcript.Normalizer) Option {
	return func(c *Controller) { c.normalizer = n }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithPollInterval sets the audio poll interval. Defaults to 250 ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithPhraseTimeout sets the silence gap that closes a phrase.
// Defaults to 3 s.
func WithPhraseTimeout(d time.Duration) Option {
	return func(c *Controller) { c.phraseTimeout = d }
}

// WithJoinTimeout bounds how long Stop waits for workers to exit.
// Defaults to 5 s.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Controller) { c.joinTimeout = d }
}

// New creates a Controller for the given channel. The audio and video
// channels require a capture source (WithCapture); the video channel
// additionally requires WithVideo.
func New(channel Channel, transcriber stt.Transcriber, conv *dialog.Conversation, threat *dialog.Threat, store *ticket.Store, opts ...Option) (*Controller, error) {
	if conv == nil || threat == nil {
		return nil, errors.New("controller: conversation and threat sessions are required")
	}
	if store == nil {
		return nil, errors.New("controller: ticket store is required")
	}

	c := &Controller{
		channel:       channel,
		transcriber:   transcriber,
		conv:          conv,
		threat:        threat,
		store:         store,
		translit:      translit.Passthrough{},
		metrics:       observe.DefaultMetrics(),
		logger:        slog.Default(),
		pollInterval:  defaultPollInterval,
		phraseTimeout: defaultPhraseTimeout,
		joinTimeout:   defaultJoinTimeout,
	}
	for _, o := range opts {
		o(c)
	}

	switch channel {
	case ChannelAudio, ChannelVideo:
		if c.capture == nil {
			return nil, fmt.Errorf("controller: %s channel requires a capture source", channel)
		}
		if c.transcriber == nil {
			return nil, fmt.Errorf("controller: %s channel requires a transcriber", channel)
		}
		if channel == ChannelVideo && (c.frames == nil || c.sampler == nil) {
			return nil, errors.New("controller: video channel requires a frame source and sampler")
		}
	case ChannelText:
	default:
		return nil, fmt.Errorf("controller: unknown channel %q", channel)
	}

	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the active session id, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start activates a new session: generates the session id, resets the
// conversation and threat state, acquires the capture device, spawns the
// channel's workers and runs the greeting exchange. Calling Start while a
// session is already running is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.logger.Debug("start ignored, session already active",
			"state", c.state.String(), "session_id", c.sessionID)
		return nil
	}

	sessionID := newSessionID(time.Now())
	buf := audio.NewBuffer()
	stopCh := make(chan struct{})

	if c.sampler != nil {
		if err := c.sampler.Reset(); err != nil {
			return fmt.Errorf("controller: start: %w", err)
		}
	}
	if c.capture != nil {
		if err := c.capture.Start(ctx, buf.Push); err != nil {
			return fmt.Errorf("controller: acquire capture device: %w", err)
		}
	}

	c.sessionID = sessionID
	c.buf = buf
	c.stopCh = stopCh
	c.state = StateRunning
	c.metrics.ActiveSessions.Add(ctx, 1)
	c.logger.Info("session started", "session_id", sessionID, "channel", string(c.channel))

	if err := c.threat.Start(ctx); err != nil {
		c.logger.Warn("threat session start failed, classification degraded",
			"session_id", sessionID, "error", err)
	}

	cont, greeting, err := c.conv.Start(ctx)
	switch {
	case err != nil:
		c.logger.Warn("greeting exchange failed", "session_id", sessionID, "error", err)
	case greeting != "":
		c.speakAsync(context.WithoutCancel(ctx), greeting)
	}

	// Workers run on a context detached from the caller's: the session ends
	// via Stop, not via the Start caller's cancellation.
	workerCtx := context.WithoutCancel(ctx)
	if c.channel == ChannelAudio || c.channel == ChannelVideo {
		c.spawn(stopCh, func(done chan struct{}) {
			c.runAudioWorker(workerCtx, stopCh, buf, sessionID, done)
		})
	}
	if c.channel == ChannelVideo {
		c.spawn(stopCh, func(done chan struct{}) {
			c.runVideoWorker(workerCtx, stopCh, sessionID, done)
		})
	}

	if err == nil && !cont {
		// The backend declined the call in its greeting.
		go c.Stop(context.WithoutCancel(ctx))
	}
	return nil
}

// spawn starts a worker goroutine and a monitor that treats the worker
// exiting while its own session is still running as an implicit stop. The
// stop channel identifies the session: a worker that outlived a timed-out
// join and exits after a new session started must not stop that newer one.
func (c *Controller) spawn(stopCh chan struct{}, run func(done chan struct{})) {
	done := make(chan struct{})
	c.workerDone = append(c.workerDone, done)
	go run(done)
	go func() {
		<-done
		c.mu.Lock()
		sameSession := c.state == StateRunning && c.stopCh == stopCh
		c.mu.Unlock()
		if sameSession {
			_ = c.Stop(context.Background())
		}
	}()
}

// Stop ends the active session: it sets the cooperative stop flag, releases
// the capture devices, joins workers with a bounded timeout, flushes the
// ticket ledger and clears session state. Stop while Stopping or Idle is a
// no-op. In-flight collaborator calls are allowed to complete; no new cycles
// are scheduled.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return nil
	}
	c.state = StateStopping
	sessionID := c.sessionID
	close(c.stopCh)

	// The state check above is the mutual-exclusion guard: only one Stop
	// reaches the device release.
	if c.capture != nil {
		if err := c.capture.Stop(); err != nil {
			c.logger.Warn("release capture device", "session_id", sessionID, "error", err)
		}
	}
	if c.frames != nil {
		if err := c.frames.Close(); err != nil {
			c.logger.Warn("release frame source", "session_id", sessionID, "error", err)
		}
	}

	deadline := time.After(c.joinTimeout)
	for _, done := range c.workerDone {
		select {
		case <-done:
		case <-deadline:
			c.logger.Warn("worker join timed out", "session_id", sessionID)
		}
	}
	c.workerDone = nil

	c.buf.Close()
	if err := c.store.FlushOnStop(sessionID); err != nil {
		c.logger.Error("final ticket flush failed", "session_id", sessionID, "error", err)
	}
	c.store.Clear(sessionID)

	c.metrics.ActiveSessions.Add(ctx, -1)
	c.logger.Info("session stopped", "session_id", sessionID)
	c.sessionID = ""
	c.buf = nil
	c.stopCh = nil
	c.state = StateIdle
	return nil
}

// HandleText runs one respond/classify exchange for a text-channel message
// and returns the responder's reply. A flagged exchange records a chat_threat
// ticket; a reply carrying the end sentinel stops the session.
func (c *Controller) HandleText(ctx context.Context, msg string) (string, error) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return "", errors.New("controller: no active session")
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	endCall, reply := c.exchange(ctx, sessionID, msg, msg, msg, ticket.TypeChatThreat)
	if endCall {
		go c.Stop(context.WithoutCancel(ctx))
	}
	return reply, nil
}

// runAudioWorker is the poll loop: drain the buffer, transcribe, and hand
// completed phrases to the respond/classify cycle. Per-cycle errors are
// logged and the cycle skipped; a panic is fatal to the worker only and the
// monitor turns it into an implicit stop.
func (c *Controller) runAudioWorker(ctx context.Context, stopCh <-chan struct{}, buf *audio.Buffer, sessionID string, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("audio worker terminated by panic", "session_id", sessionID, "panic", r)
		}
	}()

	seg := NewSegmenter(c.phraseTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		chunks := buf.DrainAll()
		if len(chunks) == 0 {
			continue
		}
		complete := seg.Observe(time.Now())
		samples := audio.PCMToFloat32(audio.Concat(chunks))

		// Always transcribe, even mid-phrase, to keep the ASR warm.
		start := time.Now()
		text, err := c.transcriber.Transcribe(ctx, samples)
		c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn("transcription failed", "session_id", sessionID, "error", err)
			c.metrics.RecordStageError(ctx, "transcribe")
			continue
		}
		if !complete || text == "" {
			continue
		}

		convText := text
		ticketType := ticket.TypeAudioThreat
		if c.channel == ChannelVideo {
			convText = videoPrefix + text
			ticketType = ticket.TypeVideoAudioThreat
		}
		classText := text
		if c.normalizer != nil {
			classText = c.normalizer.Normalize(text)
		}

		c.metrics.RecordPhrase(ctx, string(c.channel))
		if endCall, _ := c.exchange(ctx, sessionID, convText, classText, text, ticketType); endCall {
			return
		}
	}
}

// exchange dispatches the responder and the classifier concurrently for one
// phrase. Neither observes the other's state and no ordering is guaranteed
// between them. Stage failures are logged and swallowed; endCall reports
// whether the responder's reply carried the end sentinel.
func (c *Controller) exchange(ctx context.Context, sessionID, convText, classText, rawText string, ticketType ticket.Type) (endCall bool, reply string) {
	var g errgroup.Group

	g.Go(func() error {
		start := time.Now()
		cont, r, err := c.conv.Respond(ctx, convText)
		c.metrics.RespondDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn("responder failed", "session_id", sessionID, "error", err)
			c.metrics.RecordStageError(ctx, "respond")
			return nil
		}
		reply = r
		c.speakAsync(ctx, r)
		if !cont {
			endCall = true
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		flagged, details, err := c.threat.Classify(ctx, classText)
		c.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn("classification failed", "session_id", sessionID, "error", err)
			c.metrics.RecordStageError(ctx, "classify")
			return nil
		}
		if !flagged {
			return nil
		}
		entry := ticket.Entry{
			Type:      ticketType,
			Timestamp: ticket.Timestamp(time.Now()),
			Message:   rawText,
			Details:   details,
		}
		if err := c.store.Append(ctx, sessionID, entry); err != nil {
			c.logger.Error("ticket flush failed", "session_id", sessionID, "error", err)
			c.metrics.RecordStageError(ctx, "save")
			return nil
		}
		c.metrics.RecordTicket(ctx, string(entry.Type))
		c.logger.Info("ticket recorded",
			"session_id", sessionID, "type", string(entry.Type), "details", details)
		return nil
	})

	_ = g.Wait()
	return endCall, reply
}

// runVideoWorker reads frames at the source's native rate and feeds the
// sampler; captions flagged as threats become video_visual_threat tickets.
func (c *Controller) runVideoWorker(ctx context.Context, stopCh <-chan struct{}, sessionID string, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("video worker terminated by panic", "session_id", sessionID, "panic", r)
		}
	}()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		frame, err := c.frames.Read(ctx)
		if err != nil {
			select {
			case <-stopCh:
			default:
				c.logger.Warn("frame source read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		start := time.Now()
		obs, err := c.sampler.Offer(ctx, frame, time.Now())
		if err != nil {
			c.logger.Warn("frame sampling failed", "session_id", sessionID, "error", err)
			c.metrics.RecordStageError(ctx, "caption")
			continue
		}
		if obs == nil {
			continue
		}
		c.metrics.CaptionDuration.Record(ctx, time.Since(start).Seconds())
		if !obs.Threat {
			continue
		}

		entry := ticket.Entry{
			Type:      ticket.TypeVideoVisualThreat,
			Timestamp: ticket.Timestamp(time.Now()),
			Frame:     obs.FramePath,
			Details:   obs.Caption,
		}
		if err := c.store.Append(ctx, sessionID, entry); err != nil {
			c.logger.Error("ticket flush failed", "session_id", sessionID, "error", err)
			c.metrics.RecordStageError(ctx, "save")
			continue
		}
		c.metrics.RecordTicket(ctx, string(entry.Type))
		c.logger.Info("ticket recorded",
			"session_id", sessionID, "type", string(entry.Type), "frame", obs.FramePath)
	}
}

// speakAsync forwards text to the speech-synthesis backend on its own
// goroutine. Synthesis never blocks the pipeline; failures are logged.
func (c *Controller) speakAsync(ctx context.Context, text string) {
	if c.speaker == nil {
		return
	}
	go func() {
		speakText := text
		if tl, err := c.translit.Transliterate(ctx, text); err != nil {
			c.logger.Debug("transliteration failed, speaking raw text", "error", err)
		} else {
			speakText = tl
		}
		start := time.Now()
		if err := c.speaker.Speak(ctx, speakText); err != nil {
			c.logger.Warn("speech synthesis failed", "error", err)
			c.metrics.RecordStageError(ctx, "tts")
			return
		}
		c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}()
}

package controller

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/guardline/guardline/internal/dialog"
	"github.com/guardline/guardline/internal/ticket"
	audiomock "github.com/guardline/guardline/pkg/audio/mock"
	llmmock "github.com/guardline/guardline/pkg/provider/llm/mock"
	sttmock "github.com/guardline/guardline/pkg/provider/stt/mock"
	ttsmock "github.com/guardline/guardline/pkg/provider/tts/mock"
	visionmock "github.com/guardline/guardline/pkg/provider/vision/mock"
)

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

type fixture struct {
	capture *audiomock.CaptureSource
	stt     *sttmock.Transcriber
	convLLM *llmmock.Provider
	thrLLM  *llmmock.Provider
	speaker *ttsmock.Speaker
	store   *ticket.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := ticket.NewStore(filepath.Join(t.TempDir(), "tickets.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return &fixture{
		capture: &audiomock.CaptureSource{},
		stt:     &sttmock.Transcriber{Results: []string{"help me"}},
		convLLM: &llmmock.Provider{Replies: []string{"911, what is your emergency?", "Stay on the line."}},
		thrLLM:  &llmmock.Provider{Replies: []string{"monitoring", "distress keywords"}},
		speaker: &ttsmock.Speaker{},
		store:   store,
	}
}

func (f *fixture) newController(t *testing.T, channel Channel, extra ...Option) *Controller {
	t.Helper()
	opts := append([]Option{
		WithCapture(f.capture),
		WithSpeaker(f.speaker),
		WithPollInterval(5 * time.Millisecond),
		WithPhraseTimeout(30 * time.Millisecond),
		WithJoinTimeout(time.Second),
	}, extra...)
	if channel == ChannelText {
		opts = opts[1:] // no capture source
	}
	c, err := New(channel, f.stt,
		dialog.NewConversation(f.convLLM, "operator", 0),
		dialog.NewThreat(f.thrLLM, "classifier"),
		f.store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestController_StartTwiceIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.newController(t, ChannelAudio)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())

	id := c.SessionID()
	if id == "" {
		t.Fatal("no session id after Start")
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := c.SessionID(); got != id {
		t.Errorf("session id changed on double start: %q -> %q", id, got)
	}
	if got := c.State(); got != StateRunning {
		t.Errorf("state = %v, want running", got)
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.newController(t, ChannelAudio)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if got := f.capture.Stops(); got != 1 {
		t.Errorf("capture device released %d times, want exactly 1", got)
	}
}

func TestController_StartFailsWhenDeviceUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.capture.StartErr = errors.New("device busy")
	c := f.newController(t, ChannelAudio)

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with unavailable device, want error")
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %v, want idle after failed start", got)
	}
	if got := c.SessionID(); got != "" {
		t.Errorf("session id = %q, want empty after failed start", got)
	}
}

func TestController_AudioThreatEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.newController(t, ChannelAudio)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())
	sessionID := c.SessionID()

	// First burst of audio: opens the phrase, not yet complete.
	f.capture.Emit([]byte{1, 0, 2, 0})
	time.Sleep(60 * time.Millisecond) // silence beyond the phrase timeout

	// Next burst closes the phrase and triggers respond/classify.
	f.capture.Emit([]byte{3, 0, 4, 0})

	waitFor(t, 2*time.Second, func() bool {
		return len(f.store.Entries(sessionID)) == 1
	}, "expected exactly one ticket")

	entries := f.store.Entries(sessionID)
	e := entries[0]
	if e.Type != ticket.TypeAudioThreat {
		t.Errorf("ticket type = %q, want audio_threat", e.Type)
	}
	if e.Message != "help me" {
		t.Errorf("ticket message = %q, want %q", e.Message, "help me")
	}
	if e.Details != "distress keywords" {
		t.Errorf("ticket details = %q, want %q", e.Details, "distress keywords")
	}

	waitFor(t, time.Second, func() bool {
		return len(f.speaker.Spoken()) >= 2
	}, "greeting and reply forwarded to speech synthesis")
	seen := map[string]bool{}
	for _, s := range f.speaker.Spoken() {
		seen[s] = true
	}
	if !seen["911, what is your emergency?"] || !seen["Stay on the line."] {
		t.Errorf("spoken texts = %v, want greeting and reply", f.speaker.Spoken())
	}
}

func TestController_ResponderEndSentinelStopsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.convLLM.Replies = []string{"911, what is your emergency?", "Units are on their way. **END CALL**"}
	c := f.newController(t, ChannelAudio)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.capture.Emit([]byte{1, 0})
	time.Sleep(60 * time.Millisecond)
	f.capture.Emit([]byte{2, 0})

	waitFor(t, 2*time.Second, func() bool {
		return c.State() == StateIdle
	}, "end sentinel should stop the session")
	if got := f.capture.Stops(); got != 1 {
		t.Errorf("capture device released %d times, want 1", got)
	}
}

// stallingTranscriber blocks every Transcribe call until released, simulating
// a hung STT backend.
type stallingTranscriber struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stallingTranscriber) Transcribe(ctx context.Context, _ []float32) (string, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestController_StragglingWorkerDoesNotStopNextSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stt := &stallingTranscriber{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, err := New(ChannelAudio, stt,
		dialog.NewConversation(f.convLLM, "operator", 0),
		dialog.NewThreat(f.thrLLM, "classifier"),
		f.store,
		WithCapture(f.capture),
		WithPollInterval(time.Millisecond),
		WithPhraseTimeout(5*time.Millisecond),
		WithJoinTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.capture.Emit([]byte{1, 0})
	select {
	case <-stt.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached the transcriber")
	}

	// The worker is stuck in Transcribe, so this join times out and Stop
	// returns with the first session's worker still alive.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	second := c.SessionID()
	if second == "" {
		t.Fatal("no session id after restart")
	}

	// Unblock the straggler; it observes its own closed stop channel and
	// exits. The second session must keep running.
	close(stt.release)
	time.Sleep(50 * time.Millisecond)

	if got := c.State(); got != StateRunning {
		t.Fatalf("state = %v, want running after straggler exit", got)
	}
	if got := c.SessionID(); got != second {
		t.Errorf("session id = %q, want %q", got, second)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("final Stop: %v", err)
	}
}

func TestController_HandleTextRecordsChatThreat(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.convLLM.Replies = []string{"How can I help?", "I understand."}
	f.thrLLM.Replies = []string{"monitoring", "threatening language"}
	c := f.newController(t, ChannelText)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())
	sessionID := c.SessionID()

	reply, err := c.HandleText(context.Background(), "I am going to hurt him")
	if err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if reply != "I understand." {
		t.Errorf("reply = %q, want %q", reply, "I understand.")
	}

	entries := f.store.Entries(sessionID)
	if len(entries) != 1 {
		t.Fatalf("tickets = %d, want 1", len(entries))
	}
	if entries[0].Type != ticket.TypeChatThreat {
		t.Errorf("ticket type = %q, want chat_threat", entries[0].Type)
	}
	if entries[0].Message != "I am going to hurt him" {
		t.Errorf("ticket message = %q", entries[0].Message)
	}
}

func TestController_HandleTextWithoutSessionFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.newController(t, ChannelText)
	if _, err := c.HandleText(context.Background(), "hello"); err == nil {
		t.Fatal("HandleText succeeded without an active session, want error")
	}
}

func TestController_VideoVisualThreat(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	frames := audiomock.NewFrameSource([]byte("jpeg-bytes"))
	captioner := &visionmock.Captioner{Captions: []string{"[THREAT] A person holding a knife."}}
	sampler, err := NewFrameSampler(filepath.Join(t.TempDir(), "frames"), captioner,
		WithSaveInterval(0), WithCaptionEvery(1), WithCaptionMinGap(0))
	if err != nil {
		t.Fatalf("NewFrameSampler: %v", err)
	}
	c := f.newController(t, ChannelVideo, WithVideo(frames, sampler))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())
	sessionID := c.SessionID()

	waitFor(t, 2*time.Second, func() bool {
		return len(f.store.Entries(sessionID)) == 1
	}, "expected a video_visual_threat ticket")

	e := f.store.Entries(sessionID)[0]
	if e.Type != ticket.TypeVideoVisualThreat {
		t.Errorf("ticket type = %q, want video_visual_threat", e.Type)
	}
	if filepath.Base(e.Frame) != "frame_0.jpg" {
		t.Errorf("ticket frame = %q, want frame_0.jpg", e.Frame)
	}
	if e.Details != "[THREAT] A person holding a knife." {
		t.Errorf("ticket details = %q, want the captioner's reply verbatim", e.Details)
	}
}

func TestController_VideoTranscriptsSharePrefixedConversation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	frames := audiomock.NewFrameSource()
	captioner := &visionmock.Captioner{Captions: []string{"A quiet room."}}
	sampler, err := NewFrameSampler(filepath.Join(t.TempDir(), "frames"), captioner)
	if err != nil {
		t.Fatalf("NewFrameSampler: %v", err)
	}
	f.thrLLM.Replies = []string{"monitoring", "distress keywords"}
	c := f.newController(t, ChannelVideo, WithVideo(frames, sampler))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())
	sessionID := c.SessionID()

	f.capture.Emit([]byte{1, 0})
	time.Sleep(60 * time.Millisecond)
	f.capture.Emit([]byte{2, 0})

	waitFor(t, 2*time.Second, func() bool {
		return len(f.store.Entries(sessionID)) == 1 && len(f.convLLM.Calls()) >= 2
	}, "expected a video_audio_threat ticket and a responder turn")

	e := f.store.Entries(sessionID)[0]
	if e.Type != ticket.TypeVideoAudioThreat {
		t.Errorf("ticket type = %q, want video_audio_threat", e.Type)
	}
	if e.Message != "help me" {
		t.Errorf("ticket message = %q, prefix must not leak into the ticket", e.Message)
	}

	call := f.convLLM.LastCall()
	found := false
	for _, m := range call.Messages {
		if m.Content == "[VIDEO CALL] help me" {
			found = true
		}
	}
	if !found {
		t.Error("responder history is missing the prefixed video transcript")
	}
}

// Command guardline is the main entry point for the Guardline incident
// monitoring pipeline.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardline/guardline/internal/config"
	"github.com/guardline/guardline/internal/controller"
	"github.com/guardline/guardline/internal/dialog"
	"github.com/guardline/guardline/internal/health"
	"github.com/guardline/guardline/internal/observe"
	"github.com/guardline/guardline/internal/resilience"
	"github.com/guardline/guardline/internal/ticket"
	ticketpg "github.com/guardline/guardline/internal/ticket/postgres"
	"github.com/guardline/guardline/internal/transcript"
	"github.com/guardline/guardline/pkg/audio"
	"github.com/guardline/guardline/pkg/audio/wsingest"
	"github.com/guardline/guardline/pkg/provider/llm"
	"github.com/guardline/guardline/pkg/provider/llm/anyllm"
	"github.com/guardline/guardline/pkg/provider/stt"
	"github.com/guardline/guardline/pkg/provider/stt/whisper"
	"github.com/guardline/guardline/pkg/provider/translit"
	"github.com/guardline/guardline/pkg/provider/tts"
	"github.com/guardline/guardline/pkg/provider/tts/coqui"
	"github.com/guardline/guardline/pkg/provider/vision"
	visionoai "github.com/guardline/guardline/pkg/provider/vision/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "guardline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "guardline: %v\n", err)
		}
		return 1
	}

	// Logger with a mutable level so the config watcher can adjust verbosity
	// without a restart.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("guardline starting",
		"config", *configPath,
		"channel", channelOf(cfg),
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry.
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Provider registry.
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ctrl, cleanup, err := buildPipeline(ctx, cfg, reg, logger)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer cleanup()

	// Metrics and health endpoints share one listener.
	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(
			health.Checker{Name: "ticket_ledger", Check: ledgerCheck(cfg.Tickets.LedgerPath)},
			health.Checker{Name: "session", Check: sessionCheck(ctrl)},
		).Register(mux)
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener error", "addr", addr, "err", err)
			}
		}()
		defer srv.Close()
		slog.Info("metrics endpoint listening", "addr", addr)
	}

	// Watch the config file; only log level changes apply live.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Compare(old, new)
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(new.Server.LogLevel))
			slog.Info("log level changed", "level", new.Server.LogLevel)
		}
		if d.PromptsChanged || d.KeywordsChanged || d.RestartRequired {
			slog.Warn("config changes beyond the log level require a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	if err := ctrl.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}
	slog.Info("session started", "session_id", ctrl.SessionID())

	if channelOf(cfg) == config.ChannelText {
		go textLoop(ctx, ctrl)
	}

	// Run until a signal arrives or the session ends on its own (the backend
	// closed the call with its end sentinel).
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if ctrl.State() == controller.StateIdle {
				slog.Info("session ended")
				break loop
			}
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		slog.Error("stop error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// textLoop reads chat messages from stdin and feeds them through the
// responder, printing each reply. Used by the text channel only.
func textLoop(ctx context.Context, ctrl *controller.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		msg := scanner.Text()
		if msg == "" {
			continue
		}
		reply, err := ctrl.HandleText(ctx, msg)
		if err != nil {
			slog.Warn("message not handled", "err", err)
			continue
		}
		fmt.Println(reply)
	}
}

// buildPipeline instantiates every configured provider and assembles the
// session controller. The returned cleanup releases resources owned by main
// (the Postgres pool and, for whisper-native, the loaded model).
func buildPipeline(ctx context.Context, cfg *config.Config, reg *config.Registry, logger *slog.Logger) (*controller.Controller, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var transcriber stt.Transcriber
	if cfg.Providers.STT.Name != "" {
		var err error
		transcriber, err = createSTT(reg, cfg.Providers.STT, &cleanups)
		if err != nil {
			return nil, cleanup, err
		}
	}

	responderLLM, err := createLLM(reg, cfg.Providers.Responder)
	if err != nil {
		return nil, cleanup, err
	}
	classifierLLM := responderLLM
	if cfg.Providers.Classifier.Name != "" {
		classifierLLM, err = createLLM(reg, cfg.Providers.Classifier)
		if err != nil {
			return nil, cleanup, err
		}
	}

	responderPrompt := cfg.Prompts.Responder
	if responderPrompt == "" {
		responderPrompt = dialog.DefaultResponderPrompt
	}
	classifierPrompt := cfg.Prompts.Classifier
	if classifierPrompt == "" {
		classifierPrompt = dialog.DefaultThreatPrompt
	}
	conv := dialog.NewConversation(responderLLM, responderPrompt, cfg.Prompts.Temperature)
	threat := dialog.NewThreat(classifierLLM, classifierPrompt)

	// Ticket store, with the optional Postgres archive behind it.
	var storeOpts []ticket.StoreOption
	storeOpts = append(storeOpts, ticket.WithLogger(logger))
	if dsn := cfg.Tickets.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect ticket archive: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		archive := ticketpg.NewArchive(pool)
		if err := archive.Migrate(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("migrate ticket archive: %w", err)
		}
		storeOpts = append(storeOpts, ticket.WithArchive(archive))
		slog.Info("ticket archive connected")
	}
	store, err := ticket.NewStore(cfg.Tickets.LedgerPath, storeOpts...)
	if err != nil {
		return nil, cleanup, fmt.Errorf("open ticket ledger: %w", err)
	}

	opts := []controller.Option{
		controller.WithLogger(logger),
	}
	if d := cfg.Pipeline.PollInterval(); d > 0 {
		opts = append(opts, controller.WithPollInterval(d))
	}
	if d := cfg.Pipeline.PhraseTimeout(); d > 0 {
		opts = append(opts, controller.WithPhraseTimeout(d))
	}
	if d := cfg.Pipeline.JoinTimeout(); d > 0 {
		opts = append(opts, controller.WithJoinTimeout(d))
	}
	if kw := cfg.Pipeline.DistressKeywords; len(kw) > 0 {
		opts = append(opts, controller.WithNormalizer(transcript.NewNormalizer(kw)))
	}

	channel := channelOf(cfg)
	if channel == config.ChannelAudio || channel == config.ChannelVideo {
		capture, err := reg.CreateCapture(cfg.Providers.Capture)
		if err != nil {
			return nil, cleanup, fmt.Errorf("create capture source %q: %w", cfg.Providers.Capture.Name, err)
		}
		opts = append(opts, controller.WithCapture(capture))

		if cfg.Providers.TTS.Name != "" {
			speaker, err := createTTS(reg, cfg.Providers.TTS)
			if err != nil {
				return nil, cleanup, err
			}
			opts = append(opts, controller.WithSpeaker(speaker))
		}
		if cfg.Providers.Translit.Name != "" {
			tl, err := reg.CreateTranslit(cfg.Providers.Translit)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create transliterator %q: %w", cfg.Providers.Translit.Name, err)
			}
			opts = append(opts, controller.WithTransliterator(tl))
		}
	}

	if channel == config.ChannelVideo {
		var captioner vision.Captioner
		if cfg.Providers.Vision.Name != "" {
			captioner, err = reg.CreateVision(cfg.Providers.Vision)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create vision provider %q: %w", cfg.Providers.Vision.Name, err)
			}
		}

		var samplerOpts []controller.SamplerOption
		if d := cfg.Video.SaveInterval(); d > 0 {
			samplerOpts = append(samplerOpts, controller.WithSaveInterval(d))
		}
		if n := cfg.Video.CaptionEvery; n > 0 {
			samplerOpts = append(samplerOpts, controller.WithCaptionEvery(n))
		}
		if d := cfg.Video.CaptionMinGap(); d > 0 {
			samplerOpts = append(samplerOpts, controller.WithCaptionMinGap(d))
		}
		if p := cfg.Prompts.Caption; p != "" {
			samplerOpts = append(samplerOpts, controller.WithCaptionPrompt(p))
		}
		sampler, err := controller.NewFrameSampler(cfg.Video.FramesDir, captioner, samplerOpts...)
		if err != nil {
			return nil, cleanup, fmt.Errorf("create frame sampler: %w", err)
		}

		frames, err := wsingest.DialFrames(ctx, frameURL(cfg.Providers.Capture))
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect video stream: %w", err)
		}
		opts = append(opts, controller.WithVideo(frames, sampler))
	}

	ctrl, err := controller.New(controller.Channel(channel), transcriber, conv, threat, store, opts...)
	if err != nil {
		return nil, cleanup, err
	}
	return ctrl, cleanup, nil
}

// createLLM builds the LLM provider for entry. When the entry declares
// fallbacks, the primary is wrapped in a circuit-breaker group that fails over
// to each fallback provider in order.
func createLLM(reg *config.Registry, entry config.ProviderEntry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fe := range entry.Fallbacks {
		p, err := reg.CreateLLM(fe)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fe.Name, err)
		}
		fb.AddFallback(fe.Name, p)
	}
	return fb, nil
}

// createSTT builds the transcriber for entry, wrapping it with fallbacks when
// configured. whisper-native providers hold a loaded model, so their Close is
// appended to cleanups.
func createSTT(reg *config.Registry, entry config.ProviderEntry, cleanups *[]func()) (stt.Transcriber, error) {
	create := func(e config.ProviderEntry) (stt.Transcriber, error) {
		t, err := reg.CreateSTT(e)
		if err != nil {
			return nil, err
		}
		if closer, ok := t.(interface{ Close() error }); ok {
			*cleanups = append(*cleanups, func() {
				if err := closer.Close(); err != nil {
					slog.Warn("transcriber close error", "name", e.Name, "err", err)
				}
			})
		}
		return t, nil
	}

	primary, err := create(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewSTTFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fe := range entry.Fallbacks {
		t, err := create(fe)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fe.Name, err)
		}
		fb.AddFallback(fe.Name, t)
	}
	return fb, nil
}

// createTTS builds the speaker for entry, wrapping it with fallbacks when
// configured.
func createTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Speaker, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewTTSFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fe := range entry.Fallbacks {
		s, err := reg.CreateTTS(fe)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fe.Name, err)
		}
		fb.AddFallback(fe.Name, s)
	}
	return fb, nil
}

// ledgerCheck reports whether the ticket ledger's directory is writable.
func ledgerCheck(path string) func(context.Context) error {
	return func(context.Context) error {
		dir := filepath.Dir(path)
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}

// sessionCheck reports failure while no monitoring session is running.
func sessionCheck(ctrl *controller.Controller) func(context.Context) error {
	return func(context.Context) error {
		if st := ctrl.State(); st != controller.StateRunning {
			return fmt.Errorf("session is %s", st)
		}
		return nil
	}
}

// channelOf returns the configured channel, defaulting to audio.
func channelOf(cfg *config.Config) config.Channel {
	if cfg.Pipeline.Channel == "" {
		return config.ChannelAudio
	}
	return cfg.Pipeline.Channel
}

// frameURL returns the gateway endpoint for the video frame stream: the
// "frames_url" option when set, otherwise the capture base URL with "/frames"
// appended.
func frameURL(capture config.ProviderEntry) string {
	if u := optString(capture.Options, "frames_url"); u != "" {
		return u
	}
	return capture.BaseURL + "/frames"
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Speaker, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language_id"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if id := optString(entry.Options, "speaker_id"); id != "" {
			opts = append(opts, coqui.WithSpeakerID(id))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterVision("openai", func(entry config.ProviderEntry) (vision.Captioner, error) {
		var opts []visionoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, visionoai.WithBaseURL(entry.BaseURL))
		}
		return visionoai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterCapture("wsingest", func(entry config.ProviderEntry) (audio.CaptureSource, error) {
		var opts []wsingest.Option
		if codec := optString(entry.Options, "codec"); codec != "" {
			opts = append(opts, wsingest.WithCodec(wsingest.Codec(codec)))
		}
		return wsingest.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranslit("passthrough", func(config.ProviderEntry) (translit.Transliterator, error) {
		return translit.Passthrough{}, nil
	})
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

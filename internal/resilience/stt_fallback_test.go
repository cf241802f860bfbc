package resilience

import (
	"context"
	"errors"
	"testing"

	sttmock "github.com/guardline/guardline/pkg/provider/stt/mock"
)

func TestSTTFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Results: []string{"help me"}}
	secondary := &sttmock.Transcriber{Results: []string{"should not run"}}

	fb := NewSTTFallback(primary, "whisper-native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)

	text, err := fb.Transcribe(context.Background(), []float32{0.1, 0.2})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "help me" {
		t.Errorf("text = %q, want the primary's result", text)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestSTTFallback_FailoverPassesSameSamples(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Err: errors.New("model crashed")}
	secondary := &sttmock.Transcriber{Results: []string{"help me"}}

	fb := NewSTTFallback(primary, "whisper-native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)

	samples := []float32{0.1, 0.2, 0.3}
	text, err := fb.Transcribe(context.Background(), samples)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "help me" {
		t.Errorf("text = %q, want the fallback's result", text)
	}
	if got := secondary.Call(0); len(got) != len(samples) {
		t.Errorf("fallback received %d samples, want %d", len(got), len(samples))
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Err: errors.New("down")}
	secondary := &sttmock.Transcriber{Err: errors.New("also down")}

	fb := NewSTTFallback(primary, "whisper-native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)

	_, err := fb.Transcribe(context.Background(), []float32{0.1})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

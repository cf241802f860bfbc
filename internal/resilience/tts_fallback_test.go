package resilience

import (
	"context"
	"errors"
	"testing"

	ttsmock "github.com/guardline/guardline/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Speaker{}
	secondary := &ttsmock.Speaker{}

	fb := NewTTSFallback(primary, "coqui", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("coqui-backup", secondary)

	if err := fb.Speak(context.Background(), "Stay on the line."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := primary.Spoken(); len(got) != 1 || got[0] != "Stay on the line." {
		t.Errorf("primary spoke %v, want the text once", got)
	}
	if got := secondary.Spoken(); len(got) != 0 {
		t.Errorf("secondary spoke %v, want nothing", got)
	}
}

func TestTTSFallback_Failover(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Speaker{Err: errors.New("server unreachable")}
	secondary := &ttsmock.Speaker{}

	fb := NewTTSFallback(primary, "coqui", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("coqui-backup", secondary)

	if err := fb.Speak(context.Background(), "Stay on the line."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := secondary.Spoken(); len(got) != 1 || got[0] != "Stay on the line." {
		t.Errorf("secondary spoke %v, want the text once", got)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Speaker{Err: errors.New("down")}
	secondary := &ttsmock.Speaker{Err: errors.New("also down")}

	fb := NewTTSFallback(primary, "coqui", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("coqui-backup", secondary)

	if err := fb.Speak(context.Background(), "hello"); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

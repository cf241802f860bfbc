package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/guardline/guardline/pkg/provider/llm"
	"github.com/guardline/guardline/pkg/provider/llm/mock"
)

func TestConversation_StartSendsOpeningSentinel(t *testing.T) {
	t.Parallel()

	backend := &mock.Provider{Replies: []string{"911, what is your emergency?"}}
	conv := NewConversation(backend, "You are an emergency operator.", 0.7)

	cont, greeting, err := conv.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !cont {
		t.Error("cont = false after benign greeting, want true")
	}
	if greeting != "911, what is your emergency?" {
		t.Errorf("greeting = %q", greeting)
	}

	call := backend.LastCall()
	if call.SystemPrompt != "You are an emergency operator." {
		t.Errorf("system prompt = %q", call.SystemPrompt)
	}
	if len(call.Messages) != 1 {
		t.Fatalf("opening call carried %d messages, want 1", len(call.Messages))
	}
	if call.Messages[0].Role != llm.RoleUser || call.Messages[0].Content != StartSentinel {
		t.Errorf("opening turn = %+v, want user %q", call.Messages[0], StartSentinel)
	}
}

func TestConversation_RespondGrowsHistory(t *testing.T) {
	t.Parallel()

	backend := &mock.Provider{Replies: []string{"greeting", "Stay calm, help is on the way."}}
	conv := NewConversation(backend, "", 0)

	if _, _, err := conv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cont, reply, err := conv.Respond(context.Background(), "There is a fire in my kitchen!")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !cont {
		t.Error("cont = false, want true")
	}
	if reply != "Stay calm, help is on the way." {
		t.Errorf("reply = %q", reply)
	}

	// Second call must carry the full history: opener, greeting, user turn.
	call := backend.LastCall()
	if len(call.Messages) != 3 {
		t.Fatalf("second call carried %d messages, want 3", len(call.Messages))
	}
	if call.Messages[1].Role != llm.RoleAssistant || call.Messages[1].Content != "greeting" {
		t.Errorf("history[1] = %+v, want assistant greeting", call.Messages[1])
	}

	if got := len(conv.History()); got != 4 {
		t.Errorf("history length = %d, want 4", got)
	}
}

func TestConversation_EndSentinelStopsButStaysInReply(t *testing.T) {
	t.Parallel()

	backend := &mock.Provider{Replies: []string{"greeting", "Units dispatched. **END CALL**"}}
	conv := NewConversation(backend, "", 0)

	if _, _, err := conv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cont, reply, err := conv.Respond(context.Background(), "ok")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if cont {
		t.Error("cont = true for reply carrying end sentinel, want false")
	}
	if reply != "Units dispatched. **END CALL**" {
		t.Errorf("reply = %q, sentinel must not be stripped", reply)
	}
}

func TestConversation_BackendErrorLeavesHistoryUntouched(t *testing.T) {
	t.Parallel()

	backend := &mock.Provider{Replies: []string{"greeting"}}
	conv := NewConversation(backend, "", 0)
	if _, _, err := conv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	backend.Err = errors.New("backend down")
	if _, _, err := conv.Respond(context.Background(), "hello?"); err == nil {
		t.Fatal("Respond succeeded with failing backend, want error")
	}
	if got := len(conv.History()); got != 2 {
		t.Errorf("history length after failed turn = %d, want 2", got)
	}
}

func TestThreat_StartPrimesWithEmptyTurn(t *testing.T) {
	t.Parallel()

	backend := &mock.Provider{Replies: []string{"Monitoring."}}
	th := NewThreat(backend, "Classify threats.")

	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	call := backend.LastCall()
	if len(call.Messages) != 1 || call.Messages[0].Content != "" {
		t.Errorf("opening call = %+v, want single empty user turn", call.Messages)
	}
}

func TestThreat_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		reply       string
		wantFlagged bool
		wantDetails string
	}{
		{
			name:        "positive verdict",
			reply:       "Armed intruder reported at the address.",
			wantFlagged: true,
			wantDetails: "Armed intruder reported at the address.",
		},
		{
			name:        "classifier closing is not a verdict",
			reply:       "Nothing further. **END CALL**",
			wantFlagged: false,
			wantDetails: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			backend := &mock.Provider{Replies: []string{"priming", tc.reply}}
			th := NewThreat(backend, "")
			if err := th.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			flagged, details, err := th.Classify(context.Background(), "he has a weapon")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if flagged != tc.wantFlagged {
				t.Errorf("flagged = %v, want %v", flagged, tc.wantFlagged)
			}
			if details != tc.wantDetails {
				t.Errorf("details = %q, want %q", details, tc.wantDetails)
			}
		})
	}
}

func TestThreat_HistoryIndependentOfConversation(t *testing.T) {
	t.Parallel()

	convBackend := &mock.Provider{Replies: []string{"greeting"}}
	threatBackend := &mock.Provider{Replies: []string{"priming", "verdict"}}

	conv := NewConversation(convBackend, "responder framing", 0)
	th := NewThreat(threatBackend, "classifier framing")

	if _, _, err := conv.Start(context.Background()); err != nil {
		t.Fatalf("conversation Start: %v", err)
	}
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("threat Start: %v", err)
	}
	if _, _, err := th.Classify(context.Background(), "same transcript"); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	for _, call := range threatBackend.Calls() {
		if call.SystemPrompt != "classifier framing" {
			t.Errorf("classifier saw system prompt %q", call.SystemPrompt)
		}
		for _, m := range call.Messages {
			if m.Content == StartSentinel {
				t.Error("classifier history contains the responder's opening sentinel")
			}
		}
	}
}

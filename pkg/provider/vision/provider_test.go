package vision

import "testing"

func TestHasThreat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		caption string
		want    bool
	}{
		{
			name:    "benign caption",
			caption: "A quiet street with parked cars.",
			want:    false,
		},
		{
			name:    "marker at start",
			caption: "[THREAT] A person brandishing a knife.",
			want:    true,
		},
		{
			name:    "marker embedded",
			caption: "Smoke visible [THREAT] near the doorway.",
			want:    true,
		},
		{
			name:    "empty caption",
			caption: "",
			want:    false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HasThreat(tc.caption); got != tc.want {
				t.Errorf("HasThreat(%q) = %v, want %v", tc.caption, got, tc.want)
			}
		})
	}
}

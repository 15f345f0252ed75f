package version

import "testing"

func TestInfo(t *testing.T) {
	tests := []struct {
		name  string
		info  Info
		short string
		full  string
	}{
		{name: "dev", info: Info{}, short: "dev", full: "dev"},
		{name: "date only", info: Info{Date: "2026-01-01"}, short: "dev", full: "dev"},
		{name: "commit", info: Info{Commit: "abc1234", Date: "2026-01-01"}, short: "abc1234", full: "abc1234 built 2026-01-01"},
		{name: "tag", info: Info{Tag: "v0.3.0", Commit: "abc1234", Date: "2026-01-01"}, short: "v0.3.0", full: "v0.3.0 (abc1234) built 2026-01-01"},
		{name: "tag without commit", info: Info{Tag: "v0.3.0"}, short: "v0.3.0", full: "v0.3.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.short {
				t.Fatalf("String: want %q, got %q", tt.short, got)
			}
			if got := tt.info.Full(); got != tt.full {
				t.Fatalf("Full: want %q, got %q", tt.full, got)
			}
		})
	}
}

func TestGetReadsLinkerVars(t *testing.T) {
	prevTag, prevCommit, prevDate := tag, commit, date
	t.Cleanup(func() { tag, commit, date = prevTag, prevCommit, prevDate })

	tag, commit, date = "v1.0.0", "deadbee", "2026-02-03"
	if got, want := Full(), "v1.0.0 (deadbee) built 2026-02-03"; got != want {
		t.Fatalf("Full: want %q, got %q", want, got)
	}
	if got := String(); got != "v1.0.0" {
		t.Fatalf("String: want v1.0.0, got %q", got)
	}
}

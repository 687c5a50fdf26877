package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func withCategories(t *testing.T, s string) {
	t.Helper()
	orig := categories
	t.Cleanup(func() { categories = orig })
	categories = parseCategories(s)
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"streaming", []string{"streaming"}},
		{" providers , streaming ", []string{"providers", "streaming"}},
		{"PROVIDERS,Engine", []string{"engine", "providers"}},
		{"providers,,", []string{"providers"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseCategories(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for _, c := range tt.want {
				if !got[c] {
					t.Errorf("category %q missing", c)
				}
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	withCategories(t, "streaming")

	if !Enabled("streaming") {
		t.Error("streaming should be enabled")
	}
	if Enabled("providers") {
		t.Error("providers should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled("anything") {
		t.Error("all should enable every category")
	}
}

func TestCategoriesSorted(t *testing.T) {
	withCategories(t, "streaming,auth,providers")

	got := strings.Join(Categories(), ",")
	if got != "auth,providers,streaming" {
		t.Errorf("Categories() = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTraceTo(t *testing.T) {
	withCategories(t, "streaming")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))

	TraceTo(logger, "streaming", "frame", "kind", "payload")
	TraceTo(logger, "providers", "request")

	out := buf.String()
	if !strings.Contains(out, "msg=frame") || !strings.Contains(out, "debug=streaming") {
		t.Errorf("missing streaming trace line: %q", out)
	}
	if strings.Contains(out, "request") {
		t.Errorf("disabled category was logged: %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("Truncate long = %q", got)
	}
}

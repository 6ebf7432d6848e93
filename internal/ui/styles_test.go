package ui

import (
	"strings"
	"testing"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

func TestRenderColors(t *testing.T) {
	noColor = false
	t.Cleanup(func() { noColor = false })

	if got := RenderMode(model.ModeTeam); !strings.Contains(got, "\x1b[38;5;114m") || !strings.Contains(got, "TEAM") {
		t.Errorf("RenderMode(TEAM) = %q", got)
	}
	if got := RenderMode(model.ModeSolo); !strings.Contains(got, "\x1b[38;5;179m") {
		t.Errorf("RenderMode(SOLO) = %q", got)
	}
	if got := RenderVisibility(model.VisibilityPublic); got != "PUBLIC" {
		t.Errorf("RenderVisibility(PUBLIC) = %q", got)
	}
	if got := RenderVisibility(model.VisibilityPrivate); !strings.HasPrefix(got, "\x1b[") {
		t.Errorf("RenderVisibility(PRIVATE) = %q", got)
	}
}

func TestForceNoColor(t *testing.T) {
	t.Cleanup(func() { noColor = false })
	ForceNoColor()
	for _, got := range []string{
		RenderAccent("a"), RenderMuted("a"), RenderCommand("a"), RenderWarning("a"),
	} {
		if got != "a" {
			t.Errorf("got %q, want plain text", got)
		}
	}
	if got := RenderMode(model.ModeSolo); got != "SOLO" {
		t.Errorf("RenderMode = %q", got)
	}
}

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"no color wins", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false},
		{"forced", map[string]string{"NO_COLOR": "", "CLICOLOR_FORCE": "1"}, true},
		{"disabled", map[string]string{"NO_COLOR": "", "CLICOLOR_FORCE": "", "CLICOLOR": "0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdef", 10, "abcdef"},
		{"abcdef", 6, "abcdef"},
		{"abcdef", 4, "abc…"},
		{"abcdef", 1, "…"},
		{"abcdef", 0, "abcdef"},
		{"ééééé", 3, "éé…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/viewshare/internal/ui"
)

// helpRule styles one pattern in cobra's plain help text.
type helpRule struct {
	re    *regexp.Regexp
	style func(parts []string) string
}

var helpRules = []helpRule{
	// Section headers such as "Sessions:" or "Flags:".
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`), func(p []string) string {
		return ui.RenderAccent(strings.TrimSpace(p[0]))
	}},
	// Command names in a listing.
	{regexp.MustCompile(`(?m)^(  )(\S+)(  )`), func(p []string) string {
		return p[1] + ui.RenderCommand(p[2]) + p[3]
	}},
	// Flag value types.
	{regexp.MustCompile(`(--?\S+\s+)(string|int|duration|float)\b`), func(p []string) string {
		return p[1] + ui.RenderMuted(p[2])
	}},
	// Defaults.
	{regexp.MustCompile(`\(default [^)]*\)`), func(p []string) string {
		return ui.RenderMuted(p[0])
	}},
}

// colorizedHelpFunc renders cobra's usage through colorizeHelpOutput when
// stdout takes color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			return rule.style(rule.re.FindStringSubmatch(match))
		})
	}
	return s
}

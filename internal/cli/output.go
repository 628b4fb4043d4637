package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	colorAccent  = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")
)

var styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Label:   lipgloss.NewStyle().Width(20),
	Success: lipgloss.NewStyle().Foreground(colorAccent),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1),
}

// render writes v in the selected format. text renders the human form.
func render(w io.Writer, format string, v any, text func() string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(w, text())
		return err
	}
}

// fields renders label/value lines
func fields(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(styles.Label.Render(pairs[i] + ":"))
		b.WriteString(pairs[i+1])
	}
	return b.String()
}

package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	dangerColor  = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	borderColor  = lipgloss.Color("#6B7280")

	summaryTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	summaryLabel = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(18)

	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	severityStyles = map[derived.Severity]lipgloss.Style{
		derived.SeverityInfo:    lipgloss.NewStyle().Foreground(primaryColor),
		derived.SeverityWarning: lipgloss.NewStyle().Foreground(warningColor),
		derived.SeverityDanger:  lipgloss.NewStyle().Foreground(dangerColor).Bold(true),
		derived.SeveritySuccess: lipgloss.NewStyle().Foreground(successColor),
	}
)

// renderSummary formats s for the terminal. Without styling the output is
// plain text suitable for pipes and tests.
func renderSummary(s *runSummary, styled bool) string {
	title := func(t string) string { return t }
	label := func(l string) string { return fmt.Sprintf("%-18s", l) }
	severity := func(sev derived.Severity, t string) string { return t }
	if styled {
		title = func(t string) string { return summaryTitle.Render(t) }
		label = func(l string) string { return summaryLabel.Render(l) }
		severity = func(sev derived.Severity, t string) string {
			if st, ok := severityStyles[sev]; ok {
				return st.Render(t)
			}
			return t
		}
	}

	var b strings.Builder
	heading := "Run summary"
	if s.Scenario != "" {
		heading += ": " + s.Scenario
	}
	b.WriteString(title(heading) + "\n\n")

	row := func(l string, v any) {
		b.WriteString(label(l) + fmt.Sprint(v) + "\n")
	}
	row("elapsed", s.Elapsed)
	row("emitted", s.Emitted)
	row("delivered", fmt.Sprintf("%d (%d immediate)", s.Delivered, s.Immediate))
	row("handler failures", s.HandlerFailures)
	row("still queued", s.Pending)
	row("remembered", s.Remembered)

	states := make([]string, 0, len(s.Actions))
	for state, n := range s.Actions {
		states = append(states, fmt.Sprintf("%s=%d", state, n))
	}
	slices.Sort(states)
	if len(states) == 0 {
		states = append(states, "none")
	}
	row("actions", strings.Join(states, " "))
	row("executed", s.Executed)

	if len(s.Alerts) > 0 {
		b.WriteString("\n" + title("Alerts") + "\n")
		for _, a := range s.Alerts {
			line := fmt.Sprintf("  [%s] %s", a.Severity, a.Title)
			if a.SubjectID != "" {
				line += " (" + a.SubjectID + ")"
			}
			b.WriteString(severity(a.Severity, line) + "\n")
		}
	}

	if len(s.Recommendations) > 0 {
		b.WriteString("\n" + title("Recommendations") + "\n")
		for _, r := range s.Recommendations {
			fmt.Fprintf(&b, "  %s (%s, confidence %.2f)\n", r.Title, r.Domain, r.Confidence)
		}
	}

	if len(s.Chains) > 0 {
		b.WriteString("\n" + title("Chains") + "\n")
		ids := make([]string, 0, len(s.Chains))
		for id := range s.Chains {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "  %s: %s\n", shortID(id), strings.Join(s.Chains[id], " → "))
		}
	}

	out := strings.TrimRight(b.String(), "\n")
	if styled {
		return summaryBox.Render(out)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

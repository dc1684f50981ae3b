package core

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const bannerWidth = 80

var (
	accentColor  = lipgloss.Color("#FFB3BA")
	successColor = lipgloss.Color("#A8E6CF")
	failureColor = lipgloss.Color("#FF6B6B")
	mutedColor   = lipgloss.Color("#6B7280")
)

type bannerStyles struct {
	rule    lipgloss.Style
	title   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	label   lipgloss.Style
}

func newBannerStyles(w io.Writer, colored bool) bannerStyles {
	r := lipgloss.NewRenderer(w)
	s := bannerStyles{
		rule:    r.NewStyle(),
		title:   r.NewStyle().Bold(true),
		success: r.NewStyle().Bold(true),
		failure: r.NewStyle().Bold(true),
		label:   r.NewStyle(),
	}
	if colored {
		s.rule = s.rule.Foreground(mutedColor)
		s.title = s.title.Foreground(accentColor)
		s.success = s.success.Foreground(successColor)
		s.failure = s.failure.Foreground(failureColor)
		s.label = s.label.Foreground(mutedColor)
	}
	return s
}

type bannerLine struct {
	label string
	value string
}

func rule() string {
	return strings.Repeat("=", bannerWidth)
}

func (s bannerStyles) render(title string, titleStyle lipgloss.Style, lines []bannerLine) string {
	line := s.rule.Render(rule())

	var b strings.Builder
	b.WriteString("\n" + line + "\n")
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(line + "\n")
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", s.label.Render(fmt.Sprintf("%-11s", l.label+":")), l.value)
	}
	b.WriteString(line + "\n")
	return b.String()
}

func (c *Core) printStartBanner() {
	lines := []bannerLine{
		{"Script", c.scriptName},
		{"App", c.appName},
		{"Started At", c.startTime.Format(time.DateTime)},
		{"Run Dir", c.rc.RunDir()},
	}
	fmt.Fprint(c.out, c.styles.render("🚀 AUTOMATION STARTED", c.styles.title, lines))
}

func (c *Core) printEndBanner(a Artifacts, failed bool) {
	title, style := "🏁 AUTOMATION ✓ COMPLETED SUCCESSFULLY", c.styles.success
	if failed {
		title, style = "🏁 AUTOMATION ✗ FAILED", c.styles.failure
	}

	lines := []bannerLine{
		{"Script", c.scriptName},
		{"Ended At", a.EndedAt.Format(time.DateTime)},
		{"Duration", a.Duration},
		{"Error", a.Error},
		{"Log File", a.LogFile},
		{"Trace", a.TracePath},
	}
	if a.MergedVideo != "" {
		lines = append(lines, bannerLine{"Video", a.MergedVideo})
	} else {
		for _, v := range a.Videos {
			lines = append(lines, bannerLine{"Video", v})
		}
	}
	fmt.Fprint(c.out, c.styles.render(title, style, lines))
}

// FormatDuration renders d as "1h 2m 3.45s", "2m 3.45s" or "3.45s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := d.Seconds()
	hours := int(secs / 3600)
	minutes := int(secs/60) % 60
	rest := secs - float64(int(secs/60))*60

	switch {
	case hours >= 1:
		return fmt.Sprintf("%dh %dm %.2fs", hours, minutes, rest)
	case minutes >= 1:
		return fmt.Sprintf("%dm %.2fs", minutes, rest)
	default:
		return fmt.Sprintf("%.2fs", secs)
	}
}

package monitor

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kvcanary/internal/models"
	"kvcanary/internal/probe"
)

var (
	green = lipgloss.Color("#10B981")
	red   = lipgloss.Color("#EF4444")
)

// statusPrinter writes one human-readable line per tick. Colours are only
// emitted when the writer is a terminal.
type statusPrinter struct {
	w    io.Writer
	ok   lipgloss.Style
	fail lipgloss.Style
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	r := lipgloss.NewRenderer(w)
	return &statusPrinter{
		w:    w,
		ok:   r.NewStyle().Foreground(green).Bold(true),
		fail: r.NewStyle().Foreground(red).Bold(true),
	}
}

func (p *statusPrinter) print(res probe.Result, snap models.Snapshot) {
	_, _ = io.WriteString(p.w, p.line(res, snap)+"\n")
}

func (p *statusPrinter) line(res probe.Result, snap models.Snapshot) string {
	var b strings.Builder
	b.WriteString("canary ")
	if res.OK() {
		b.WriteString(p.ok.Render("OK"))
	} else {
		b.WriteString(p.fail.Render("FAIL"))
	}
	fmt.Fprintf(&b, " key=%s value=%s", res.Key, res.Value)
	if reason := res.Reason(); reason != "" {
		fmt.Fprintf(&b, " error=%s", reason)
	}
	fmt.Fprintf(&b, " latency_ms=%s checks=%d failures=%d",
		strconv.FormatFloat(snap.LastLatencyMS, 'f', -1, 64), snap.TotalChecks, snap.TotalFailures)
	return b.String()
}

// Package output renders meeting progress and results for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"llm-meeting/internal/archive"
	"llm-meeting/internal/carryover"
	"llm-meeting/internal/meeting"
	"llm-meeting/internal/transcript"
)

type Formatter struct {
	w       io.Writer
	verbose bool
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// Verbose makes Notify print every statement in full.
func (f *Formatter) Verbose(v bool) *Formatter {
	f.verbose = v
	return f
}

var phaseLabels = map[meeting.Phase]string{
	meeting.PhaseInitializing:       "👥 Initializing participants...",
	meeting.PhaseProcessingDocument: "📄 Processing document...",
	meeting.PhaseEnhancingPersonas:  "🎭 Preparing personas...",
	meeting.PhaseDiscussing:         "💬 Discussion started",
	meeting.PhaseSummarizing:        "🤖 Writing final summary...",
	meeting.PhaseCompleted:          "✅ Meeting completed",
	meeting.PhaseError:              "❌ Meeting stopped",
}

// Notify prints engine events. It satisfies meeting.Observer.
func (f *Formatter) Notify(ev meeting.Event) {
	switch ev.Type {
	case meeting.EventPhaseChanged:
		if label, ok := phaseLabels[ev.Phase]; ok {
			fmt.Fprintf(f.w, "%s\n", label)
		}
	case meeting.EventProgress:
		switch ev.Detail {
		case meeting.ProgressRound:
			fmt.Fprintf(f.w, "\n🔁 Round %d/%d\n", ev.Current, ev.Total)
		case meeting.ProgressStatement:
			fmt.Fprintf(f.w, "  🗣️  Statement %d/%d\n", ev.Current, ev.Total)
		case meeting.ProgressRecap:
			fmt.Fprintf(f.w, "  📝 Moderator recap for round %d\n", ev.Current)
		}
	case meeting.EventStatementAdded:
		if ev.Entry != nil {
			f.entry(*ev.Entry)
		}
	case meeting.EventError:
		f.Warning(ev.Message)
	}
}

func (f *Formatter) entry(e transcript.Entry) {
	if e.Failed {
		fmt.Fprintf(f.w, "     ❌ %s: %s\n", e.Speaker, e.Content)
		return
	}
	content := e.Content
	if !f.verbose {
		content = truncate(content, 80)
	}
	fmt.Fprintf(f.w, "     %s: %s\n", e.Speaker, content)
}

// Result prints the final report and run statistics.
func (f *Formatter) Result(r *meeting.Result) {
	fmt.Fprintf(f.w, "\n%s\n\n%s\n\n", strings.Repeat("=", 60), r.FinalReport)
	fmt.Fprintf(f.w, "⏱️  Duration: %s\n", formatDuration(r.Duration()))
	fmt.Fprintf(f.w, "🔢 Tokens: %d\n", r.TotalTokens)
	fmt.Fprintf(f.w, "💬 Entries: %d (%d participants)\n", len(r.Transcript), r.ParticipantsCount)
	if r.DocumentSummary != nil {
		fmt.Fprintf(f.w, "📄 Document compressed to %.0f%%\n", r.DocumentSummary.CompressionRatio*100)
	}
	if r.CarryOverID != "" {
		fmt.Fprintf(f.w, "📌 Unresolved issues saved: %s\n", r.CarryOverID)
	}
	if r.Error != "" {
		f.Error(r.Error)
	}
	fmt.Fprintf(f.w, "🆔 Meeting: %s\n", r.ID)
}

func (f *Formatter) CarryOverList(items []carryover.Summary) {
	if len(items) == 0 {
		f.Info("No carry-overs found")
		return
	}
	fmt.Fprintf(f.w, "📌 Carry-overs:\n\n")
	for _, s := range items {
		fmt.Fprintf(f.w, "  %s  %s\n", s.ID, s.DisplayName)
	}
}

func (f *Formatter) CarryOver(id string, rec *carryover.Record) {
	fmt.Fprintf(f.w, "📌 %s [%s]\n📋 %s\n\n%s\n", id, rec.CreatedAt, rec.Topic, rec.UnresolvedIssues)
}

func (f *Formatter) HistoryList(items []archive.Metadata) {
	if len(items) == 0 {
		f.Info("No meetings found")
		return
	}
	fmt.Fprintf(f.w, "📁 Meetings:\n\n")
	for _, m := range items {
		status := " ✅"
		if m.Phase != meeting.PhaseCompleted {
			status = " ❌"
		}
		fmt.Fprintf(f.w, "  %s  %s  %s%s\n", m.ID, m.StartedAt.Local().Format("2006-01-02 15:04"), m.Topic, status)
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

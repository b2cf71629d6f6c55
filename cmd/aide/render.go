package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/aide-dev/aide/pkg/agent"
)

var (
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// renderEvent prints one engine event to the terminal. Text deltas stream
// raw so the reply appears as it is generated.
func renderEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventTextDelta:
		fmt.Print(ev.Delta)
	case agent.EventAssistantEnd:
		if ev.Message != nil && ev.Message.Content != "" {
			fmt.Println()
		}
	case agent.EventToolStart:
		fmt.Println(toolStyle.Render(fmt.Sprintf("⏺ %s ...", ev.ToolName)))
	case agent.EventToolEnd:
		if ev.Result == nil {
			return
		}
		if ev.Result.Success {
			fmt.Println(dimStyle.Render(fmt.Sprintf("  %s done", ev.ToolName)))
		} else {
			fmt.Println(errorStyle.Render(fmt.Sprintf("  %s failed: %s", ev.ToolName, ev.Result.Error)))
		}
	case agent.EventCompactStart:
		fmt.Println(noticeStyle.Render("… compacting conversation history"))
	case agent.EventCompactEnd:
		if ev.Compaction != nil && ev.Compaction.Error != "" {
			fmt.Println(noticeStyle.Render("compaction skipped: " + ev.Compaction.Error))
		} else if ev.Compaction != nil {
			fmt.Println(dimStyle.Render(fmt.Sprintf("history compacted: %d -> %d messages",
				ev.Compaction.Before, ev.Compaction.After)))
		}
	case agent.EventNotice:
		fmt.Println(noticeStyle.Render(ev.Notice))
	case agent.EventErrorFragment:
		fmt.Println(errorStyle.Render(ev.Delta))
	}
}

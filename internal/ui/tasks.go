package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/steveyegge/tasksync/internal/dates"
	"github.com/steveyegge/tasksync/internal/types"
)

// ShortID is the id prefix shown in lists. Commands accept it wherever a
// full id is expected.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// TaskLine renders one task as a single list line.
func TaskLine(t types.Task, now time.Time) string {
	box := "[ ]"
	title := t.Title
	if t.Completed {
		box = RenderPass("[x]")
		title = doneStyle.Render(title)
	}

	line := fmt.Sprintf("%s %s %s", box, RenderMuted(ShortID(t.ID)), title)

	if due := dates.Describe(t.DueDate, now); due != "" {
		switch {
		case t.Completed:
			due = RenderMuted(due)
		case dates.IsOverdue(t.DueDate, now):
			due = RenderFail(due)
		default:
			due = RenderWarn(due)
		}
		line += "  " + due
	}
	return line
}

// TaskList renders tasks one per line, or a hint when there are none.
func TaskList(tasks []types.Task, now time.Time) string {
	if len(tasks) == 0 {
		return RenderMuted("No tasks yet. Add one with 'tasks add <title>'.")
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = TaskLine(t, now)
	}
	return strings.Join(lines, "\n")
}

var detailBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1)

// TaskDetail renders every field of t in a bordered box.
func TaskDetail(t types.Task, now time.Time) string {
	status := RenderWarn("pending")
	if t.Completed {
		status = RenderPass("completed")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", RenderBold(t.Title))
	if t.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", t.Description)
	}
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("Status: "), status)
	if t.DueDate != nil {
		fmt.Fprintf(&b, "%s %s (%s)\n", RenderMuted("Due:    "),
			t.DueDate.Local().Format("Mon Jan 2, 2006 15:04"), dates.Describe(t.DueDate, now))
	}
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("Created:"), t.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("Updated:"), t.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "%s %d\n", RenderMuted("Version:"), t.Version)
	fmt.Fprintf(&b, "%s %s", RenderMuted("ID:     "), t.ID)

	return detailBox.Render(b.String())
}

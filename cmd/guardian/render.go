package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"

	"guardian/internal/guardian"
)

// lipgloss drops the colors itself when stdout is not a terminal.
var (
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	activeStyle   = lipgloss.NewStyle().Bold(true)
)

func changeStyle(t guardian.ChangeType) lipgloss.Style {
	switch t {
	case guardian.ChangeAdded:
		return addedStyle
	case guardian.ChangeDeleted:
		return deletedStyle
	default:
		return modifiedStyle
	}
}

func printChanges(changes []guardian.FileChange, verbose bool) {
	if len(changes) == 0 {
		fmt.Println("No changes.")
		return
	}
	for _, c := range changes {
		style := changeStyle(c.ChangeType)
		fmt.Println(style.Render(string(c.ChangeType[:1]) + " " + c.Path))
		if !verbose {
			continue
		}
		printLines(c.OldContent, "  -", deletedStyle)
		printLines(c.NewContent, "  +", addedStyle)
	}
}

func printLines(content *string, prefix string, style lipgloss.Style) {
	if content == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(*content, "\n"), "\n") {
		fmt.Println(style.Render(prefix + line))
	}
}

func printSession(s guardian.Session, active bool) {
	end := "open"
	if s.EndTime != nil {
		end = formatTime(*s.EndTime)
	}
	line := fmt.Sprintf("%s  %-20s  %s  %s", s.ID, s.Name, formatTime(s.StartTime), dimStyle.Render(end))
	if active {
		fmt.Println(activeStyle.Render("* " + line))
		return
	}
	fmt.Println("  " + line)
}

func printCheckpoint(c guardian.Checkpoint) {
	fmt.Printf("%s  %s  %-20s  %4d files  %-12s  %s\n",
		c.ID, dimStyle.Render(formatTime(c.Timestamp)), c.Name, c.FileCount,
		shortHash(c.CommitHash), dimStyle.Render("session "+c.SessionID))
}

// copyID puts a checkpoint id on the clipboard. Failure is only a warning.
func copyID(id string) {
	if err := clipboard.WriteAll(id); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not copy to clipboard: %v\n", err)
		return
	}
	fmt.Println(dimStyle.Render("Checkpoint id copied to clipboard."))
}

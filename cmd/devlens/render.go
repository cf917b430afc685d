package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"devlens/internal/session"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 16

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(status string) string {
	switch status {
	case string(session.StatusCompleted):
		return ansiGreen
	case string(session.StatusFailed):
		return ansiRed
	case string(session.StatusCancelled):
		return ansiYellow
	case string(session.StatusProcessing), "downloading_from_drive":
		return ansiBlue
	default:
		return ""
	}
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	if color := statusColor(status); color != "" {
		return color + status + ansiReset
	}
	return status
}

func renderField(label, value string) string {
	return fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", value)
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func progressLabel(percent int) string {
	return strconv.Itoa(percent) + "%"
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func sessionRows(projections []session.Projection, colorize bool) [][]string {
	rows := make([][]string, 0, len(projections))
	for _, p := range projections {
		rows = append(rows, []string{
			p.SessionID,
			colorStatus(p.Status, colorize),
			progressLabel(p.Progress),
			dash(p.Stage),
			dash(p.Title),
			dash(p.ModeName),
			relativeTime(p.LastUpdated),
		})
	}
	return rows
}

var sessionColumns = []column{
	{title: "ID"},
	{title: "Status"},
	{title: "Progress", right: true},
	{title: "Stage"},
	{title: "Title"},
	{title: "Mode"},
	{title: "Updated"},
}

func renderProjection(w io.Writer, p session.Projection, colorize bool) {
	fmt.Fprintln(w, renderField("Session", p.SessionID))
	fmt.Fprintln(w, renderField("Status", colorStatus(p.Status, colorize)))
	fmt.Fprintln(w, renderField("Progress", fmt.Sprintf("%s (%s)", progressLabel(p.Progress), dash(p.Stage))))
	fmt.Fprintln(w, renderField("Stages", fmt.Sprintf("stt %d%%, frames %d%%, doc %d%%",
		p.StageProgress.STT, p.StageProgress.Frames, p.StageProgress.Doc)))
	fmt.Fprintln(w, renderField("Title", dash(p.Title)))
	fmt.Fprintln(w, renderField("Mode", dash(p.ModeName)))
	fmt.Fprintln(w, renderField("Source", dash(p.Source)))
	fmt.Fprintln(w, renderField("Created", relativeTime(p.CreatedAt)))
	fmt.Fprintln(w, renderField("Updated", relativeTime(p.LastUpdated)))
	if p.ResultPath != "" {
		fmt.Fprintln(w, renderField("Document", p.ResultPath))
	}
	if p.Error != "" {
		fmt.Fprintln(w, renderField("Error", p.Error))
	}
}

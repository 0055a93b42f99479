package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/3cpo-dev/iptvrun/pkg/api"
)

// RenderTable renders the report as a table, one row per attempted task.
func RenderTable(rep api.RunReport) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"#", "Task", "Status", "Exit", "Duration", "Detail"})
	for i, res := range rep.Results {
		exit := ""
		if res.ExitCode != nil {
			exit = strconv.Itoa(*res.ExitCode)
		}
		tw.AppendRow(table.Row{i + 1, res.Task, string(res.Status), exit, res.Duration.Round(time.Millisecond).String(), res.Error})
	}
	tw.AppendFooter(table.Row{"", "", Summarize(rep), "", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond).String(), ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, WidthMax: 60},
	})
	return tw.Render()
}

// Summarize returns a one-line count of results per status.
func Summarize(rep api.RunReport) string {
	return fmt.Sprintf("%d ok, %d failed, %d timed out, %d missing, %d interrupted",
		rep.Count(api.TaskSuccess),
		rep.Count(api.TaskFailed),
		rep.Count(api.TaskTimedOut),
		rep.Count(api.TaskMissing),
		rep.Count(api.TaskInterrupted))
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, rep api.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

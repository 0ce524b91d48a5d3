// Package output renders terminal execution results for export. The engine's
// result is a pure data structure; formatters only read it.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/flowline/flowline/internal/flow"
)

// Formatter writes an execution result in one export format.
type Formatter interface {
	Format(res *flow.ExecutionResult, w io.Writer) error
	ContentType() string
}

// New resolves a formatter from a format key.
func New(format string) (Formatter, error) {
	switch format {
	case "", "json":
		return &JSONFormatter{}, nil
	case "csv":
		return &CSVFormatter{}, nil
	case "md", "markdown":
		return &MarkdownFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	case "xlsx":
		return &XLSXFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown export format: %q", format)
	}
}

// orderedResults returns node results in execution order, with any stragglers
// appended alphabetically.
func orderedResults(res *flow.ExecutionResult) []*flow.NodeExecutionResult {
	var out []*flow.NodeExecutionResult
	seen := make(map[string]bool)
	for _, id := range res.Order {
		if nr, ok := res.NodeResults[id]; ok {
			out = append(out, nr)
			seen[id] = true
		}
	}
	var rest []string
	for id := range res.NodeResults {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, res.NodeResults[id])
	}
	return out
}

// JSONFormatter emits the result verbatim as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) ContentType() string { return "application/json" }

func (f *JSONFormatter) Format(res *flow.ExecutionResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// CSVFormatter emits one row per node result.
type CSVFormatter struct{}

func (f *CSVFormatter) ContentType() string { return "text/csv" }

func (f *CSVFormatter) Format(res *flow.ExecutionResult, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"node_id", "node_type", "status", "cached", "attempts", "duration_ms", "error"}); err != nil {
		return err
	}
	for _, nr := range orderedResults(res) {
		row := []string{
			nr.NodeID,
			nr.NodeType,
			string(nr.Status),
			fmt.Sprintf("%t", nr.Cached),
			fmt.Sprintf("%d", nr.Attempts),
			fmt.Sprintf("%d", nr.Duration.Milliseconds()),
			nr.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarkdownFormatter emits a summary header and a node table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) ContentType() string { return "text/markdown" }

func (f *MarkdownFormatter) Format(res *flow.ExecutionResult, w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Execution %s\n\n", res.ExecutionID)
	fmt.Fprintf(&sb, "- Workflow: %s\n- Status: %s\n- Started: %s\n- Duration: %s\n\n",
		res.WorkflowName, res.Status, res.StartedAt.Format(time.RFC3339), res.Duration.Round(time.Millisecond))
	sb.WriteString("| Node | Type | Status | Cached | Duration |\n|---|---|---|---|---|\n")
	for _, nr := range orderedResults(res) {
		fmt.Fprintf(&sb, "| %s | %s | %s | %t | %s |\n",
			nr.NodeID, nr.NodeType, nr.Status, nr.Cached, nr.Duration.Round(time.Millisecond))
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "\n**Error:** %s\n", res.Error)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

var htmlTmpl = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Execution {{.ExecutionID}}</title></head>
<body>
<h1>Execution {{.ExecutionID}}</h1>
<p>Workflow: {{.WorkflowName}} — Status: {{.Status}} — Duration: {{.Duration}}</p>
{{if .Error}}<p><strong>Error:</strong> {{.Error}}</p>{{end}}
<table border="1" cellpadding="4">
<tr><th>Node</th><th>Type</th><th>Status</th><th>Cached</th><th>Duration</th><th>Error</th></tr>
{{range .Rows}}<tr><td>{{.NodeID}}</td><td>{{.NodeType}}</td><td>{{.Status}}</td><td>{{.Cached}}</td><td>{{.Duration}}</td><td>{{.Error}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// HTMLFormatter emits a standalone HTML page.
type HTMLFormatter struct{}

func (f *HTMLFormatter) ContentType() string { return "text/html" }

func (f *HTMLFormatter) Format(res *flow.ExecutionResult, w io.Writer) error {
	data := struct {
		ExecutionID  string
		WorkflowName string
		Status       flow.ExecutionStatus
		Duration     time.Duration
		Error        string
		Rows         []*flow.NodeExecutionResult
	}{
		ExecutionID:  res.ExecutionID,
		WorkflowName: res.WorkflowName,
		Status:       res.Status,
		Duration:     res.Duration.Round(time.Millisecond),
		Error:        res.Error,
		Rows:         orderedResults(res),
	}
	return htmlTmpl.Execute(w, data)
}

// XLSXFormatter emits a spreadsheet with a node sheet and a log sheet.
type XLSXFormatter struct{}

func (f *XLSXFormatter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (f *XLSXFormatter) Format(res *flow.ExecutionResult, w io.Writer) error {
	wb := excelize.NewFile()
	defer wb.Close()

	const sheet = "Nodes"
	if err := wb.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := []any{"Node", "Type", "Status", "Cached", "Attempts", "Duration (ms)", "Error"}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, nr := range orderedResults(res) {
		row := []any{nr.NodeID, nr.NodeType, string(nr.Status), nr.Cached, nr.Attempts, nr.Duration.Milliseconds(), nr.Error}
		cell := fmt.Sprintf("A%d", i+2)
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	logSheet := "Log"
	if _, err := wb.NewSheet(logSheet); err != nil {
		return err
	}
	logHeader := []any{"Timestamp", "Node", "Level", "Message"}
	if err := wb.SetSheetRow(logSheet, "A1", &logHeader); err != nil {
		return err
	}
	for i, entry := range res.Log {
		row := []any{entry.Timestamp.Format(time.RFC3339), entry.NodeID, entry.Level, entry.Message}
		cell := fmt.Sprintf("A%d", i+2)
		if err := wb.SetSheetRow(logSheet, cell, &row); err != nil {
			return err
		}
	}

	return wb.Write(w)
}

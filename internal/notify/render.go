package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"pbirefresh/internal/refresh"
)

const reportTitle = "Relatório de Atualização dos Datasets - Power BI"

var htmlReport = template.Must(template.New("report").Parse(`<html>
  <body>
    <h2>{{.Title}}</h2>
    <p>Workspace: {{.Result.Workspace.Name}} | Execução: {{.Result.RunID}} | {{.Summary}}</p>
    <table border="1" cellpadding="5" cellspacing="0">
      <thead>
        <tr>
          <th>Dataset</th>
          <th>Status</th>
          <th>Início</th>
          <th>Fim</th>
        </tr>
      </thead>
      <tbody>
{{- range .Result.Records}}
        <tr>
          <td>{{.Name}}</td>
          <td{{if .Detail}} title="{{.Detail}}"{{end}}>{{.Status}}</td>
          <td>{{.Start}}</td>
          <td>{{.End}}</td>
        </tr>
{{- end}}
      </tbody>
    </table>
  </body>
</html>
`))

// RenderHTML renders the outcome table. Names and details are HTML-escaped.
func RenderHTML(result refresh.RunResult) (string, error) {
	var buf bytes.Buffer
	err := htmlReport.Execute(&buf, struct {
		Title   string
		Summary string
		Result  refresh.RunResult
	}{reportTitle, Summary(result), result})
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// RenderText renders the plain-text alternative of the report.
func RenderText(result refresh.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", reportTitle)
	fmt.Fprintf(&b, "Workspace: %s\n", result.Workspace.Name)
	fmt.Fprintf(&b, "Execução:  %s\n", result.RunID)
	fmt.Fprintf(&b, "%s\n\n", Summary(result))

	for _, rec := range result.Records {
		fmt.Fprintf(&b, "%s | %s | Início: %s | Fim: %s\n", rec.Name, rec.Status, rec.Start, rec.End)
		if rec.Detail != "" && !rec.Status.Succeeded() {
			fmt.Fprintf(&b, "    %s\n", rec.Detail)
		}
	}
	return b.String()
}

// Summary is a one-line count of the run, e.g. "3/4 completed in 2m10s".
func Summary(result refresh.RunResult) string {
	counts := result.Counts()
	s := fmt.Sprintf("%d/%d completed", counts[refresh.StatusCompleted], len(result.Records))
	if d := result.Duration(); d > 0 {
		s += " in " + d.Round(time.Second).String()
	}
	return s
}

package notify

import (
	"strings"
	"testing"

	"pbirefresh/internal/refresh"
)

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleResult())
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}

	for _, want := range []string{
		"<th>Dataset</th>", "<th>Status</th>", "<th>Início</th>", "<th>Fim</th>",
		"<td>Sales Report</td>", "&lt;Inventory&gt;", "RequestError", "Finance", "1/2 completed in 2m10s",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "<Inventory>") {
		t.Error("dataset name not escaped")
	}
	if strings.Count(html, "<tr>") != 3 {
		t.Errorf("got %d table rows, want header + 2", strings.Count(html, "<tr>"))
	}
}

func TestRenderText(t *testing.T) {
	text := RenderText(sampleResult())

	for _, want := range []string{"Sales Report | Completed", "<Inventory> | RequestError", `HTTP 400`} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestSummary_EmptyRun(t *testing.T) {
	if got := Summary(refresh.RunResult{}); got != "0/0 completed" {
		t.Errorf("Summary() = %q", got)
	}
}

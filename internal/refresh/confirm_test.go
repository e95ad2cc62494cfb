package refresh

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"s\n", true},
		{"Sim\n", true},
		{"y\n", true},
		{"  YES  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			c := NewPromptConfirmer(strings.NewReader(tt.input), &out)

			got, err := c.Confirm(context.Background(), "sales repot", "Sales Report")
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Did you mean 'Sales Report'?") {
				t.Errorf("prompt = %q, want suggestion", out.String())
			}
		})
	}
}

func TestPromptConfirmer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewPromptConfirmer(strings.NewReader("s\n"), &bytes.Buffer{})
	if _, err := c.Confirm(ctx, "a", "b"); err == nil {
		t.Fatal("Confirm() expected context error")
	}
}

func TestParseConfirmMode(t *testing.T) {
	tests := []struct {
		mode    string
		accept  bool
		wantErr bool
	}{
		{"accept", true, false},
		{"REJECT", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			c, err := ParseConfirmMode(tt.mode, strings.NewReader(""), &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConfirmMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			got, _ := c.Confirm(context.Background(), "a", "b")
			if got != tt.accept {
				t.Errorf("Confirm() = %v, want %v", got, tt.accept)
			}
		})
	}

	c, err := ParseConfirmMode("", strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseConfirmMode(\"\") error = %v", err)
	}
	if _, isPrompt := c.(*PromptConfirmer); !isPrompt {
		t.Errorf("ParseConfirmMode(\"\") = %T, want *PromptConfirmer", c)
	}
}

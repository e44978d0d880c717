package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestWriteJSONKeepsURIQueryReadable(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	if err := writeJSON(cmd, map[string]string{"remote_uri": "https://cdn.example/label.jpg?dl=1&raw=1"}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "dl=1&raw=1") {
		t.Fatalf("expected unescaped query string, got %q", out)
	}
	if !strings.HasPrefix(out, "{\n  \"remote_uri\"") {
		t.Fatalf("expected indented output, got %q", out)
	}
}

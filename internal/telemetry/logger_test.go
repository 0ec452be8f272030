package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSessionLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "acme-svc", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Infof("hello %s", "world")
	l.Close()

	data, err := os.ReadFile(l.SessionPath())
	if err != nil {
		t.Fatalf("reading session log: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Errorf("session log missing expected message, got: %s", data)
	}
	if filepath.Dir(l.SessionPath()) != dir {
		t.Errorf("session log not under %s", dir)
	}
}

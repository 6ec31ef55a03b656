package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New("debug", path)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected log file to be written")
	}
}

func TestNewUnknownLevel(t *testing.T) {
	log, err := New("loud", "")
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(-1) {
		t.Error("debug should be disabled when the level falls back to info")
	}
}

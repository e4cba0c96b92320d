package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bizstudio/portal/internal/config"
	log "github.com/sirupsen/logrus"
)

func TestSetup_FileOutput(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	logPath := filepath.Join(t.TempDir(), "nested", "portal.log")
	closer, err := Setup(config.LoggingConfig{Level: "debug", Format: "json", ToFile: true, File: logPath, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer closer.Close()

	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter")
	}

	log.WithField("component", "test").Info("hello")
	data, errRead := os.ReadFile(logPath)
	if errRead != nil {
		t.Fatalf("read log file: %v", errRead)
	}
	if len(data) == 0 {
		t.Fatalf("expected log file to contain output")
	}
}

func TestSetup_InvalidLevel(t *testing.T) {
	if _, err := Setup(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/op/go-logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logging.Level{
		"debug":    logging.DEBUG,
		"INFO":     logging.INFO,
		" notice ": logging.NOTICE,
		"warning":  logging.WARNING,
		"error":    logging.ERROR,
		"critical": logging.CRITICAL,
		"bogus":    logging.DEBUG,
		"":         logging.DEBUG,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	if err := Setup(Options{File: path, Level: "info"}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer Setup(Options{})

	log := logging.MustGetLogger("debugtest")
	log.Info("hello from the test")
	log.Debug("filtered out")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from the test") {
		t.Errorf("log file missing info record: %q", data)
	}
	if strings.Contains(string(data), "filtered out") {
		t.Errorf("debug record should be filtered at info level: %q", data)
	}
}

func TestSetupWithoutOutputsDisables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := Setup(Options{File: path, Level: "debug"}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := Setup(Options{}); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	logging.MustGetLogger("debugtest").Warning("after disable")

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "after disable") {
		t.Errorf("record written after logging was disabled: %q", data)
	}
}

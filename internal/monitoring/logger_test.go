package monitoring

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestOpenStreams_StderrOnly(t *testing.T) {
	var stderr bytes.Buffer
	s, err := OpenStreams("pothole", LogOptions{Diag: true}, &stderr)
	if err != nil {
		t.Fatalf("OpenStreams() error = %v", err)
	}
	defer s.Close()

	if s.Ops != &stderr || s.Diag != &stderr {
		t.Error("ops and diag should go to stderr")
	}
	if s.Trace != nil {
		t.Error("trace should be disabled")
	}
}

func TestOpenStreams_Files(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	dir := filepath.Join(t.TempDir(), "logs")
	var stderr bytes.Buffer
	s, err := OpenStreams("gps-log", LogOptions{Dir: dir, Diag: true, Trace: true}, &stderr)
	if err != nil {
		t.Fatalf("OpenStreams() error = %v", err)
	}

	s.Install()
	Logf("fix acquired")
	s.Diag.Write([]byte("port probe\n"))
	s.Trace.Write([]byte("<- OK\n"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(stderr.String(), "fix acquired") {
		t.Errorf("stderr = %q", stderr.String())
	}
	main, err := os.ReadFile(filepath.Join(dir, "gps-log.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(main), "fix acquired") || !strings.Contains(string(main), "port probe") {
		t.Errorf("gps-log.log = %q", main)
	}
	trace, err := os.ReadFile(filepath.Join(dir, "gps-log-trace.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(trace) != "<- OK\n" {
		t.Errorf("trace = %q", trace)
	}
}

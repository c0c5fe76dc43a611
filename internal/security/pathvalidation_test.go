package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	frames := filepath.Join(tmpDir, "frames")
	outside := filepath.Join(tmpDir, "outside")
	for _, d := range []string{frames, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(frames, "link")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		wantError bool
	}{
		{"direct child", filepath.Join(frames, "000007.jpg"), false},
		{"nested", filepath.Join(frames, "run1", "000007.jpg"), false},
		{"dot dot", filepath.Join(frames, "..", "outside", "x.jpg"), true},
		{"through symlink", filepath.Join(frames, "link", "x.jpg"), true},
		{"the directory itself", frames, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, frames)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantError %v", tt.path, err, tt.wantError)
			}
		})
	}
}

func TestResolveWithin(t *testing.T) {
	dir := t.TempDir()

	got, err := ResolveWithin(dir, "f7.png")
	if err != nil || got != filepath.Join(dir, "f7.png") {
		t.Errorf("ResolveWithin() = %q, %v", got, err)
	}
	if _, err := ResolveWithin(dir, "../../etc/passwd"); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if got, err := ResolveWithin(dir, "/data/f.png"); err != nil || got != "/data/f.png" {
		t.Errorf("absolute name = %q, %v", got, err)
	}
	if got, err := ResolveWithin("", "f.png"); err != nil || got != "f.png" {
		t.Errorf("no dir = %q, %v", got, err)
	}
}

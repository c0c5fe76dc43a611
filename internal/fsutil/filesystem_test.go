package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic_OS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "record.json")

	if err := WriteFileAtomic(OSFileSystem{}, path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("data = %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestWriteFileAtomic_RenameFailureKeepsOriginal(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("cal.json", []byte("old"), 0o644)
	m.RenameErr = errors.New("read-only")

	if err := WriteFileAtomic(m, "cal.json", []byte("new"), 0o644); err == nil {
		t.Fatal("expected error")
	}
	data, _ := m.ReadFile("cal.json")
	if string(data) != "old" {
		t.Errorf("original overwritten: %q", data)
	}
	if m.Exists("cal.json.tmp") {
		t.Error("temp file not removed")
	}
}

func TestReadFileLimited(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("small", []byte("1234"), 0o644)

	if _, err := ReadFileLimited(m, "small", 3); err == nil {
		t.Error("expected size error")
	}
	data, err := ReadFileLimited(m, "small", 4)
	if err != nil || string(data) != "1234" {
		t.Errorf("ReadFileLimited = %q, %v", data, err)
	}
	if _, err := ReadFileLimited(m, "missing", 4); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestMemoryFileSystem_Basics(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("a/b/c", 0o755); err != nil {
		t.Fatal(err)
	}
	if !m.Exists("a/b") {
		t.Error("parent dir missing")
	}
	info, err := m.Stat("a/b/c")
	if err != nil || !info.IsDir() {
		t.Errorf("Stat dir = %v, %v", info, err)
	}

	m.WriteFile("a/x", []byte("hello"), 0o600)
	info, err = m.Stat("a/./x")
	if err != nil || info.Size() != 5 || info.Mode() != 0o600 {
		t.Errorf("Stat file = %+v, %v", info, err)
	}

	if err := m.Rename("a/x", "a/y"); err != nil {
		t.Fatal(err)
	}
	if m.Exists("a/x") || !m.Exists("a/y") {
		t.Error("rename did not move file")
	}
	if err := m.Remove("a/y"); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("a/y"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove = %v", err)
	}
}

func TestMemoryFileSystem_ReadIsolation(t *testing.T) {
	m := NewMemoryFileSystem()
	src := []byte("abc")
	m.WriteFile("f", src, 0o644)
	src[0] = 'x'

	got, _ := m.ReadFile("f")
	if string(got) != "abc" {
		t.Errorf("stored data aliased caller slice: %q", got)
	}
	got[1] = 'z'
	again, _ := m.ReadFile("f")
	if string(again) != "abc" {
		t.Errorf("returned data aliased stored slice: %q", again)
	}
}

package fastcopy

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCopySmallFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src.stderr")
	dst := filepath.Join(tmpDir, "dst.stderr")

	content := []byte("error[E0080]: evaluation of constant value failed\n")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	n, err := Copy(src, dst)
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes copied, got %d", len(content), n)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: %q", got)
	}
}

func TestCopyOverwritesDestination(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src")
	dst := filepath.Join(tmpDir, "dst")

	if err := os.WriteFile(src, []byte("short"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(dst, []byte("much longer previous content"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Copy(src, dst); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	got, _ := os.ReadFile(dst)
	if string(got) != "short" {
		t.Errorf("Destination not truncated: %q", got)
	}
}

func TestCopyPreservesPermissions(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src")
	dst := filepath.Join(tmpDir, "dst")

	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Copy(src, dst); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestCopyLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src")
	dst := filepath.Join(tmpDir, "dst")

	// Larger than one copy block so the loop runs more than once.
	content := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1MB
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	n, err := Copy(src, dst)
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes, got %d", len(content), n)
	}

	got, _ := os.ReadFile(dst)
	if !bytes.Equal(got, content) {
		t.Error("Large file content mismatch")
	}
}

func TestCopyRejectsMissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := Copy(filepath.Join(tmpDir, "nope"), filepath.Join(tmpDir, "dst")); err == nil {
		t.Fatal("Expected error for missing source")
	}
}

func TestCopyRejectsDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := Copy(tmpDir, filepath.Join(tmpDir, "dst")); err == nil {
		t.Fatal("Expected error for directory source")
	}
}

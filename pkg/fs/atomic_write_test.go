package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maildeck/mailidx/pkg/fs"
)

const testContentHello = "hello"

func TestAtomicWriteFile_WritesContentToFinalPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

// TestAtomicWriteFile_SurvivesShortWriteToTempFile verifies that a write
// truncated mid-flight to the temp file never lands in the final path: the
// rename only happens after the temp file's contents are fully written and
// synced, so a short write surfaces as an error instead of corrupting the
// target.
func TestAtomicWriteFile_SurvivesShortWriteToTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	faulty := fs.NewFaultFS(fs.NewReal())
	faulty.ShortWritePath = ".final.txt.tmp-"

	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err == nil {
		t.Fatalf("AtomicWriteFile: expected an error from the short write, got nil")
	}

	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatalf("final path must not exist after a short write to the temp file")
	}
}

package convert

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"docforge/internal/docformat"
	"docforge/internal/pkg/errors"
	"docforge/internal/pkg/logger"
)

// writeFakeConverter installs a shell script that mimics the converter CLI.
func writeFakeConverter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake converter script requires a POSIX shell")
	}

	script := "#!/bin/sh\n" + `
fmt=""
out=""
src=""
while [ $# -gt 0 ]; do
  case "$1" in
    --convert-to) fmt="$2"; shift 2;;
    --outdir) out="$2"; shift 2;;
    --headless|-env:*) shift;;
    *) src="$1"; shift;;
  esac
done
base=$(basename "$src")
dst="$out/${base%.*}.$fmt"
` + body + "\n"

	path := filepath.Join(t.TempDir(), "fake-soffice")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake converter: %v", err)
	}
	return path
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func TestConvertSuccess(t *testing.T) {
	bin := writeFakeConverter(t, `cp "$src" "$dst"`)
	tmp := t.TempDir()
	c := New(Config{Bin: bin, Timeout: 10 * time.Second, TmpRoot: tmp, Log: quietLogger()})

	out, err := c.Convert(context.Background(), []byte("native-bytes"), docformat.Odt, "job-1")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if string(out) != "native-bytes" {
		t.Errorf("unexpected output: %q", out)
	}

	assertNoLeftoverDirs(t, tmp)
}

func TestConvertTimeout(t *testing.T) {
	bin := writeFakeConverter(t, `sleep 5; cp "$src" "$dst"`)
	tmp := t.TempDir()
	c := New(Config{Bin: bin, Timeout: 100 * time.Millisecond, TmpRoot: tmp, Log: quietLogger()})

	_, err := c.Convert(context.Background(), []byte("x"), docformat.Pdf, "job-2")
	if !errors.IsCode(err, errors.CodeConversionTimeout) {
		t.Fatalf("expected conversion timeout, got %v", err)
	}

	assertNoLeftoverDirs(t, tmp)
}

func TestConvertNonzeroExit(t *testing.T) {
	bin := writeFakeConverter(t, `echo "boom" >&2; exit 3`)
	tmp := t.TempDir()
	c := New(Config{Bin: bin, Timeout: 10 * time.Second, TmpRoot: tmp, Log: quietLogger()})

	_, err := c.Convert(context.Background(), []byte("x"), docformat.Odt, "job-3")
	if !errors.IsCode(err, errors.CodeConversionFailed) {
		t.Fatalf("expected conversion failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected stderr in error message, got %v", err)
	}

	assertNoLeftoverDirs(t, tmp)
}

func TestConvertEmptyOutput(t *testing.T) {
	bin := writeFakeConverter(t, `: > "$dst"`)
	tmp := t.TempDir()
	c := New(Config{Bin: bin, Timeout: 10 * time.Second, TmpRoot: tmp, Log: quietLogger()})

	_, err := c.Convert(context.Background(), []byte("x"), docformat.Odt, "job-4")
	if !errors.IsCode(err, errors.CodeEmptyOutput) {
		t.Fatalf("expected empty output error, got %v", err)
	}
}

func TestConvertMissingOutput(t *testing.T) {
	bin := writeFakeConverter(t, `exit 0`)
	tmp := t.TempDir()
	c := New(Config{Bin: bin, Timeout: 10 * time.Second, TmpRoot: tmp, Log: quietLogger()})

	_, err := c.Convert(context.Background(), []byte("x"), docformat.Odt, "job-5")
	if !errors.IsCode(err, errors.CodeEmptyOutput) {
		t.Fatalf("expected empty output error for missing file, got %v", err)
	}
}

// assertNoLeftoverDirs verifies the job-scoped workdir was cleaned up.
func assertNoLeftoverDirs(t *testing.T, tmpRoot string) {
	t.Helper()
	entries, err := os.ReadDir(tmpRoot)
	if err != nil {
		t.Fatalf("failed to read tmp root: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "docforge-convert-") {
			t.Errorf("leftover conversion dir: %s", e.Name())
		}
	}
}

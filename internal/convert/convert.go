// Package convert turns the renderer's native document format into the
// requested output format by driving an external headless converter
// subprocess (LibreOffice-compatible CLI).
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docforge/internal/docformat"
	"docforge/internal/pkg/errors"
	"docforge/internal/pkg/logger"
)

const sourceName = "source"

type Config struct {
	// Bin is the converter binary (default "soffice").
	Bin string
	// Timeout is the hard wall-clock limit for one conversion.
	Timeout time.Duration
	// TmpRoot is where job-scoped work directories are created. Empty
	// means the system temp dir.
	TmpRoot string
	// Log receives conversion diagnostics; nil means the default logger.
	Log *logger.Logger
}

type Converter struct {
	bin     string
	timeout time.Duration
	tmpRoot string
	log     *logger.Logger
}

func New(cfg Config) *Converter {
	if cfg.Bin == "" {
		cfg.Bin = "soffice"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.TmpRoot == "" {
		cfg.TmpRoot = os.TempDir()
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Converter{
		bin:     cfg.Bin,
		timeout: cfg.Timeout,
		tmpRoot: cfg.TmpRoot,
		log:     log.WithComponent("convert"),
	}
}

// Convert writes src into a job-scoped temporary directory, runs the
// subprocess and reads back the produced file. The directory is removed on
// every exit path. The converter never retries; retry policy lives at the
// queue level.
func (c *Converter) Convert(ctx context.Context, src []byte, target docformat.Format, jobID string) ([]byte, error) {
	dir, err := os.MkdirTemp(c.tmpRoot, fmt.Sprintf("docforge-convert-%s-%s-", jobID, uuid.NewString()[:8]))
	if err != nil {
		return nil, errors.Wrap(err, "convert.workdir", "failed to create conversion workdir")
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, sourceName+"."+docformat.Native.Ext())
	if err := os.WriteFile(srcPath, src, 0o644); err != nil {
		return nil, errors.Wrap(err, "convert.workdir", "failed to write conversion input")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.bin,
		"--headless",
		"-env:UserInstallation=file://"+filepath.Join(dir, "profile"),
		"--convert-to", target.Ext(),
		"--outdir", dir,
		srcPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	c.log.FromContext(ctx).Debug("converter subprocess finished",
		"job_id", jobID,
		"target", target.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errors.Newf(errors.CodeConversionTimeout,
			"conversion exceeded %s for job %s", c.timeout, jobID)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConversionFailed, "convert.run",
			fmt.Sprintf("converter exited abnormally: %s", truncate(stderr.String(), 500)))
	}

	outPath := filepath.Join(dir, sourceName+"."+target.Ext())
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeEmptyOutput, "convert.output",
			"converter produced no output file")
	}
	if len(out) == 0 {
		return nil, errors.Newf(errors.CodeEmptyOutput,
			"converter produced an empty output file for job %s", jobID)
	}

	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

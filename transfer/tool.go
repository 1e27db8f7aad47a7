package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/teris-io/shortid"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
)

// ToolAdapter wraps an external bulk transfer tool: it writes a batch
// file, invokes the tool, and parses per-line outcomes.
type ToolAdapter struct {
	// BinaryName is the bulk tool's executable name, resolved via PATH.
	// Defaults to "s5cmd", a widely available S3 bulk-copy CLI whose
	// "run <batchfile>" surface this adapter targets.
	BinaryName string
	// TempDir is where per-batch batch files are written; defaults to
	// os.TempDir().
	TempDir string
	// MaxConcurrency bounds the tool's internal worker count.
	MaxConcurrency int
	// PartSizeMiB is the multipart threshold passed to the tool.
	PartSizeMiB int
	// UnsignedRequest sets the tool's unsigned-request flag for public
	// source buckets.
	UnsignedRequest bool

	sid *shortid.Shortid
}

// CopyLine is one line of the batch file: a single source -> destination
// copy command with optional flags.
type CopyLine struct {
	Source      string
	Destination string
	SourceRegion string
}

func NewToolAdapter(binaryName string, maxConcurrency, partSizeMiB int, unsigned bool) *ToolAdapter {
	if binaryName == "" {
		binaryName = "s5cmd"
	}
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		sid = nil
	}
	return &ToolAdapter{
		BinaryName:      binaryName,
		MaxConcurrency:  maxConcurrency,
		PartSizeMiB:     partSizeMiB,
		UnsignedRequest: unsigned,
		sid:             sid,
	}
}

// Available reports whether the bulk tool binary is found on PATH,
// without invoking it.
func (a *ToolAdapter) Available() bool {
	_, err := exec.LookPath(a.BinaryName)
	return err == nil
}

// RunResult is the parsed outcome of one bulk-tool invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// LineOutcomes maps batch-file line index -> parsed outcome, for
	// every line the tool's stderr diagnostics could classify.
	LineOutcomes map[int]executor.Outcome
}

// writeBatchFile renders lines into a uniquely named temp file and
// returns its path; the caller owns deleting it -- a per-batch
// temporary file must be removed on batch completion regardless of
// outcome.
func (a *ToolAdapter) writeBatchFile(lines []CopyLine) (string, error) {
	dir := a.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("batch-%s.txt", a.nextID())
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", cmn.Wrap(cmn.KindStorageError, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		fmt.Fprintln(w, a.renderLine(l))
	}
	if err := w.Flush(); err != nil {
		_ = os.Remove(path)
		return "", cmn.Wrap(cmn.KindStorageError, err)
	}
	return path, nil
}

func (a *ToolAdapter) nextID() string {
	if a.sid == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	id, err := a.sid.Generate()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id
}

func (a *ToolAdapter) renderLine(l CopyLine) string {
	parts := []string{"cp", "--if-size-differ"}
	if a.PartSizeMiB > 0 {
		parts = append(parts, "--part-size", fmt.Sprintf("%d", a.PartSizeMiB))
	}
	if l.SourceRegion != "" {
		parts = append(parts, "--source-region", l.SourceRegion)
	}
	parts = append(parts, l.Source, l.Destination)
	return strings.Join(parts, " ")
}

// Run writes lines to a batch file, invokes the bulk tool, and returns
// the parsed result. The batch file is always removed before returning.
func (a *ToolAdapter) Run(ctx context.Context, lines []CopyLine) (*RunResult, error) {
	if !a.Available() {
		return nil, cmn.Wrap(cmn.KindToolUnavailable, fmt.Errorf("%s not found on PATH", a.BinaryName))
	}

	path, err := a.writeBatchFile(lines)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	args := []string{"run", path}
	workers := a.MaxConcurrency
	if workers <= 0 {
		workers = len(lines)
	}
	args = append(args, "--numworkers", fmt.Sprintf("%d", workers), "--retry-count", "3")
	if a.UnsignedRequest {
		args = append(args, "--no-sign-request")
	}

	// exec.Command, not CommandContext: CommandContext would SIGKILL the
	// process as soon as ctx ends, bypassing terminate's SIGTERM grace period.
	cmd := exec.Command(a.BinaryName, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, cmn.Wrap(cmn.KindToolUnavailable, err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		terminate(cmd)
		<-done
		waitErr = ctx.Err()
	}

	exitCode := 0
	if ee, ok := waitErr.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
	} else if waitErr != nil && exitCode == 0 {
		exitCode = -1
	}

	result := &RunResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if exitCode != 0 {
		result.LineOutcomes = parseDiagnostics(result.Stderr, len(lines))
	}
	return result, nil
}

// terminate sends SIGTERM and escalates to SIGKILL after 5s, the
// cancellation contract for in-flight child processes.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	<-timer.C
	_ = cmd.Process.Kill()
}

// parseDiagnostics scans stderr line by line for known diagnostic
// prefixes, classifying each matched line; unparseable lines are
// intentionally left unmapped so the caller defaults them to
// transient_error.
func parseDiagnostics(stderr string, lineCount int) map[int]executor.Outcome {
	out := make(map[int]executor.Outcome)
	idx := 0
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.Contains(line, "ERROR not-found") || strings.Contains(line, "404"):
			out[idx] = executor.OutcomeSourceMissing
		case strings.Contains(line, "ERROR checksum-mismatch"):
			out[idx] = executor.OutcomeChecksumMismatch
		case strings.Contains(line, "ERROR forbidden") || strings.Contains(line, "403") || strings.Contains(line, "401"):
			out[idx] = executor.OutcomePermanentError
		default:
			glog.V(4).Infof("unparseable bulk-tool diagnostic line: %s", line)
		}
		idx++
		if idx >= lineCount {
			break
		}
	}
	return out
}

package toolpolicy

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// safeEnvPrefixes is the fixed allowlist of environment variables forwarded
// to a sandboxed bash invocation; everything else is cleared.
var safeEnvPrefixes = []string{
	"PATH=", "HOME=", "USER=", "SHELL=", "LANG=", "LC_", "TERM=",
	"TMP", "TZ=",
}

var secretEnvPattern = regexp.MustCompile(`(?i)(_KEY|_TOKEN|_SECRET|_PASSWORD)$`)

// filteredEnv builds the child process environment: the fixed safe-variable
// set plus TAU_SANDBOXED, with any variable whose name suggests a secret
// redacted rather than dropped so diagnostics can still see it was present.
func filteredEnv(sandboxed bool) []string {
	var out []string
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !hasSafePrefix(name + "=") {
			continue
		}
		if secretEnvPattern.MatchString(name) && len(value) >= 6 {
			out = append(out, name+"=[REDACTED]")
			continue
		}
		out = append(out, kv)
	}
	sandboxedValue := "false"
	if sandboxed {
		sandboxedValue = "true"
	}
	out = append(out, "TAU_SANDBOXED="+sandboxedValue)
	return out
}

func hasSafePrefix(nameWithEq string) bool {
	for _, prefix := range safeEnvPrefixes {
		if strings.HasPrefix(nameWithEq, prefix) {
			return true
		}
	}
	return false
}

// truncateOutput caps a captured stream at maxBytes, cutting at a valid
// UTF-8 boundary and appending a sentinel when truncated.
func truncateOutput(data []byte, maxBytes int) string {
	if maxBytes <= 0 || len(data) <= maxBytes {
		return string(data)
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + "\n<output truncated>"
}

// rateLimitedWriter shapes how fast a command's stdout/stderr is drained
// into the capture buffer, so a runaway process can't spend the whole
// bash_timeout_ms budget producing output the policy will truncate anyway.
type rateLimitedWriter struct {
	ctx     context.Context
	limiter *rate.Limiter
	buf     *bytes.Buffer
}

func newRateLimitedWriter(ctx context.Context, buf *bytes.Buffer, bytesPerSec int) *rateLimitedWriter {
	if bytesPerSec <= 0 {
		return &rateLimitedWriter{ctx: ctx, buf: buf}
	}
	burst := bytesPerSec
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedWriter{ctx: ctx, limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst), buf: buf}
}

func (w *rateLimitedWriter) Write(p []byte) (int, error) {
	if w.limiter == nil {
		return w.buf.Write(p)
	}
	total := len(p)
	burst := w.limiter.Burst()
	for len(p) > 0 {
		chunk := p
		if len(chunk) > burst {
			chunk = chunk[:burst]
		}
		// Ignore WaitN's error (timeout/cancel): the caller's own
		// bash_timeout_ms deadline on ctx is what should end the command,
		// not a write failure.
		_ = w.limiter.WaitN(w.ctx, len(chunk))
		if _, err := w.buf.Write(chunk); err != nil {
			return 0, err
		}
		p = p[len(chunk):]
	}
	return total, nil
}

// execResult is the raw outcome of running the resolved command, before it
// is folded into a Result by the pipeline.
type execResult struct {
	Success  bool
	Status   int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// runCommand executes the resolved shell command under bash_timeout_ms,
// capturing and truncating stdout/stderr.
func runCommand(ctx context.Context, p Policy, resolved ResolvedCommand) (execResult, error) {
	timeout := time.Duration(p.BashTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := resolved.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	var args []string
	if resolved.Sandboxed && resolved.Shell != "/bin/bash" && resolved.Shell != "bash" {
		// Shell is already a sandbox launcher binary (e.g. bwrap); the
		// template/bwrapArgs already embedded "shell -c command" in Command.
		args = strings.Fields(resolved.Command)
	} else {
		args = []string{"-c", resolved.Command}
	}

	cmd := exec.CommandContext(runCtx, shell, args...)
	cmd.Env = filteredEnv(resolved.Sandboxed)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = newRateLimitedWriter(runCtx, &stdout, p.MaxOutputBytesPerSec)
	cmd.Stderr = newRateLimitedWriter(runCtx, &stderr, p.MaxOutputBytesPerSec)

	err := cmd.Run()

	result := execResult{
		Stdout: truncateOutput(stdout.Bytes(), p.MaxCommandOutputBytes),
		Stderr: truncateOutput(stderr.Bytes(), p.MaxCommandOutputBytes),
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Success = false
		return result, nil
	}
	if err == nil {
		result.Success = true
		result.Status = 0
		return result, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.Status = exitErr.ExitCode()
		result.Success = false
		return result, nil
	}
	return result, err
}

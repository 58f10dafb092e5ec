// Package applescript runs AppleScript through osascript and provides the
// string helpers needed to build scripts and read their output.
package applescript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultPath is the osascript binary looked up on PATH.
const DefaultPath = "osascript"

// ErrScriptFailed is wrapped by every *ScriptError.
var ErrScriptFailed = errors.New("applescript execution failed")

// ScriptError reports a script that ran but exited non-zero.
type ScriptError struct {
	ExitCode int
	Stderr   string
}

func (e *ScriptError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("%s: %s", ErrScriptFailed, msg)
}

func (e *ScriptError) Unwrap() error { return ErrScriptFailed }

// Runner executes AppleScript source or compiled script files.
type Runner interface {
	// Run executes script and returns its trimmed standard output.
	Run(ctx context.Context, script string) (string, error)
	// RunFile executes the script file at path with args.
	RunFile(ctx context.Context, path string, args ...string) (string, error)
}

// OSAScript is the Runner backed by the osascript command.
type OSAScript struct {
	path string
	log  *slog.Logger
}

// Option configures an OSAScript runner.
type Option func(*OSAScript)

// WithPath overrides the osascript binary.
func WithPath(p string) Option {
	return func(o *OSAScript) {
		if p != "" {
			o.path = p
		}
	}
}

// WithLogger sets a custom logger. Scripts and their output are logged at
// debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *OSAScript) {
		if l != nil {
			o.log = l
		}
	}
}

// New returns an OSAScript runner.
func New(opts ...Option) *OSAScript {
	o := &OSAScript{path: DefaultPath, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Run feeds script to osascript on stdin.
func (o *OSAScript) Run(ctx context.Context, script string) (string, error) {
	o.log.DebugContext(ctx, "applescript.run.start", slog.String("script", strings.TrimSpace(script)))
	cmd := exec.CommandContext(ctx, o.path, "-")
	cmd.Stdin = strings.NewReader(script)
	return o.exec(ctx, cmd, "applescript.run")
}

// RunFile runs a compiled or plain-text script file with arguments.
func (o *OSAScript) RunFile(ctx context.Context, path string, args ...string) (string, error) {
	o.log.DebugContext(ctx, "applescript.run_file.start", slog.String("path", path), slog.Any("args", args))
	cmd := exec.CommandContext(ctx, o.path, append([]string{path}, args...)...)
	return o.exec(ctx, cmd, "applescript.run_file")
}

func (o *OSAScript) exec(ctx context.Context, cmd *exec.Cmd, event string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	if stderr.Len() > 0 {
		o.log.DebugContext(ctx, event+".stderr", slog.String("stderr", stderr.String()))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			serr := &ScriptError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
			o.log.DebugContext(ctx, event+".fail", slog.Int("code", serr.ExitCode), slog.Duration("dur", dur))
			return "", serr
		}
		o.log.DebugContext(ctx, event+".spawn.fail", slog.String("err", err.Error()))
		return "", fmt.Errorf("spawn %s: %w", o.path, err)
	}

	out := strings.TrimSpace(stdout.String())
	o.log.DebugContext(ctx, event+".ok", slog.String("result", out), slog.Duration("dur", dur))
	return out, nil
}

var _ Runner = (*OSAScript)(nil)

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Escape makes s safe inside an AppleScript string literal.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Quote returns s as an escaped AppleScript string literal.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

// QuoteList renders items as an AppleScript list of string literals.
func QuoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = Quote(it)
	}
	return "{" + strings.Join(quoted, ", ") + "}"
}

// ParseList splits osascript's rendering of a list ("a, b, c"). Blank
// output is an empty list.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ", ")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

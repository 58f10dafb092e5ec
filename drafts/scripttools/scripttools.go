// Package scripttools publishes a directory of AppleScript files as MCP
// tools. Each .scpt or .applescript file becomes a tool named
// script_<basename> that runs the file with the caller's arguments. The
// directory is watched and the tool set is replaced whenever it changes.
package scripttools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/drafts-mcp-go/internal/applescript"
	"github.com/ggoodman/drafts-mcp-go/mcpservice"
	"github.com/ggoodman/drafts-mcp-go/sessions"
)

// ToolPrefix is prepended to every script tool name.
const ToolPrefix = "script_"

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before rescanning.
const DefaultDebounce = 200 * time.Millisecond

var extensions = []string{".scpt", ".applescript"}

// Script is one runnable file found in the directory.
type Script struct {
	Name string
	Path string
}

// ToolName is the tool the script is published as.
func (s Script) ToolName() string { return ToolPrefix + s.Name }

// Scan lists the scripts in dir, sorted by name. Names are the file base
// name without extension, with characters outside [A-Za-z0-9_-] replaced
// by '_'. When two files map to the same name the first in directory order
// wins.
func Scan(dir string) ([]Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan scripts: %w", err)
	}
	seen := map[string]bool{}
	var out []Script
	for _, e := range entries {
		if e.IsDir() || !isScript(e.Name()) {
			continue
		}
		name := toolSafe(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Script{Name: name, Path: filepath.Join(dir, e.Name())})
	}
	slices.SortFunc(out, func(a, b Script) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func isScript(file string) bool {
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(file)))
}

func toolSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

type scriptArgs struct {
	Args []string `json:"args,omitempty" jsonschema:"description=Arguments passed to the script's run handler"`
}

// Tool returns the tool definition running s through r.
func Tool(s Script, r applescript.Runner) mcpservice.StaticTool {
	name := s.ToolName()
	return mcpservice.NewTool[scriptArgs](name, func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, req *mcpservice.ToolRequest[scriptArgs]) error {
		out, err := r.RunFile(ctx, s.Path, req.Args().Args...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.SetError(true)
			return w.AppendText(fmt.Sprintf("Error executing %s: %s", name, err))
		}
		if out == "" {
			out = "Script completed with no output"
		}
		return w.AppendText(out)
	}, mcpservice.WithToolDescription(fmt.Sprintf("Run the AppleScript %s", filepath.Base(s.Path))))
}

// Watcher keeps a ToolsContainer in sync with a script directory. The
// container always holds the base tools followed by the script tools.
type Watcher struct {
	dir      string
	run      applescript.Runner
	tools    *mcpservice.ToolsContainer
	base     []mcpservice.StaticTool
	log      *slog.Logger
	debounce time.Duration
	current  []Script
}

// Option configures a Watcher.
type Option func(*Watcher)

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher returns a watcher publishing scripts from dir into tools next
// to base.
func NewWatcher(dir string, r applescript.Runner, tools *mcpservice.ToolsContainer, base []mcpservice.StaticTool, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		run:      r,
		tools:    tools,
		base:     base,
		log:      slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Load scans the directory and replaces the container's tool set. It does
// nothing when the set of scripts is unchanged. It must not be called while
// Run is active.
func (w *Watcher) Load(ctx context.Context) error {
	scripts, err := Scan(w.dir)
	if err != nil {
		return err
	}
	if w.current != nil && slices.Equal(scripts, w.current) {
		return nil
	}
	w.current = scripts
	if w.current == nil {
		w.current = []Script{}
	}

	defs := make([]mcpservice.StaticTool, 0, len(w.base)+len(scripts))
	defs = append(defs, w.base...)
	for _, s := range scripts {
		defs = append(defs, Tool(s, w.run))
	}
	w.tools.Replace(defs...)
	w.log.InfoContext(ctx, "scripttools.load.ok", slog.String("dir", w.dir), slog.Int("scripts", len(scripts)))
	return nil
}

// Run loads the directory and then watches it until ctx is done. Scan
// failures after the initial load are logged and the previous tool set is
// kept.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if err := w.Load(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isScript(ev.Name) {
				continue
			}
			w.log.DebugContext(ctx, "scripttools.watch.event", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				timer.Reset(w.debounce)
			}
			w.log.WarnContext(ctx, "scripttools.watch.error", slog.String("err", err.Error()))
		case <-timer.C:
			if err := w.Load(ctx); err != nil {
				w.log.WarnContext(ctx, "scripttools.load.fail", slog.String("err", err.Error()))
			}
		}
	}
}

package drafts

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner answers scripts with reply and records what it was asked to run.
type fakeRunner struct {
	mu      sync.Mutex
	scripts []string
	reply   func(script string) (string, error)
}

func replyWith(out string, err error) *fakeRunner {
	return &fakeRunner{reply: func(string) (string, error) { return out, err }}
}

func (f *fakeRunner) Run(ctx context.Context, script string) (string, error) {
	f.mu.Lock()
	f.scripts = append(f.scripts, script)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply(script)
}

func (f *fakeRunner) RunFile(ctx context.Context, path string, args ...string) (string, error) {
	return f.Run(ctx, path+" "+strings.Join(args, " "))
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scripts)
}

func (f *fakeRunner) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scripts) == 0 {
		return ""
	}
	return f.scripts[len(f.scripts)-1]
}

// record renders a draft the way the generated scripts do.
func record(kv ...string) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, kv[i]+":"+kv[i+1])
	}
	return strings.Join(parts, fieldSep)
}

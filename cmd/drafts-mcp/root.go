package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/drafts-mcp-go/drafts"
	"github.com/ggoodman/drafts-mcp-go/drafts/scripttools"
	"github.com/ggoodman/drafts-mcp-go/gateway"
	"github.com/ggoodman/drafts-mcp-go/internal/applescript"
	"github.com/ggoodman/drafts-mcp-go/internal/config"
	"github.com/ggoodman/drafts-mcp-go/internal/engine"
	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/mcpservice"
	"github.com/ggoodman/drafts-mcp-go/stdio"
	"github.com/ggoodman/drafts-mcp-go/storage"
	"github.com/ggoodman/drafts-mcp-go/storage/memory"
	"github.com/ggoodman/drafts-mcp-go/storage/redis"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	serverName   = "drafts-mcp-server"
	memCacheSize = 256
)

// version is overridden at link time.
var version = "1.0.0"

const instructions = `Tools for the Drafts app on macOS. Drafts are addressed by UUID; ` +
	`use drafts_search or drafts_get_drafts to find them. Dates in filters use YYYY-MM-DD.`

// newRootCmd builds the command. Settings come from the environment and
// flags given on the command line take precedence.
func newRootCmd() *cobra.Command {
	cfg, envErr := config.Load()

	cmd := &cobra.Command{
		Use:           "drafts-mcp",
		Short:         "MCP server for the Drafts app",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport to serve: stdio or http [MCP_TRANSPORT]")
	f.StringVar(&cfg.Host, "host", cfg.Host, "HTTP listen host [MCP_HOST]")
	f.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port [MCP_PORT]")
	f.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "streaming HTTP endpoint path [MCP_ENDPOINT]")
	f.BoolVar(&cfg.JSONResponse, "json-response", cfg.JSONResponse, "answer POSTs with JSON bodies instead of event streams [MCP_JSON_RESPONSE]")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "log at debug level, scripts included [MCP_VERBOSE]")
	f.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "time allowed for HTTP shutdown [MCP_SHUTDOWN_GRACE]")
	f.StringVar(&cfg.OSAScript, "osascript", cfg.OSAScript, "osascript binary [DRAFTS_OSASCRIPT]")
	f.StringVar(&cfg.ScriptsDir, "scripts-dir", cfg.ScriptsDir, "directory of AppleScript files to publish as tools [DRAFTS_SCRIPTS_DIR]")
	f.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "lifetime of cached workspace, action and tag lists; 0 disables [DRAFTS_CACHE_TTL]")
	f.StringVar(&cfg.CacheRedisAddr, "cache-redis-addr", cfg.CacheRedisAddr, "share the cache through Redis at this address [DRAFTS_CACHE_REDIS_ADDR]")

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logctx.New(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// openStore returns the cache backend, or nil when caching is disabled.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.CacheTTL <= 0 {
		return nil, nil
	}
	if cfg.CacheRedisAddr != "" {
		s, err := redis.Dial(ctx, cfg.CacheRedisAddr)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		log.InfoContext(ctx, "cache.redis.ok", slog.String("addr", cfg.CacheRedisAddr))
		return s, nil
	}
	s, err := memory.New(memCacheSize)
	if err != nil {
		return nil, fmt.Errorf("open memory cache: %w", err)
	}
	return s, nil
}

func run(ctx context.Context, cfg config.Config, stdin io.Reader, stdout, stderr io.Writer) error {
	log := newLogger(stderr, cfg.Verbose)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	runner := applescript.New(applescript.WithPath(cfg.OSAScript), applescript.WithLogger(log))
	client := drafts.NewClient(runner, drafts.WithCache(store, cfg.CacheTTL), drafts.WithLogger(log))
	base := drafts.Tools(client)
	tools := mcpservice.NewToolsContainer(base...)

	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: version}),
		mcpservice.WithInstructions(instructions),
		mcpservice.WithToolsCapability(tools),
	)
	eng := engine.NewEngine(srv, engine.WithLogger(log))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.ScriptsDir != "" {
		w := scripttools.NewWatcher(cfg.ScriptsDir, runner, tools, base, scripttools.WithLogger(log))
		g.Go(func() error { return w.Run(gctx) })
	}

	switch cfg.Transport {
	case config.TransportStdio:
		h := stdio.NewHandler(eng, stdio.WithIO(stdin, stdout), stdio.WithLogger(log))
		g.Go(func() error {
			// EOF on stdin ends the process.
			defer cancel()
			err := h.Serve(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	case config.TransportHTTP:
		gw := gateway.New(eng,
			gateway.WithLogger(log),
			gateway.WithAddr(cfg.Addr()),
			gateway.WithStreamPath(cfg.Endpoint),
			gateway.WithJSONResponse(cfg.JSONResponse),
		)
		g.Go(gw.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			sctx, done := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer done()
			return gw.Shutdown(sctx)
		})
		log.InfoContext(ctx, "server.listen", slog.String("addr", cfg.Addr()), slog.String("endpoint", cfg.Endpoint))
	}

	err = g.Wait()
	log.InfoContext(context.Background(), "server.exit", slog.Any("err", err))
	return err
}

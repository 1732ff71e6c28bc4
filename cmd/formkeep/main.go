// Command formkeep keeps the form state of web pages across reloads.
//
// Usage:
//
//	formkeep -config formkeep.yaml                  # keep every configured page
//	formkeep -url https://chart.local/ -addr :8420  # one page, HTTP API on :8420
//	formkeep -config formkeep.yaml -mcp             # MCP tools on stdin/stdout
//	formkeep -config formkeep.yaml -mcp-quic :8421  # MCP tools over QUIC
//	formkeep -dump page.html [-dump-frame chart.html]  # print a snapshot and exit
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formkeep/formkeep"
	"github.com/hazyhaar/formkeep/mcpquic"
)

type options struct {
	configPath string
	url        string
	frameID    string
	dbPath     string
	addr       string
	mcpStdio   bool
	mcpQUIC    string
	tlsCert    string
	tlsKey     string
	termPrompt bool
	dump       string
	dumpFrame  string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to formkeep.yaml config file")
	flag.StringVar(&o.url, "url", "", "keep a single page at this URL")
	flag.StringVar(&o.frameID, "frame", "", "id of the iframe element (default periodontalchart)")
	flag.StringVar(&o.dbPath, "db", "", "path to the SQLite slot database")
	flag.StringVar(&o.addr, "addr", "", "HTTP API listen address, e.g. :8420")
	flag.BoolVar(&o.mcpStdio, "mcp", false, "serve MCP tools on stdin/stdout")
	flag.StringVar(&o.mcpQUIC, "mcp-quic", "", "serve MCP tools over QUIC on this UDP address")
	flag.StringVar(&o.tlsCert, "tls-cert", "", "certificate for -mcp-quic (self-signed when empty)")
	flag.StringVar(&o.tlsKey, "tls-key", "", "private key for -tls-cert")
	flag.BoolVar(&o.termPrompt, "terminal-prompt", false, "ask reset confirmations on the terminal instead of in the page")
	flag.StringVar(&o.dump, "dump", "", "capture the form state of an HTML file and exit")
	flag.StringVar(&o.dumpFrame, "dump-frame", "", "iframe document for -dump")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("formkeep: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	if o.dump != "" {
		return runDump(ctx, o.dump, o.dumpFrame)
	}

	if err := formkeep.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}
	if len(cfg.Pages) == 0 {
		fmt.Fprintln(os.Stderr, "usage: formkeep -config <file> | -url <url> | -dump <file.html>")
		os.Exit(2)
	}

	var opts []formkeep.Option
	if o.termPrompt {
		opts = append(opts, formkeep.WithPrompter(formkeep.NewTerminalPrompter(os.Stdin, os.Stderr)))
	}
	k, err := formkeep.New(cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer k.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if err := k.Start(gctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: k.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("formkeep: http listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var mcpSrv *mcp.Server
	if o.mcpStdio || o.mcpQUIC != "" {
		mcpSrv = mcp.NewServer(&mcp.Implementation{Name: "formkeep", Version: "1.0.0"}, nil)
		k.RegisterMCP(mcpSrv)
	}

	if o.mcpQUIC != "" {
		ln, err := listenQUIC(o, mcpSrv, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := ln.Serve(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("mcp quic: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return ln.Close()
		})
	}

	if o.mcpStdio {
		g.Go(func() error {
			// The client closing stdin ends the process.
			defer cancel()
			return mcpSrv.Run(gctx, &mcp.StdioTransport{})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func listenQUIC(o options, srv *mcp.Server, logger *slog.Logger) (*mcpquic.Listener, error) {
	var tlsCfg *tls.Config
	var err error
	if o.tlsCert != "" {
		tlsCfg, err = mcpquic.LoadTLSConfig(o.tlsCert, o.tlsKey)
	} else {
		logger.Warn("formkeep: no -tls-cert, using a self-signed certificate")
		tlsCfg, err = mcpquic.SelfSignedTLSConfig("localhost")
	}
	if err != nil {
		return nil, err
	}
	ln, err := mcpquic.Listen(o.mcpQUIC, tlsCfg, srv, logger)
	if err != nil {
		return nil, fmt.Errorf("mcp quic: %w", err)
	}
	return ln, nil
}

// resolveConfig loads the config file, or FORMKEEP_* variables alone, then
// applies command-line overrides.
func resolveConfig(o options) (*formkeep.Config, error) {
	var cfg *formkeep.Config
	var err error
	if o.configPath != "" {
		cfg, err = formkeep.LoadConfigFile(o.configPath)
	} else {
		cfg, err = formkeep.ParseConfig(nil, os.LookupEnv)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if o.url != "" {
		if len(cfg.Pages) == 0 {
			cfg.Pages = append(cfg.Pages, formkeep.PageConfig{})
		}
		cfg.Pages[0].URL = o.url
	}
	if o.frameID != "" && len(cfg.Pages) > 0 {
		cfg.Pages[0].FrameID = o.frameID
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.addr != "" {
		cfg.HTTP.Addr = o.addr
	}
	if o.mcpStdio {
		// stdout carries the MCP protocol.
		sinks := cfg.Sinks[:0]
		for _, s := range cfg.Sinks {
			if s.Type == "stdout" {
				slog.Warn("formkeep: stdout sink disabled in -mcp mode")
				continue
			}
			sinks = append(sinks, s)
		}
		cfg.Sinks = sinks
	}
	return cfg, nil
}

func runDump(ctx context.Context, mainPath, framePath string) error {
	mainHTML, err := os.ReadFile(mainPath)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	var frameHTML []byte
	if framePath != "" {
		if frameHTML, err = os.ReadFile(framePath); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}
	snap, err := formkeep.Dump(ctx, string(mainHTML), string(frameHTML))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

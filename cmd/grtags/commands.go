package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/standardbeagle/grtags/internal/indexing"
	"github.com/standardbeagle/grtags/internal/metrics"
	"github.com/standardbeagle/grtags/internal/types"

	"github.com/urfave/cli/v2"
)

// runIndex brings the index up to date and waits for every pending job.
func runIndex(ctx context.Context, s *session) (time.Duration, error) {
	start := time.Now()
	if err := s.coord.Init(ctx, s.ref); err != nil {
		return 0, fmt.Errorf("failed to initialize index: %w", err)
	}
	if err := s.coord.WaitIdle(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func progressWriter(c *cli.Context) io.Writer {
	if c.Bool("progress") {
		return c.App.Writer
	}
	return nil
}

// indexCommand indexes the project once
func indexCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	s, err := openIndexer(cfg, false, progressWriter(c))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	elapsed, err := runIndex(ctx, s)
	if err != nil {
		return err
	}
	stats := s.coord.Stats()
	fmt.Fprintf(c.App.Writer, "Indexed %s: %d files tracked, %d parsed, %d removed in %v\n",
		s.proj.Name, stats.TrackedFiles, stats.Parses, stats.Removals, elapsed.Round(time.Millisecond))
	return nil
}

// watchCommand indexes the project and follows changes until interrupted
func watchCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	s, err := openIndexer(cfg, true, progressWriter(c))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if addr := c.String("metrics-addr"); addr != "" {
		reg := metrics.NewRegistry(s.proj.Name, s.proj.DB, metrics.Sources{
			Coordinator: s.coord.Stats,
			Pool:        s.pool.Stats,
			Watcher:     s.watcher.Stats,
			Mutations:   s.proj.DB.Mutations,
		})
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "Warning: metrics server stopped: %v\n", err)
			}
		}()
		fmt.Fprintf(c.App.Writer, "Serving metrics on %s/metrics\n", addr)
	}

	elapsed, err := runIndex(ctx, s)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err == nil {
		stats := s.coord.Stats()
		fmt.Fprintf(c.App.Writer, "Indexed %d files in %v. Watching %d directories, press Ctrl+C to stop.\n",
			stats.TrackedFiles, elapsed.Round(time.Millisecond), stats.WatchedDirs)
		<-ctx.Done()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	fmt.Fprintln(c.App.Writer, "Stopped watching")
	return nil
}

// lookupHit is the JSON form of an indexing.Hit
type lookupHit struct {
	Path   string `json:"path"`
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
	Kind   string `json:"kind"`
}

// lookupCommand prints the stored locations of a token
func lookupCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("lookup requires exactly one token")
	}
	token := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	s, err := openProject(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	hits, err := indexing.Lookup(s.proj.DB, token)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	if c.Bool("definitions") {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Flag == types.FlagDefinition {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	if c.Bool("json") {
		out := make([]lookupHit, 0, len(hits))
		for _, h := range hits {
			out = append(out, lookupHit{Path: h.Path, Line: h.Line, Column: h.Column, Kind: h.Flag.String()})
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(hits) == 0 {
		fmt.Fprintf(c.App.ErrWriter, "No locations for %q\n", token)
		return nil
	}
	for _, h := range hits {
		path := h.Path
		if path == "" {
			path = fmt.Sprintf("<file %016x>", uint64(h.File))
		}
		fmt.Fprintf(c.App.Writer, "%s:%d:%d\t%s\n", path, h.Line, h.Column, h.Flag)
	}
	return nil
}

// statusCommand summarises the stored index
func statusCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	s, err := openProject(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := metrics.ComputeIndexStats(s.proj.DB, s.parser.Language)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	if c.Bool("json") {
		report := stats.FormatAsJSON()
		report["project"] = map[string]interface{}{
			"name":  s.proj.Name,
			"root":  s.proj.Root,
			"store": s.proj.DB.Path(),
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(c.App.Writer, "Project %s (%s)\nStore   %s\n\n", s.proj.Name, s.proj.Root, s.proj.DB.Path())
	fmt.Fprint(c.App.Writer, stats.FormatAsText())
	return nil
}

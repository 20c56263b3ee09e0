package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/bidfetch/internal/api"
	"github.com/kalambet/bidfetch/internal/config"
	"github.com/kalambet/bidfetch/internal/index"
	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/scrape"
	"github.com/kalambet/bidfetch/internal/storage"
	"github.com/kalambet/bidfetch/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the bidfetch server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bidfetch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bidfetch system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve the MCP tools over stdio. Scrape jobs submitted through MCP run
inside this process against the same store as the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "bidfetch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})))
}

// backend is the store plus job manager shared by the HTTP and MCP entry points.
type backend struct {
	store     *storage.Store
	jobs      *jobs.Manager
	worker    *index.Worker
	ctx       context.Context
	cancel    context.CancelFunc
	indexDone chan struct{}
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	runner := scrape.NewRunner(store, config.Load, scrape.PortalSession, slog.Default())
	ctx, cancel := context.WithCancel(ctx)
	return &backend{
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		jobs: jobs.NewManager(ctx, runner, jobs.Options{
			Capacity:      cfg.Jobs.Capacity,
			TTL:           cfg.Jobs.TTL(),
			MaxConcurrent: cfg.Jobs.MaxConcurrent,
			Logger:        slog.Default(),
		}),
		worker: index.NewWorker(store, cfg.Index.Interval()),
	}, nil
}

// startIndex runs the item index worker until the backend is closed.
func (b *backend) startIndex() {
	b.indexDone = make(chan struct{})
	go func() {
		defer close(b.indexDone)
		b.worker.Run(b.ctx)
	}()
}

// close cancels running jobs and the index worker and waits for both before
// the store goes away.
func (b *backend) close() {
	b.cancel()
	b.jobs.Wait()
	if b.indexDone != nil {
		<-b.indexDone
	}
	if err := b.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "bidfetch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice against the same data dir.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg.Server) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("bidfetch is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("bidfetch is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	b.startIndex()

	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token is empty, API requests are not authenticated")
	}
	if cfg.Portal.Username == "" {
		printWarning("No portal account configured. Run: bidfetch profile set --username <name> --password <password>")
	}

	handler := api.NewAppHandler(api.AppDeps{
		Store:   b.store,
		Jobs:    b.jobs,
		Profile: config.NewProfileStore(),
		Token:   cfg.Server.APIToken,
		Logger:  slog.Default(),
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "bidfetch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	s := api.NewMCPServer(api.MCPDeps{Store: b.store, Jobs: b.jobs})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("bidfetch is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop bidfetch (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to bidfetch (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := newClient(serverURL(cfg.Server), cfg.Server.APIToken)
	client.http.SetTimeout(2 * time.Second)

	running := client.get(ctx, "/health", nil) == nil
	if running {
		printStatus("Server", "running on %s", serverURL(cfg.Server))
	} else {
		printStatus("Server", "stopped")
	}

	if cfg.Portal.Username != "" {
		printStatus("Portal account", "%s (password %s)", cfg.Portal.Username, setLabel(cfg.Portal.Password != ""))
	} else {
		printStatus("Portal account", "not configured")
	}
	printStatus("Portal", "%s", cfg.Portal.BaseURL)

	if running {
		var orders struct {
			Total int `json:"total"`
		}
		if client.get(ctx, "/orders?limit=1", &orders) == nil {
			printStatus("Orders", "%d", orders.Total)
		}
		var items struct {
			Total int `json:"total"`
		}
		if client.get(ctx, "/items?limit=1", &items) == nil {
			printStatus("Items", "%d", items.Total)
		}
		var list []jobs.Snapshot
		if client.get(ctx, "/jobs", &list) == nil {
			active := 0
			for _, j := range list {
				if j.Status == jobs.StatusProcessing {
					active++
				}
			}
			printStatus("Jobs", "%d tracked, %d running", len(list), active)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Download dir", "%s", cfg.Scrape.DownloadDir)
	return nil
}

func setLabel(set bool) string {
	if set {
		return "set"
	}
	return "unset"
}

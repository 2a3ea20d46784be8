package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/sagelearn/sage/internal/api"
	"github.com/sagelearn/sage/internal/config"
	"github.com/sagelearn/sage/internal/engine"
	"github.com/sagelearn/sage/internal/insight"
	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/pipeline"
	"github.com/sagelearn/sage/internal/retrieval"
	"github.com/sagelearn/sage/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sage server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sage server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sage service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also expose the tool surface to MCP clients on stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sage.pid")
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

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "sage version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Refuse to double-start. The health endpoint is always open, so a
	// response means another instance owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sage is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sage is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Detect and check the inference backend.
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		GeminiAPIKey:  cfg.Engine.GeminiAPIKey,
		OllamaBaseURL: cfg.Engine.OllamaURL,
	})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Engine.ChatModel, cfg.Engine.EmbedModel, os.Stderr); err != nil {
		return err
	}
	backend := "ollama"
	if cfg.Engine.GeminiAPIKey != "" {
		backend = "gemini"
	}

	// Open the interaction archive.
	archive, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening interaction archive: %w", err)
	}
	defer func() {
		if err := archive.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing archive: %v\n", err)
		}
	}()

	// Build the answer pipeline.
	store := jobs.NewMemoryStore()
	embedder := retrieval.NewEmbedder(eng, cfg.Engine.EmbedModel)
	answerer := pipeline.NewAnswerer(eng, embedder, insight.NewRegexExtractor(), cfg.Engine.ChatModel, cfg.RAG.TopK)
	orch := pipeline.NewOrchestrator(store, answerer, archive, cfg.Jobs.Timeout)

	// Sweep finished jobs past their retention window.
	janitor := jobs.NewJanitor(store, cfg.Jobs.Retention, cfg.Jobs.SweepInterval)
	go janitor.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Orchestrator: orch,
		Jobs:         store,
		Answerer:     answerer,
		Engine:       eng,
		Embedder:     embedder,
		Archive:      archive,
		Backend:      backend,
		ChatModel:    cfg.Engine.ChatModel,
		EmbedModel:   cfg.Engine.EmbedModel,
		Token:        cfg.Server.Token,
		Version:      version,
		StartedAt:    time.Now(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Optionally expose the same orchestrator to MCP clients over stdio.
	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Orchestrator: orch,
			Jobs:         store,
			Archive:      archive,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sage listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("sage is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sage (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sage (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}

	resp, err := healthClient.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Chat model", "%s", cfg.Engine.ChatModel)
		printStatus("Embed model", "%s", cfg.Engine.EmbedModel)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	statusResp, err := client.get(ctx, "/status")
	if err != nil {
		return err
	}

	var svc struct {
		Status     string `json:"status"`
		Components struct {
			Engine struct {
				Running bool     `json:"running"`
				Backend string   `json:"backend"`
				Models  []string `json:"models"`
			} `json:"engine"`
			Embedder struct {
				Ready      bool `json:"ready"`
				Dimensions int  `json:"dimensions"`
			} `json:"embedder"`
			Jobs struct {
				Active int `json:"active"`
			} `json:"jobs"`
			Archive struct {
				Interactions int `json:"interactions"`
			} `json:"archive"`
		} `json:"components"`
		Uptime  string `json:"uptime"`
		Version string `json:"version"`
	}
	if err := decodeJSON(statusResp, &svc); err != nil {
		return err
	}

	printStatus("Health", "%s", svc.Status)
	engineState := "not running"
	if svc.Components.Engine.Running {
		engineState = "running"
	}
	printStatus("Engine", "%s (%s)", svc.Components.Engine.Backend, engineState)
	printStatus("Models", "%s", strings.Join(svc.Components.Engine.Models, ", "))
	if svc.Components.Embedder.Ready {
		printStatus("Embedder", "ready (%d dimensions)", svc.Components.Embedder.Dimensions)
	} else {
		printStatus("Embedder", "not yet warmed up")
	}
	printStatus("Active requests", "%d", svc.Components.Jobs.Active)
	printStatus("Archived answers", "%d", svc.Components.Archive.Interactions)
	printStatus("Uptime", "%s", svc.Uptime)
	printStatus("Version", "%s", svc.Version)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

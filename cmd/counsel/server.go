package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

	"github.com/counselai/counsel/internal/agent"
	"github.com/counselai/counsel/internal/api"
	"github.com/counselai/counsel/internal/config"
	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/ingest"
	"github.com/counselai/counsel/internal/llm"
	"github.com/counselai/counsel/internal/retrieval"
	"github.com/counselai/counsel/internal/session"
	"github.com/counselai/counsel/internal/storage"
	"github.com/counselai/counsel/internal/team"
	"github.com/counselai/counsel/internal/vectorstore"
	"github.com/counselai/counsel/internal/vectorstore/memory"
	"github.com/counselai/counsel/internal/vectorstore/qdrant"
	"github.com/counselai/counsel/internal/websearch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the counsel server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running counsel server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counsel system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "counsel.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "counsel version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Bearer token for the management API. Without a pinned token we mint an
	// ephemeral one and print it once so the CLI can be pointed at it.
	apiToken := cfg.Server.APIToken
	if apiToken == "" {
		apiToken, err = generateToken()
		if err != nil {
			return fmt.Errorf("generating API token: %w", err)
		}
		printWarning("no COUNSEL_API_TOKEN set; using ephemeral token for this run:")
		fmt.Fprintf(os.Stderr, "  export COUNSEL_API_TOKEN=%s\n", apiToken)
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("counsel is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("counsel is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open analysis history storage.
	history, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Sessions wire per-user credentials into a full analysis pipeline.
	sessions := session.NewManager(sessionBuilder(cfg), slog.Default())

	handler := api.NewHandler(api.Deps{
		Sessions: sessions,
		History:  history,
		Token:    apiToken,
		Logger:   slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Sessions: sessions,
		History:  history,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "counsel listening on %s\n", addr)
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

// sessionBuilder returns the Builder that turns session credentials into a
// validated analysis pipeline. The LLM key is pinged and the vector
// collection ensured before the session is accepted.
func sessionBuilder(cfg config.Config) session.Builder {
	return func(ctx context.Context, creds session.Credentials) (*session.Components, error) {
		logger := slog.Default()

		client, err := llm.New(llm.Config{
			APIKey:     creds.OpenAIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			ChatModel:  cfg.OpenAI.ChatModel,
			EmbedModel: cfg.OpenAI.EmbedModel,
		})
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}

		metric, err := vectorstore.ParseMetric(cfg.Qdrant.Metric)
		if err != nil {
			return nil, fault.Wrap(fault.KindConfiguration, "server.session", err)
		}

		var store vectorstore.Store
		switch cfg.Vector.Backend {
		case "memory":
			store = memory.New()
		default:
			qdrantURL := creds.QdrantURL
			if qdrantURL == "" {
				qdrantURL = cfg.Qdrant.URL
			}
			qs, err := qdrant.New(qdrant.Config{
				URL:        qdrantURL,
				APIKey:     creds.QdrantKey,
				Collection: cfg.Qdrant.Collection,
			})
			if err != nil {
				return nil, err
			}
			store = qs
		}
		if err := store.EnsureCollection(ctx, client.Dimensions(), metric); err != nil {
			return nil, err
		}

		chunker := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
		pipe := ingest.NewPipeline(chunker, client, store, logger)
		retriever := retrieval.New(client, store, client.Dimensions(), cfg.Retrieval.TopK, logger)

		// Only the researcher role reaches out to the web.
		searcher := websearch.New()
		runners := []team.Runner{
			agent.New(agent.RoleResearcher, client, searcher, logger),
			agent.New(agent.RoleAnalyst, client, nil, logger),
			agent.New(agent.RoleStrategist, client, nil, logger),
		}
		coordinator := team.New(retriever, runners, client, logger)

		return &session.Components{
			LLM:       client,
			Store:     store,
			Pipeline:  pipe,
			Retriever: retriever,
			Team:      coordinator,
		}, nil
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
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
		printError("counsel is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop counsel (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to counsel (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the vector backend.
	if cfg.Vector.Backend == "memory" {
		printStatus("Vectors", "in-memory backend")
	} else {
		qdrantResp, err := client.Get(cfg.Qdrant.URL + "/collections")
		if err != nil {
			printStatus("Qdrant", "not reachable at %s", cfg.Qdrant.URL)
		} else {
			qdrantResp.Body.Close()
			printStatus("Qdrant", "running at %s", cfg.Qdrant.URL)
		}
	}

	// Show models.
	printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)

	// Show session and history counts if server is running.
	if cfg.Server.APIToken != "" && resp != nil && resp.StatusCode == 200 {
		ctx := context.Background()
		mgmt := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: client}

		if sessResp, err := mgmt.get(ctx, "/sessions"); err == nil {
			var sessions []struct {
				ID string `json:"id"`
			}
			if decodeJSON(sessResp, &sessions) == nil {
				printStatus("Sessions", "%d open", len(sessions))
			}
		}
		if docsResp, err := mgmt.get(ctx, "/documents?limit=100"); err == nil {
			var docs []struct {
				ID string `json:"id"`
			}
			if decodeJSON(docsResp, &docs) == nil {
				printStatus("Documents", "%s", countLabel(len(docs), 100))
			}
		}
		if anResp, err := mgmt.get(ctx, "/analyses?limit=100"); err == nil {
			var analyses []struct {
				ID string `json:"id"`
			}
			if decodeJSON(anResp, &analyses) == nil {
				printStatus("Analyses", "%s", countLabel(len(analyses), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

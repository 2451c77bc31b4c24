package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/counselai/counsel/internal/config"
	"github.com/counselai/counsel/internal/team"
)

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage analysis sessions",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a session with your API credentials",
	Long: `Open a session with your API credentials.

The OpenAI key comes from --openai-key or the OPENAI_API_KEY environment
variable. Credentials are validated before the session is created and are
never stored on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		openaiKey, _ := cmd.Flags().GetString("openai-key")
		qdrantURL, _ := cmd.Flags().GetString("qdrant-url")
		qdrantKey, _ := cmd.Flags().GetString("qdrant-key")

		if openaiKey == "" {
			openaiKey = os.Getenv("OPENAI_API_KEY")
		}
		if openaiKey == "" {
			return fmt.Errorf("an OpenAI API key is required (--openai-key or OPENAI_API_KEY)")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]string{
			"openai_api_key": openaiKey,
			"qdrant_url":     qdrantURL,
			"qdrant_api_key": qdrantKey,
		}
		resp, err := client.post(cmd.Context(), "/sessions", req)
		if err != nil {
			return err
		}

		var result struct {
			ID  string `json:"id"`
			Key string `json:"key"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s opened (key %s)", result.ID, result.Key)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions")
		if err != nil {
			return err
		}

		var sessions []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Key       string `json:"key"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No open sessions.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %s  key %s\n", colorize(colorCyan, s.ID), s.CreatedAt, s.Key)
		}
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s closed", args[0])
		return nil
	},
}

func init() {
	sessionOpenCmd.Flags().String("openai-key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")
	sessionOpenCmd.Flags().String("qdrant-url", "", "Qdrant URL (defaults to the server's configured backend)")
	sessionOpenCmd.Flags().String("qdrant-key", "", "Qdrant API key")
	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <session-id>",
	Short: "Ingest a PDF document into the knowledge base",
	Long: `Ingest a PDF document into the knowledge base.

The document is chunked, embedded, and indexed for retrieval. Re-ingesting
a file with the same name replaces its previous chunks.

Example:
  counsel ingest 3f2a... --file ./lease-agreement.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s...", file)
		resp, err := client.postFile(cmd.Context(), "/sessions/"+args[0]+"/documents", file)
		if err != nil {
			return err
		}

		var result struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Chunks int    `json:"chunks"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %s as %d chunks (doc %s)", result.Name, result.Chunks, result.ID)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "path to the PDF file to ingest")
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <session-id>",
	Short: "Run a team analysis over the ingested documents",
	Long: fmt.Sprintf(`Run a team analysis over the ingested documents.

Modes: %s

The custom mode requires --query; the other modes have built-in queries
and --query is ignored.`, strings.Join(team.Modes(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		query, _ := cmd.Flags().GetString("query")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Running %s analysis...", mode)
		req := map[string]string{"mode": mode, "query": query}
		resp, err := client.post(cmd.Context(), "/sessions/"+args[0]+"/analyses", req)
		if err != nil {
			return err
		}

		var result struct {
			ID              string `json:"id"`
			Analysis        string `json:"analysis"`
			KeyPoints       string `json:"key_points"`
			Recommendations string `json:"recommendations"`
			Status          string `json:"status"`
			Error           string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printAnalysis(result.Analysis, result.KeyPoints, result.Recommendations)

		if result.Status == "partial" {
			printWarning("Analysis %s is partial: %s", result.ID, result.Error)
			return nil
		}
		printSuccess("Analysis %s completed", result.ID)
		return nil
	},
}

func printAnalysis(analysis, keyPoints, recommendations string) {
	fmt.Printf("\n%s\n\n%s\n", colorize(colorBold, "Detailed Analysis"), analysis)
	if keyPoints != "" {
		fmt.Printf("\n%s\n\n%s\n", colorize(colorBold, "Key Points"), keyPoints)
	}
	if recommendations != "" {
		fmt.Printf("\n%s\n\n%s\n", colorize(colorBold, "Recommendations"), recommendations)
	}
}

func init() {
	analyzeCmd.Flags().String("mode", string(team.ModeContractReview), "analysis mode")
	analyzeCmd.Flags().String("query", "", "question for the custom mode")
}

// shortID truncates an ID for list display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var docs []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Chunks int    `json:"chunks"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents ingested.")
			return nil
		}

		for _, d := range docs {
			fmt.Printf("%s  %s (%d chunks)\n", colorize(colorCyan, shortID(d.ID)), d.Name, d.Chunks)
		}
		return nil
	},
}

func init() {
	documentsCmd.Flags().Int("limit", 20, "maximum number of documents to list")
}

// --- analyses ---

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Browse past analyses",
}

var analysesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/analyses?limit=%d", limit))
		if err != nil {
			return err
		}

		var analyses []struct {
			ID        string `json:"id"`
			Mode      string `json:"mode"`
			Query     string `json:"query"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &analyses); err != nil {
			return err
		}

		if len(analyses) == 0 {
			fmt.Println("No analyses found.")
			return nil
		}

		for _, a := range analyses {
			query := a.Query
			if len(query) > 60 {
				query = query[:60] + "..."
			}
			fmt.Printf("%s  %s  %-18s %-10s %s\n",
				colorize(colorCyan, shortID(a.ID)), a.CreatedAt, a.Mode, a.Status, query)
		}
		return nil
	},
}

var analysesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/analyses/"+args[0])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(raw)
		}

		var a struct {
			Mode            string `json:"mode"`
			Query           string `json:"query"`
			Analysis        string `json:"analysis"`
			KeyPoints       string `json:"key_points"`
			Recommendations string `json:"recommendations"`
			Status          string `json:"status"`
			CreatedAt       string `json:"created_at"`
		}
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		printStatus("Mode", "%s", a.Mode)
		printStatus("Query", "%s", a.Query)
		printStatus("Status", "%s", a.Status)
		printStatus("Created", "%s", a.CreatedAt)
		printAnalysis(a.Analysis, a.KeyPoints, a.Recommendations)
		return nil
	},
}

func init() {
	analysesListCmd.Flags().Int("limit", 20, "maximum number of analyses to list")
	analysesShowCmd.Flags().Bool("json", false, "print the raw JSON record")
	analysesCmd.AddCommand(analysesListCmd)
	analysesCmd.AddCommand(analysesShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}

		fmt.Printf("\nSecrets are read from the environment only:\n")
		for _, env := range config.ValidSecretEnvs() {
			fmt.Printf("  %s\n", env)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagelearn/sage/internal/config"
	"github.com/sagelearn/sage/internal/extract"
)

// --- ask ---

// The server keeps working past this limit; the command just stops waiting.
const (
	pollAttempts = 300
	pollInterval = time.Second
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against your study material",
	Long: `Ask a question against your study material.

The material comes from --context (inline text) or --file (plain text, HTML,
or PDF). The question is submitted to the running sage server, polled until
the answer is ready, and printed with its citations and themes.

Examples:
  sage ask "What is gradient descent?" --file ./lecture-notes.pdf
  sage ask "Define overfitting" --context "Overfitting happens when..." --concepts regularization,bias`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		material, _ := cmd.Flags().GetString("context")
		file, _ := cmd.Flags().GetString("file")
		conceptsStr, _ := cmd.Flags().GetString("concepts")

		if material == "" && file == "" {
			return fmt.Errorf("one of --context or --file is required")
		}
		if material == "" {
			text, err := extract.FromFile(file)
			if err != nil {
				return fmt.Errorf("loading %s: %w", file, err)
			}
			material = text
		}

		var concepts []string
		if conceptsStr != "" {
			concepts = strings.Split(conceptsStr, ",")
			for i := range concepts {
				concepts[i] = strings.TrimSpace(concepts[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"question": question,
			"context":  material,
		}
		if concepts != nil {
			req["weakConcepts"] = concepts
		}

		ctx := cmd.Context()
		resp, err := client.post(ctx, "/ask", req)
		if err != nil {
			return err
		}

		var submitted struct {
			RequestID string `json:"requestId"`
		}
		if err := decodeJSON(resp, &submitted); err != nil {
			return err
		}

		printStep("Request %s accepted, waiting for the answer...", submitted.RequestID)

		result, err := waitForResult(ctx, client, submitted.RequestID, pollAttempts, pollInterval)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func init() {
	askCmd.Flags().String("context", "", "study material as inline text")
	askCmd.Flags().String("file", "", "study material file (.pdf, .html, or plain text)")
	askCmd.Flags().String("concepts", "", "comma-separated concepts to reinforce")
}

type askResult struct {
	Answer         string   `json:"answer"`
	Citations      []string `json:"citations"`
	Themes         string   `json:"themes"`
	ProcessingTime int64    `json:"processingTime"`
}

// waitForResult polls the status endpoint once per interval until the request
// reaches a terminal state, then fetches the result. A request still
// processing after the last attempt is a client-side timeout; the distinction
// from a failed request matters because the server may still finish it.
func waitForResult(ctx context.Context, client *apiClient, id string, attempts int, interval time.Duration) (*askResult, error) {
	for i := 0; i < attempts; i++ {
		resp, err := client.get(ctx, "/status/"+id)
		if err != nil {
			return nil, err
		}
		var status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := decodeJSON(resp, &status); err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			resultResp, err := client.get(ctx, "/result/"+id)
			if err != nil {
				return nil, err
			}
			var result askResult
			if err := decodeJSON(resultResp, &result); err != nil {
				return nil, err
			}
			return &result, nil
		case "failed":
			return nil, fmt.Errorf("request failed: %s", status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("request %s still processing after %s, giving up", id, time.Duration(attempts)*interval)
}

func printResult(r *askResult) {
	fmt.Println()
	fmt.Println(colorize(colorBold, "Answer"))
	fmt.Println(r.Answer)
	if len(r.Citations) > 0 {
		fmt.Println()
		fmt.Println(colorize(colorBold, "Citations"))
		for i, c := range r.Citations {
			fmt.Printf("  [%d] %s\n", i+1, c)
		}
	}
	if r.Themes != "" {
		fmt.Println()
		fmt.Printf("%s %s\n", colorize(colorBold, "Themes:"), r.Themes)
	}
	fmt.Println()
	printSuccess("Answered in %s", time.Duration(r.ProcessingTime)*time.Millisecond)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show archived answers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if len(args) == 1 {
			resp, err := client.get(ctx, "/history/"+args[0])
			if err != nil {
				return err
			}
			var item struct {
				Interaction any `json:"interaction"`
			}
			if err := decodeJSON(resp, &item); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(item.Interaction)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		resp, err := client.get(ctx, fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var list struct {
			Interactions []struct {
				ID        string `json:"id"`
				CreatedAt string `json:"createdAt"`
				Question  string `json:"question"`
				Status    string `json:"status"`
			} `json:"interactions"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list.Interactions) == 0 {
			fmt.Println("No archived answers yet.")
			return nil
		}
		for _, in := range list.Interactions {
			fmt.Printf("%s  %s  %-9s  %s\n",
				colorize(colorCyan, shortID(in.ID)),
				in.CreatedAt,
				in.Status,
				truncate(in.Question, 80),
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of answers to list")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

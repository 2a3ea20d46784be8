package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sagelearn/sage/internal/engine"
	"github.com/sagelearn/sage/internal/insight"
	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/pipeline"
	"github.com/sagelearn/sage/internal/retrieval"
	"github.com/sagelearn/sage/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, eng engine.Engine) (MCPDeps, *jobs.MemoryStore, *storage.Store) {
	t.Helper()
	archive, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { archive.Close() })

	store := jobs.NewMemoryStore()
	embedder := retrieval.NewEmbedder(eng, "test-embed")
	answerer := pipeline.NewAnswerer(eng, embedder, insight.NewRegexExtractor(), "test-chat", 5)
	orch := pipeline.NewOrchestrator(store, answerer, archive, time.Minute)

	return MCPDeps{
		Orchestrator: orch,
		Jobs:         store,
		Archive:      archive,
	}, store, archive
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func askViaTool(t *testing.T, deps MCPDeps) string {
	t.Helper()
	handler := mcpAskQuestion(deps)
	req := makeCallToolRequest("ask_question", map[string]interface{}{
		"question": "What is machine learning?",
		"context":  "Machine learning is a subset of artificial intelligence.",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("response missing requestId")
	}
	return resp.RequestID
}

// --- tests ---

func TestMCPTool_AskQuestion(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t, &mockEngine{})
	handler := mcpAskQuestion(deps)

	req := makeCallToolRequest("ask_question", map[string]interface{}{
		"question":      "What is machine learning?",
		"context":       "Machine learning is a subset of artificial intelligence.",
		"weak_concepts": []string{"algorithms"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp struct {
		RequestID string `json:"requestId"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("response missing requestId")
	}
	if resp.Status != "processing" {
		t.Errorf("status = %q, want %q", resp.Status, "processing")
	}

	if _, err := store.Get(resp.RequestID); err != nil {
		t.Fatalf("Get(%q) failed: %v", resp.RequestID, err)
	}
	waitTerminal(t, store, resp.RequestID)
}

func TestMCPTool_AskQuestion_MissingQuestion(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t, &mockEngine{})
	handler := mcpAskQuestion(deps)

	req := makeCallToolRequest("ask_question", map[string]interface{}{
		"context": "some notes",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when question is missing")
	}
}

func TestMCPTool_AskQuestion_MissingContext(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t, &mockEngine{})
	handler := mcpAskQuestion(deps)

	req := makeCallToolRequest("ask_question", map[string]interface{}{
		"question": "What is ML?",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when context is missing")
	}
}

func TestMCPTool_CheckStatus_Unknown(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t, &mockEngine{})
	handler := mcpCheckStatus(deps)

	req := makeCallToolRequest("check_status", map[string]interface{}{
		"request_id": "nonexistent",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown request id")
	}
	if text := toolText(t, result); text != "unknown request id" {
		t.Errorf("error text = %q, want %q", text, "unknown request id")
	}
}

func TestMCPTool_CheckStatus_Completed(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t, &mockEngine{})

	id := askViaTool(t, deps)
	waitTerminal(t, store, id)

	handler := mcpCheckStatus(deps)
	req := makeCallToolRequest("check_status", map[string]interface{}{
		"request_id": id,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("status = %q, want %q", resp.Status, "completed")
	}
	if resp.Progress != 100 {
		t.Errorf("progress = %d, want 100", resp.Progress)
	}
}

func TestMCPTool_FetchResult_NotReady(t *testing.T) {
	gate := make(chan struct{})
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			<-gate
			return "done", nil
		},
	}
	deps, store, _ := newTestMCPDeps(t, eng)

	id := askViaTool(t, deps)

	handler := mcpFetchResult(deps)
	req := makeCallToolRequest("fetch_result", map[string]interface{}{
		"request_id": id,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp struct {
		Ready  bool   `json:"ready"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Ready {
		t.Error("ready = true for a job that is still processing")
	}
	if resp.Status != "processing" {
		t.Errorf("status = %q, want %q", resp.Status, "processing")
	}

	close(gate)
	waitTerminal(t, store, id)
}

func TestMCPTool_FetchResult_Completed(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t, &mockEngine{})

	id := askViaTool(t, deps)
	waitTerminal(t, store, id)

	handler := mcpFetchResult(deps)
	req := makeCallToolRequest("fetch_result", map[string]interface{}{
		"request_id": id,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp struct {
		Ready     bool     `json:"ready"`
		Answer    string   `json:"answer"`
		Citations []string `json:"citations"`
		Themes    string   `json:"themes"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Ready {
		t.Error("ready = false for a completed job")
	}
	if resp.Answer == "" {
		t.Error("response missing answer")
	}
	if resp.Citations == nil {
		t.Error("citations = nil, want a JSON array")
	}
}

func TestMCPTool_FetchResult_Failed(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			return "", errors.New("model exploded")
		},
	}
	deps, store, _ := newTestMCPDeps(t, eng)

	id := askViaTool(t, deps)
	waitTerminal(t, store, id)

	handler := mcpFetchResult(deps)
	req := makeCallToolRequest("fetch_result", map[string]interface{}{
		"request_id": id,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Ready  bool   `json:"ready"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Ready {
		t.Error("ready = true for a failed job")
	}
	if resp.Status != "failed" {
		t.Errorf("status = %q, want %q", resp.Status, "failed")
	}
	if resp.Error == "" {
		t.Error("failed result missing error message")
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, _, archive := newTestMCPDeps(t, &mockEngine{})

	err := archive.SaveInteraction(storage.Interaction{
		ID:        "int-1",
		CreatedAt: time.Now().UTC(),
		Question:  "What is Go?",
		Status:    "completed",
	})
	if err != nil {
		t.Fatalf("SaveInteraction failed: %v", err)
	}

	handler := mcpResourceRecent(deps)
	req := makeReadResourceRequest("sage://recent")

	contents, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(summaries))
	}
}

func TestMCPServer_ConcurrentAsks(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t, &mockEngine{})
	handler := mcpAskQuestion(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	ids := make(chan string, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("ask_question", map[string]interface{}{
				"question": "What is machine learning?",
				"context":  "Machine learning is a subset of artificial intelligence.",
			})
			result, err := handler(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			tc, ok := result.Content[0].(mcp.TextContent)
			if !ok {
				errs <- fmt.Errorf("expected TextContent, got %T", result.Content[0])
				return
			}
			var resp struct {
				RequestID string `json:"requestId"`
			}
			if err := json.Unmarshal([]byte(tc.Text), &resp); err != nil {
				errs <- err
				return
			}
			ids <- resp.RequestID
		}()
	}

	wg.Wait()
	close(errs)
	close(ids)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}

	if _, total := store.Counts(); total != 5 {
		t.Errorf("store has %d jobs, want 5", total)
	}
	for id := range ids {
		waitTerminal(t, store, id)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/pipeline"
)

// MCPDeps holds dependencies for the MCP tool surface. Tools drive the same
// orchestrator and job store as the HTTP API.
type MCPDeps struct {
	Orchestrator *pipeline.Orchestrator
	Jobs         jobs.Store
	Archive      HistoryStore // optional; the recent-answers resource needs it
}

// NewMCPServer creates an MCP server exposing the ask/poll/fetch tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sage",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sage — retrieval-augmented study assistant: submit a question with study material, poll until processed, then fetch the answer."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Submit a question about study material. Returns a request id to poll with check_status."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("context", mcp.Description("Study material to ground the answer in"), mcp.Required()),
			mcp.WithArray("weak_concepts", mcp.Description("Concepts the student struggles with")),
		),
		mcpAskQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("check_status",
			mcp.WithDescription("Check the processing status of a submitted question."),
			mcp.WithString("request_id", mcp.Description("Identifier returned by ask_question"), mcp.Required()),
		),
		mcpCheckStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("fetch_result",
			mcp.WithDescription("Fetch the answer, citations, and themes for a completed question."),
			mcp.WithString("request_id", mcp.Description("Identifier returned by ask_question"), mcp.Required()),
		),
		mcpFetchResult(deps),
	)

	if deps.Archive != nil {
		s.AddResource(
			mcp.NewResource(
				"sage://recent",
				"Recent Answers",
				mcp.WithResourceDescription("Last 10 archived question/answer runs (summaries only)"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpAskQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		corpus, err := req.RequireString("context")
		if err != nil {
			return mcpError("context is required"), nil
		}
		weak := req.GetStringSlice("weak_concepts", nil)

		job := deps.Orchestrator.Submit(pipeline.Request{
			Question:     question,
			Context:      corpus,
			WeakConcepts: weak,
		})

		b, err := json.Marshal(map[string]string{
			"requestId": job.ID,
			"status":    string(job.Status),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCheckStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("request_id")
		if err != nil {
			return mcpError("request_id is required"), nil
		}

		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError("unknown request id"), nil
		}

		resp := map[string]any{
			"status":   job.Status,
			"progress": job.Progress,
			"message":  job.Message,
		}
		if job.Error != "" {
			resp["error"] = job.Error
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFetchResult(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("request_id")
		if err != nil {
			return mcpError("request_id is required"), nil
		}

		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError("unknown request id"), nil
		}

		if job.Status != jobs.StatusCompleted {
			resp := map[string]any{
				"ready":  false,
				"status": job.Status,
			}
			if job.Error != "" {
				resp["error"] = job.Error
			}
			b, err := json.Marshal(resp)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
			}
			return mcpText(string(b)), nil
		}

		citations := job.Result.Citations
		if citations == nil {
			citations = []string{}
		}
		b, err := json.Marshal(map[string]any{
			"ready":          true,
			"answer":         job.Result.Answer,
			"citations":      citations,
			"themes":         job.Result.Themes,
			"processingTime": job.Result.ProcessingTimeMs,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Archive.RecentInteractions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			Status    string `json:"status"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, in := range interactions {
			question := in.Question
			if utf8.RuneCountInString(question) > 200 {
				runes := []rune(question)
				question = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        in.ID,
				CreatedAt: in.CreatedAt.Format(time.RFC3339),
				Question:  question,
				Status:    in.Status,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

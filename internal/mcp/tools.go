package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"aeval/internal/domain"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("aeval_classify",
			mcplib.WithDescription("Classify a free-text evaluation request into an intent label"),
			mcplib.WithString("text", mcplib.Description("What the user wants to evaluate"), mcplib.Required()),
		),
		s.handleClassify,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("aeval_recommend",
			mcplib.WithDescription("Recommend a dataset, metrics, agent and scenario for an intent or a free-text request"),
			mcplib.WithString("intent", mcplib.Description("Intent label"),
				mcplib.Enum("rag_safety", "rag_accuracy", "code_eval", "general_chat", "unknown")),
			mcplib.WithString("text", mcplib.Description("Free-text request, classified when intent is omitted")),
		),
		s.handleRecommend,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("aeval_compatibility",
			mcplib.WithDescription("Rank catalog metrics and scenarios against a dataset, compatible ones first"),
			mcplib.WithString("dataset_id", mcplib.Description("Dataset id, e.g. ds-001"), mcplib.Required()),
		),
		s.handleCompatibility,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("aeval_search_datasets",
			mcplib.WithDescription("Search catalog datasets by name, description or tag"),
			mcplib.WithString("query", mcplib.Description("Case-insensitive search text; empty lists all")),
		),
		s.handleSearchDatasets,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("aeval_search_metrics",
			mcplib.WithDescription("Search catalog metrics by name, description or category"),
			mcplib.WithString("query", mcplib.Description("Case-insensitive search text; empty lists all")),
		),
		s.handleSearchMetrics,
	)
}

func (s *Server) handleClassify(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return errorResult("text is required"), nil
	}
	return jsonResult(map[string]any{"intent": s.engine.Classify(ctx, text)}), nil
}

func (s *Server) handleRecommend(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var label domain.Intent
	if raw := request.GetString("intent", ""); strings.TrimSpace(raw) != "" {
		parsed, ok := domain.ParseIntent(raw)
		if !ok {
			return errorResult(fmt.Sprintf("unknown intent %q", raw)), nil
		}
		label = parsed
	} else if text := request.GetString("text", ""); strings.TrimSpace(text) != "" {
		label = s.engine.Classify(ctx, text)
	} else {
		return errorResult("intent or text is required"), nil
	}
	rec, _ := s.engine.Recommend.Recommend(label)
	return jsonResult(map[string]any{
		"intent":         label,
		"recommendation": rec,
	}), nil
}

func (s *Server) handleCompatibility(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("dataset_id", "")
	if id == "" {
		return errorResult("dataset_id is required"), nil
	}
	c, err := s.engine.Compatibility(id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(c), nil
}

func (s *Server) handleSearchDatasets(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	items := s.engine.Store.SearchDatasets(request.GetString("query", ""))
	return jsonResult(map[string]any{"datasets": items, "total": len(items)}), nil
}

func (s *Server) handleSearchMetrics(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	items := s.engine.Store.SearchMetrics(request.GetString("query", ""))
	return jsonResult(map[string]any{"metrics": items, "total": len(items)}), nil
}

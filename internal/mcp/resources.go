package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"aeval://catalog/datasets",
			"Datasets",
			mcplib.WithResourceDescription("Every dataset in the catalog"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDatasets,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"aeval://catalog/scenarios",
			"Scenarios",
			mcplib.WithResourceDescription("Evaluation scenarios with their recommended metrics"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleScenarios,
	)

	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"aeval://datasets/{id}/compatibility",
			"Dataset Compatibility",
			mcplib.WithTemplateDescription("Metrics and scenarios ranked against one dataset"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleDatasetCompatibility,
	)
}

func (s *Server) handleDatasets(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return textResource(request.Params.URI, s.engine.Store.Datasets())
}

func (s *Server) handleScenarios(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return textResource(request.Params.URI, s.engine.Store.Scenarios())
}

func (s *Server) handleDatasetCompatibility(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	id := datasetIDFromURI(request.Params.URI)
	if id == "" {
		return nil, fmt.Errorf("mcp: invalid uri %q", request.Params.URI)
	}
	c, err := s.engine.Compatibility(id)
	if err != nil {
		return nil, fmt.Errorf("mcp: compatibility: %w", err)
	}
	return textResource(request.Params.URI, c)
}

// datasetIDFromURI extracts {id} from aeval://datasets/{id}/compatibility.
func datasetIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "aeval://datasets/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/compatibility")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func textResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

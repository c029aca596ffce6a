package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"aeval/internal/domain"
	"aeval/internal/engine"
	"aeval/internal/fixtures"
	"aeval/internal/metadata"
)

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-datasets",
		Method:      http.MethodGet,
		Path:        "/datasets",
		Summary:     "List catalog datasets",
	}, func(ctx context.Context, input *struct {
		Q string `query:"q" doc:"Case-insensitive match on name, description or tags"`
	}) (*struct {
		Body DatasetList `json:"body"`
	}, error) {
		items := e.Store.SearchDatasets(input.Q)
		if items == nil {
			items = []domain.Dataset{}
		}
		return &struct {
			Body DatasetList `json:"body"`
		}{Body: DatasetList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dataset",
		Method:      http.MethodGet,
		Path:        "/datasets/{dataset_id}",
		Summary:     "Get dataset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DatasetID string `path:"dataset_id"`
	}) (*struct {
		Body domain.Dataset `json:"body"`
	}, error) {
		ds, ok := e.Store.Dataset(input.DatasetID)
		if !ok {
			return nil, handleError(fmt.Errorf("dataset %s: %w", input.DatasetID, fixtures.ErrNotFound))
		}
		return &struct {
			Body domain.Dataset `json:"body"`
		}{Body: ds}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-metrics",
		Method:      http.MethodGet,
		Path:        "/metrics",
		Summary:     "List catalog metrics",
	}, func(ctx context.Context, input *struct {
		Q       string `query:"q" doc:"Case-insensitive match on name, description or category"`
		Grouped bool   `query:"grouped" doc:"Also bucket the result by category"`
	}) (*struct {
		Body MetricList `json:"body"`
	}, error) {
		items := e.Store.SearchMetrics(input.Q)
		if items == nil {
			items = []domain.Metric{}
		}
		resp := MetricList{Items: items}
		if input.Grouped {
			resp.Groups = fixtures.GroupMetrics(items)
		}
		return &struct {
			Body MetricList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-metric",
		Method:      http.MethodGet,
		Path:        "/metrics/{metric_id}",
		Summary:     "Get metric",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MetricID string `path:"metric_id"`
	}) (*struct {
		Body domain.Metric `json:"body"`
	}, error) {
		m, ok := e.Store.Metric(input.MetricID)
		if !ok {
			return nil, handleError(fmt.Errorf("metric %s: %w", input.MetricID, fixtures.ErrNotFound))
		}
		return &struct {
			Body domain.Metric `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-scenarios",
		Method:      http.MethodGet,
		Path:        "/scenarios",
		Summary:     "List evaluation scenarios",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ScenarioList `json:"body"`
	}, error) {
		return &struct {
			Body ScenarioList `json:"body"`
		}{Body: ScenarioList{Items: e.Store.Scenarios()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AgentList `json:"body"`
	}, error) {
		return &struct {
			Body AgentList `json:"body"`
		}{Body: AgentList{Items: e.Store.Agents()}}, nil
	})
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "classify",
		Method:      http.MethodPost,
		Path:        "/classify",
		Summary:     "Classify a request into an intent",
	}, func(ctx context.Context, input *struct {
		Body ClassifyRequest `json:"body"`
	}) (*struct {
		Body ClassifyResponse `json:"body"`
	}, error) {
		return &struct {
			Body ClassifyResponse `json:"body"`
		}{Body: ClassifyResponse{Intent: e.Classify(ctx, input.Body.Text)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recommend",
		Method:      http.MethodPost,
		Path:        "/recommend",
		Summary:     "Recommend an evaluation configuration",
		Description: "Takes an intent label, or free text which is classified first. The recommendation is null when none applies.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecommendRequest `json:"body"`
	}) (*struct {
		Body RecommendResponse `json:"body"`
	}, error) {
		var label domain.Intent
		switch {
		case strings.TrimSpace(input.Body.Intent) != "":
			parsed, ok := domain.ParseIntent(input.Body.Intent)
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown intent", map[string]any{"intent": input.Body.Intent})
			}
			label = parsed
		case strings.TrimSpace(input.Body.Text) != "":
			label = e.Classify(ctx, input.Body.Text)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "intent or text is required", nil)
		}
		rec, _ := e.Recommend.Recommend(label)
		return &struct {
			Body RecommendResponse `json:"body"`
		}{Body: RecommendResponse{Intent: label, Recommendation: rec}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dataset-compatibility",
		Method:      http.MethodGet,
		Path:        "/datasets/{dataset_id}/compatibility",
		Summary:     "Rank metrics and scenarios against a dataset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DatasetID string `path:"dataset_id"`
	}) (*struct {
		Body CompatibilityResponse `json:"body"`
	}, error) {
		c, err := e.Compatibility(input.DatasetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompatibilityResponse `json:"body"`
		}{Body: compatibilityResponse(c)}, nil
	})
}

func registerMetadata(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "regenerate-metadata",
		Method:      http.MethodPost,
		Path:        "/datasets/{dataset_id}/metadata/regenerate",
		Summary:     "Suggest dataset metadata",
		Description: "Regenerates one field, or all of them when field is omitted.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DatasetID string            `path:"dataset_id"`
		Body      RegenerateRequest `json:"body" required:"false"`
	}) (*struct {
		Body SuggestionList `json:"body"`
	}, error) {
		items, err := e.RegenerateMetadata(ctx, input.DatasetID, input.Body.Field)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SuggestionList `json:"body"`
		}{Body: SuggestionList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-metadata",
		Method:      http.MethodPut,
		Path:        "/datasets/{dataset_id}/metadata",
		Summary:     "Save edited dataset metadata",
		Description: "Records the edit in the event log and returns the edited dataset; the catalog is unchanged.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		DatasetID string              `path:"dataset_id"`
		Body      SaveMetadataRequest `json:"body"`
	}) (*struct {
		Body domain.Dataset `json:"body"`
	}, error) {
		ed, ds, err := e.EditMetadata(input.DatasetID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name != nil {
			ed.SetName(*input.Body.Name)
		}
		if input.Body.Description != nil {
			ed.SetDescription(*input.Body.Description)
		}
		if input.Body.Tags != nil {
			ed.SetTags(input.Body.Tags)
		}
		edited, err := e.SaveMetadata(ctx, ds, ed)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dataset `json:"body"`
		}{Body: edited}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "detect-dataset",
		Method:        http.MethodPost,
		Path:          "/datasets/detect",
		Summary:       "Detect metadata of an uploaded file",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DetectRequest `json:"body"`
	}) (*struct {
		Body metadata.Detection `json:"body"`
	}, error) {
		d, err := e.Metadata.Detect(ctx, input.Body.Filename, []byte(input.Body.Content))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body metadata.Detection `json:"body"`
		}{Body: d}, nil
	})
}

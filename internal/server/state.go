package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"aeval/internal/domain"
	"aeval/internal/engine"
	"aeval/internal/repo"
)

func registerOnboarding(api huma.API, st *state) {
	huma.Register(api, huma.Operation{
		OperationID: "get-onboarding",
		Method:      http.MethodGet,
		Path:        "/onboarding",
		Summary:     "Onboarding status and questions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body OnboardingResponse `json:"body"`
	}, error) {
		answers, onboarded, err := st.engine.Onboarding().Load(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OnboardingResponse `json:"body"`
		}{Body: OnboardingResponse{Onboarded: onboarded, Profile: answers, Questions: onboardingQuestions()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-onboarding",
		Method:      http.MethodPost,
		Path:        "/onboarding",
		Summary:     "Store onboarding answers",
		Description: "New chat sessions greet the agent by name afterwards.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body OnboardingRequest `json:"body"`
	}) (*struct {
		Body OnboardingResponse `json:"body"`
	}, error) {
		answers := domain.OnboardingAnswers{Role: input.Body.Role, Goal: input.Body.Goal, AgentName: input.Body.AgentName}
		if err := st.engine.Onboarding().Complete(ctx, answers); err != nil {
			return nil, handleError(err)
		}
		stored, _, err := st.engine.Onboarding().Load(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		st.profile.Store(stored)
		return &struct {
			Body OnboardingResponse `json:"body"`
		}{Body: OnboardingResponse{Onboarded: true, Profile: stored, Questions: onboardingQuestions()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reset-onboarding",
		Method:        http.MethodDelete,
		Path:          "/onboarding",
		Summary:       "Forget onboarding answers",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := st.engine.Onboarding().Reset(ctx); err != nil {
			return nil, handleError(err)
		}
		st.profile.Store(nil)
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"workspace,evaluation,dataset"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.LatestEvents(ctx, limit+1, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvaluations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-evaluations",
		Method:      http.MethodGet,
		Path:        "/evaluations",
		Summary:     "List submitted evaluations",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body EvaluationList `json:"body"`
	}, error) {
		items, err := e.Evaluations(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Evaluation{}
		}
		return &struct {
			Body EvaluationList `json:"body"`
		}{Body: EvaluationList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-evaluation",
		Method:      http.MethodGet,
		Path:        "/evaluations/{evaluation_id}",
		Summary:     "Get a submitted evaluation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EvaluationID string `path:"evaluation_id"`
	}) (*struct {
		Body domain.Evaluation `json:"body"`
	}, error) {
		ev, err := e.Evaluation(ctx, input.EvaluationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Evaluation `json:"body"`
		}{Body: ev}, nil
	})
}

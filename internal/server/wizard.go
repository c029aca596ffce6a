package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"aeval/internal/domain"
	"aeval/internal/wizard"
)

type wizardSessionPath struct {
	SessionID string `path:"session_id"`
}

type wizardOutput struct {
	Body WizardSessionResponse `json:"body"`
}

// mutateWizard applies fn to the session and returns its new snapshot.
func mutateWizard(st *state, id string, fn func(*wizard.Session) error) (*wizardOutput, error) {
	w, err := st.wizards.Get(id)
	if err != nil {
		return nil, handleError(err)
	}
	if err := fn(w); err != nil {
		return nil, handleError(err)
	}
	return &wizardOutput{Body: WizardSessionResponse{ID: id, Wizard: w.Snapshot()}}, nil
}

func registerWizard(api huma.API, st *state) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-wizard-session",
		Method:        http.MethodPost,
		Path:          "/wizard/sessions",
		Summary:       "Start a configuration wizard",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*wizardOutput, error) {
		w := st.engine.NewWizard(nil)
		id := st.wizards.Put(w)
		return &wizardOutput{Body: WizardSessionResponse{ID: id, Wizard: w.Snapshot()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-wizard-session",
		Method:      http.MethodGet,
		Path:        "/wizard/sessions/{session_id}",
		Summary:     "Get wizard session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *wizardSessionPath) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(*wizard.Session) error { return nil })
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-choices",
		Method:      http.MethodGet,
		Path:        "/wizard/sessions/{session_id}/choices",
		Summary:     "Metrics and scenarios ranked against the selected dataset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *wizardSessionPath) (*struct {
		Body WizardChoicesResponse `json:"body"`
	}, error) {
		w, err := st.wizards.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WizardChoicesResponse `json:"body"`
		}{Body: WizardChoicesResponse{
			Metrics:   rankedMetrics(w.MetricChoices()),
			Scenarios: rankedScenarios(w.ScenarioChoices()),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-review",
		Method:      http.MethodGet,
		Path:        "/wizard/sessions/{session_id}/review",
		Summary:     "Review the draft with its estimate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *wizardSessionPath) (*struct {
		Body wizard.Review `json:"body"`
	}, error) {
		w, err := st.wizards.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body wizard.Review `json:"body"`
		}{Body: w.Review()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-set-info",
		Method:      http.MethodPut,
		Path:        "/wizard/sessions/{session_id}/info",
		Summary:     "Set evaluation name and description",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string            `path:"session_id"`
		Body      WizardInfoRequest `json:"body"`
	}) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			return w.SetBasicInfo(input.Body.Name, input.Body.Description)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-select-dataset",
		Method:      http.MethodPut,
		Path:        "/wizard/sessions/{session_id}/dataset",
		Summary:     "Select the dataset",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string               `path:"session_id"`
		Body      WizardDatasetRequest `json:"body"`
	}) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			return w.SelectDataset(input.Body.DatasetID)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-apply-scenario",
		Method:      http.MethodPut,
		Path:        "/wizard/sessions/{session_id}/scenario",
		Summary:     "Replace the metric selection with a scenario's metrics",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string                `path:"session_id"`
		Body      WizardScenarioRequest `json:"body"`
	}) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			return w.ApplyScenario(input.Body.ScenarioID)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-set-mode",
		Method:      http.MethodPut,
		Path:        "/wizard/sessions/{session_id}/mode",
		Summary:     "Switch between scenario and manual metric selection",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string            `path:"session_id"`
		Body      WizardModeRequest `json:"body"`
	}) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			return w.SetMode(wizard.Mode(input.Body.Mode))
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-toggle-metric",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{session_id}/metrics/{metric_id}/toggle",
		Summary:     "Add or remove one metric",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		MetricID  string `path:"metric_id"`
	}) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			return w.ToggleMetric(input.MetricID)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-next",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{session_id}/next",
		Summary:     "Advance to the next step",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *wizardSessionPath) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			_, err := w.Next()
			return err
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-back",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{session_id}/back",
		Summary:     "Return to the previous step",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *wizardSessionPath) (*wizardOutput, error) {
		return mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			_, err := w.Back()
			return err
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-cancel",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{session_id}/cancel",
		Summary:     "Cancel the wizard",
		Description: "Aborts on the first step; on later steps it behaves like back.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *wizardSessionPath) (*wizardOutput, error) {
		var aborted bool
		out, err := mutateWizard(st, input.SessionID, func(w *wizard.Session) error {
			var err error
			aborted, err = w.Cancel()
			return err
		})
		if err != nil {
			return nil, err
		}
		out.Body.Aborted = aborted
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "wizard-submit",
		Method:        http.MethodPost,
		Path:          "/wizard/sessions/{session_id}/submit",
		Summary:       "Submit the evaluation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *wizardSessionPath) (*struct {
		Body domain.Evaluation `json:"body"`
	}, error) {
		w, err := st.wizards.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		ev, err := w.Submit(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Evaluation `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-wizard-session",
		Method:        http.MethodDelete,
		Path:          "/wizard/sessions/{session_id}",
		Summary:       "Discard a wizard session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *wizardSessionPath) (*struct{}, error) {
		if _, err := st.wizards.Get(input.SessionID); err != nil {
			return nil, handleError(err)
		}
		st.wizards.Delete(input.SessionID)
		return &struct{}{}, nil
	})
}

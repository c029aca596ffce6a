package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aeval/internal/app"
	"aeval/internal/cli/ui"
	"aeval/internal/compat"
	"aeval/internal/domain"
	"aeval/internal/metadata"
	"aeval/internal/onboarding"
	"aeval/internal/wizard"
)

// errQuit ends an interactive command without an error exit.
var errQuit = errors.New("quit")

func ask(p survey.Prompt, response any, opts ...survey.AskOpt) error {
	if err := survey.AskOne(p, response, opts...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return errQuit
		}
		return err
	}
	return nil
}

func quietly(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func chatCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Describe what you want to test and get a suggested setup",
		Example: `  $ aeval chat
  $ aeval chat --remote http://127.0.0.1:8080/v0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if remote != "" {
					rt.Config.Chat.RemoteURL = remote
				}
				profile, err := ensureOnboarded(ctx, rt)
				if err != nil {
					return err
				}
				session := rt.Engine.NewChat(profile, nil)
				ui.PrintChatWelcomeBanner()
				for _, m := range session.Messages() {
					printChatMessage(m)
				}
				return quietly(chatLoop(ctx, rt, session))
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "chat endpoint of a running aeval server (overrides chat.remote_url)")
	return cmd
}

type chatSession interface {
	Messages() []domain.ChatMessage
	Send(ctx context.Context, text string) (domain.ChatMessage, error)
	Accept(ctx context.Context, messageID string) (domain.ChatMessage, error)
	UpdateMetrics(messageID string, metricIDs []string) (domain.ChatMessage, error)
	Reset()
}

func chatLoop(ctx context.Context, rt *app.Runtime, session chatSession) error {
	for {
		var text string
		if err := ask(&survey.Input{Message: "You:"}, &text); err != nil {
			return err
		}
		switch strings.TrimSpace(text) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			session.Reset()
			printChatMessage(session.Messages()[0])
			continue
		}
		reply, err := session.Send(ctx, text)
		if err != nil {
			ui.PrintError("%v", err)
			continue
		}
		printChatMessage(reply)
		if reply.Recommendation != nil {
			if err := reviewSuggestion(ctx, rt, session, reply); err != nil {
				return err
			}
		}
	}
}

const (
	choiceAccept = "Accept this configuration"
	choiceModify = "Change the metrics"
	choiceLater  = "Keep chatting"
)

func reviewSuggestion(ctx context.Context, rt *app.Runtime, session chatSession, msg domain.ChatMessage) error {
	for msg.Recommendation != nil {
		var choice string
		if err := ask(&survey.Select{
			Message: "What next?",
			Options: []string{choiceAccept, choiceModify, choiceLater},
			Default: choiceAccept,
		}, &choice); err != nil {
			return err
		}
		switch choice {
		case choiceAccept:
			done, err := session.Accept(ctx, msg.ID)
			if err != nil {
				return err
			}
			printChatMessage(done)
			return nil
		case choiceModify:
			ids, err := pickMetrics(rt.Engine.Store.Metrics(), msg.Recommendation.MetricIDs())
			if err != nil {
				return err
			}
			next, err := session.UpdateMetrics(msg.ID, ids)
			if err != nil {
				ui.PrintError("%v", err)
				continue
			}
			printChatMessage(next)
			msg = next
		default:
			return nil
		}
	}
	return nil
}

func printChatMessage(m domain.ChatMessage) {
	if m.Role == domain.RoleUser {
		fmt.Println(ui.Styles.UserLine.Render("you: ") + m.Content)
		return
	}
	fmt.Println(ui.Styles.SystemLine.Render("aeval: ") + ui.Markdown(m.Content))
	if m.Recommendation != nil {
		ui.PrintRecommendation(*m.Recommendation)
	}
}

func metricLabel(m domain.Metric) string {
	return fmt.Sprintf("%s [%s]", m.Name, m.Category)
}

// pickMetrics asks for a metric set, preselecting selected. The result is in
// catalog order.
func pickMetrics(all []domain.Metric, selected []string) ([]string, error) {
	byLabel := make(map[string]string, len(all))
	options := make([]string, 0, len(all))
	var defaults []string
	chosen := make(map[string]bool, len(selected))
	for _, id := range selected {
		chosen[id] = true
	}
	for _, m := range all {
		label := metricLabel(m)
		byLabel[label] = m.ID
		options = append(options, label)
		if chosen[m.ID] {
			defaults = append(defaults, label)
		}
	}
	var picked []string
	if err := ask(&survey.MultiSelect{
		Message:  "Metrics (space to select, enter to confirm):",
		Options:  options,
		Default:  defaults,
		PageSize: 12,
	}, &picked, survey.WithValidator(survey.MinItems(1))); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(picked))
	for _, label := range picked {
		ids = append(ids, byLabel[label])
	}
	return ids, nil
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Build an evaluation step by step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if _, err := ensureOnboarded(ctx, rt); err != nil {
					return err
				}
				w := rt.Engine.NewWizard(nil)
				return quietly(runWizard(ctx, rt, w))
			})
		},
	}
}

func runWizard(ctx context.Context, rt *app.Runtime, w *wizard.Session) error {
	for w.Status() == wizard.StatusActive {
		ui.PrintBold("Step %d of 4: %s", int(w.Step())+1, w.Step())
		var err error
		switch w.Step() {
		case wizard.StepBasicInfo:
			err = wizardBasicInfo(w)
		case wizard.StepDataset:
			err = wizardDataset(rt, w)
		case wizard.StepMetrics:
			err = wizardMetrics(w)
		case wizard.StepReview:
			err = wizardReview(ctx, w)
		}
		if errors.Is(err, errQuit) {
			aborted, cerr := w.Cancel()
			if cerr != nil {
				return cerr
			}
			if aborted {
				ui.PrintWarning("evaluation discarded")
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func wizardBasicInfo(w *wizard.Session) error {
	draft := w.Draft()
	answers := struct {
		Name        string
		Description string
	}{}
	if err := survey.Ask([]*survey.Question{
		{
			Name:     "name",
			Prompt:   &survey.Input{Message: "Evaluation name:", Default: draft.Name},
			Validate: survey.Required,
		},
		{
			Name:   "description",
			Prompt: &survey.Input{Message: "Description (optional):", Default: draft.Description},
		},
	}, &answers); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return errQuit
		}
		return err
	}
	if err := w.SetBasicInfo(answers.Name, answers.Description); err != nil {
		return err
	}
	_, err := w.Next()
	return err
}

func wizardDataset(rt *app.Runtime, w *wizard.Session) error {
	datasets := rt.Engine.Store.Datasets()
	byLabel := make(map[string]string, len(datasets))
	options := make([]string, 0, len(datasets))
	var current string
	draft := w.Draft()
	for _, d := range datasets {
		label := fmt.Sprintf("%s (%s, %s)", d.Name, strings.Join(d.Tags, ", "), d.Size)
		byLabel[label] = d.ID
		options = append(options, label)
		if draft.SelectedDatasetID != nil && *draft.SelectedDatasetID == d.ID {
			current = label
		}
	}
	prompt := &survey.Select{Message: "Dataset:", Options: options, PageSize: 10}
	if current != "" {
		prompt.Default = current
	}
	var picked string
	if err := ask(prompt, &picked); err != nil {
		return err
	}
	if err := w.SelectDataset(byLabel[picked]); err != nil {
		return err
	}
	_, err := w.Next()
	return err
}

const (
	modeScenario = "Use a scenario"
	modeManual   = "Pick metrics manually"
)

func wizardMetrics(w *wizard.Session) error {
	var mode string
	if err := ask(&survey.Select{Message: "How do you want to choose metrics?", Options: []string{modeScenario, modeManual}}, &mode); err != nil {
		return err
	}
	if mode == modeScenario {
		if err := w.SetMode(wizard.ModeScenario); err != nil {
			return err
		}
		id, err := pickScenario(w.ScenarioChoices())
		if err != nil {
			return err
		}
		if err := w.ApplyScenario(id); err != nil {
			return err
		}
	} else {
		if err := w.SetMode(wizard.ModeManual); err != nil {
			return err
		}
		if err := toggleTo(w); err != nil {
			return err
		}
	}
	_, err := w.Next()
	return err
}

func pickScenario(choices []compat.Ranked[domain.Scenario]) (string, error) {
	byLabel := make(map[string]string, len(choices))
	options := make([]string, 0, len(choices))
	for _, c := range choices {
		label := c.Item.Name
		if c.Compatible {
			label += " (recommended for this dataset)"
		}
		byLabel[label] = c.Item.ID
		options = append(options, label)
	}
	var picked string
	if err := ask(&survey.Select{Message: "Scenario:", Options: options}, &picked); err != nil {
		return "", err
	}
	return byLabel[picked], nil
}

// toggleTo asks for the metric set in compatibility order and toggles the
// draft until it matches.
func toggleTo(w *wizard.Session) error {
	ranked := w.MetricChoices()
	ordered := make([]domain.Metric, 0, len(ranked))
	for _, r := range ranked {
		ordered = append(ordered, r.Item)
	}
	current := w.Draft().SelectedMetricIDs
	want, err := pickMetrics(ordered, current)
	if err != nil {
		return err
	}
	wanted := make(map[string]bool, len(want))
	for _, id := range want {
		wanted[id] = true
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
		if !wanted[id] {
			if err := w.ToggleMetric(id); err != nil {
				return err
			}
		}
	}
	for _, id := range want {
		if !have[id] {
			if err := w.ToggleMetric(id); err != nil {
				return err
			}
		}
	}
	return nil
}

const (
	reviewSubmit = "Submit"
	reviewBack   = "Back"
	reviewCancel = "Cancel"
)

func wizardReview(ctx context.Context, w *wizard.Session) error {
	fmt.Println(ui.Styles.SuggestionBox.Render(ui.ReviewText(w.Review())))
	options := []string{reviewBack, reviewCancel}
	if w.CanSubmit() {
		options = append([]string{reviewSubmit}, options...)
	} else {
		ui.PrintWarning("pick a dataset and at least one metric before submitting")
	}
	var choice string
	if err := ask(&survey.Select{Message: "Ready?", Options: options}, &choice); err != nil {
		return err
	}
	switch choice {
	case reviewSubmit:
		ui.PrintInfo("submitting...")
		ev, err := w.Submit(ctx)
		if err != nil {
			ui.PrintErrorBox("Submission failed", err.Error())
			return nil
		}
		ui.PrintSuccessBox("Evaluation submitted", fmt.Sprintf("%s\nid: %s\nestimate: ~%d min, $%.2f", ev.Name, ev.ID, ev.EstimatedMinutes, ev.EstimatedCostUSD))
		return nil
	case reviewBack:
		_, err := w.Back()
		return err
	default:
		var sure bool
		if err := ask(&survey.Confirm{Message: "Discard this evaluation?", Default: false}, &sure); err != nil {
			return err
		}
		if !sure {
			return nil
		}
		for w.Status() == wizard.StatusActive {
			aborted, err := w.Cancel()
			if err != nil || aborted {
				return err
			}
		}
		return nil
	}
}

func onboardCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Answer the first-run questions that personalise chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				store := rt.Engine.Onboarding()
				if reset {
					if err := store.Reset(ctx); err != nil {
						return err
					}
					ui.PrintSuccess("onboarding cleared")
					return nil
				}
				current, done, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if done && current != nil {
					ui.PrintInfo("already onboarded as %s testing %s", current.Role, current.AgentName)
					var again bool
					if err := ask(&survey.Confirm{Message: "Answer again?", Default: false}, &again); err != nil {
						return quietly(err)
					}
					if !again {
						return nil
					}
				}
				answers, err := runOnboarding()
				if err != nil {
					return quietly(err)
				}
				if err := store.Complete(ctx, answers); err != nil {
					return err
				}
				ui.PrintSuccess("welcome, %s", answers.Role)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "forget the saved answers")
	return cmd
}

// interactive reports whether prompts can be shown.
func interactive() bool {
	if viper.GetBool("json") {
		return false
	}
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ensureOnboarded returns the saved profile, running the first-run questions
// when none is saved and a terminal is attached. Ctrl-C skips them.
func ensureOnboarded(ctx context.Context, rt *app.Runtime) (*domain.OnboardingAnswers, error) {
	var prompt onboarding.Prompt
	if interactive() {
		prompt = func() (domain.OnboardingAnswers, error) {
			ui.PrintInfo("first run: a few questions to personalise aeval (Ctrl-C to skip)")
			answers, err := runOnboarding()
			if errors.Is(err, errQuit) {
				return answers, onboarding.ErrSkipped
			}
			return answers, err
		}
	}
	return rt.Engine.Onboarding().Ensure(ctx, prompt)
}

func runOnboarding() (domain.OnboardingAnswers, error) {
	var flow onboarding.Flow
	for !flow.Done() {
		q := flow.Current()
		var answer string
		if err := ask(&survey.Input{Message: q.Prompt(), Help: q.Placeholder()}, &answer, survey.WithValidator(survey.Required)); err != nil {
			return domain.OnboardingAnswers{}, err
		}
		if err := flow.Answer(strings.TrimSpace(answer)); err != nil {
			ui.PrintWarning("%v", err)
		}
	}
	return flow.Answers(), nil
}

const (
	editRegenerate  = "Regenerate a field"
	editName        = "Edit name"
	editDescription = "Edit description"
	editAddTag      = "Add a tag"
	editRemoveTag   = "Remove a tag"
	editSave        = "Save"
	editDiscard     = "Discard"
)

func metadataEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <dataset-id>",
		Short: "Review and edit a dataset's metadata with suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ed, ds, err := rt.Engine.EditMetadata(args[0])
				if err != nil {
					return err
				}
				return quietly(editLoop(ctx, rt, ds, ed))
			})
		},
	}
}

func editLoop(ctx context.Context, rt *app.Runtime, ds domain.Dataset, ed *metadata.Editor) error {
	for {
		ui.RenderEditor(os.Stdout, ed)
		var choice string
		if err := ask(&survey.Select{
			Message: "Edit:",
			Options: []string{editRegenerate, editName, editDescription, editAddTag, editRemoveTag, editSave, editDiscard},
		}, &choice); err != nil {
			return err
		}
		switch choice {
		case editRegenerate:
			if err := regenerateField(ctx, rt, ds, ed); err != nil {
				return err
			}
		case editName:
			var v string
			if err := ask(&survey.Input{Message: "Name:", Default: ed.Name.Value}, &v); err != nil {
				return err
			}
			ed.SetName(v)
		case editDescription:
			var v string
			if err := ask(&survey.Multiline{Message: "Description:", Default: ed.Description.Value}, &v); err != nil {
				return err
			}
			ed.SetDescription(v)
		case editAddTag:
			var v string
			if err := ask(&survey.Input{Message: "Tag:"}, &v); err != nil {
				return err
			}
			if !ed.AddTag(v) {
				ui.PrintWarning("tag is blank or already present")
			}
		case editRemoveTag:
			if len(ed.Tags.Value) == 0 {
				ui.PrintWarning("no tags to remove")
				continue
			}
			var v string
			if err := ask(&survey.Select{Message: "Remove:", Options: ed.Tags.Value}, &v); err != nil {
				return err
			}
			ed.RemoveTag(v)
		case editSave:
			saved, err := rt.Engine.SaveMetadata(ctx, ds, ed)
			if err != nil {
				ui.PrintError("%v", err)
				continue
			}
			ui.PrintSuccessBox("Metadata saved", fmt.Sprintf("%s\n%s\ntags: %s", saved.Name, saved.Description, strings.Join(saved.Tags, ", ")))
			return nil
		default:
			return nil
		}
	}
}

func regenerateField(ctx context.Context, rt *app.Runtime, ds domain.Dataset, ed *metadata.Editor) error {
	var field string
	options := make([]string, 0, len(metadata.Fields))
	for _, f := range metadata.Fields {
		options = append(options, string(f))
	}
	if err := ask(&survey.Select{Message: "Field:", Options: options}, &field); err != nil {
		return err
	}
	f, err := metadata.ParseField(field)
	if err != nil {
		return err
	}
	// suggestions start from the current edit, not the catalog entry
	s, err := rt.Engine.Metadata.Regenerate(ctx, ed.Dataset(ds), f)
	if err != nil {
		return err
	}
	value := s.Value
	if s.Field == metadata.FieldTags {
		value = strings.Join(s.Tags, ", ")
	}
	var apply bool
	if err := ask(&survey.Confirm{
		Message: fmt.Sprintf("Use %q (%d%%, %s confidence)?", value, metadata.Percent(s.Confidence), metadata.Band(s.Confidence)),
		Default: true,
	}, &apply); err != nil {
		return err
	}
	if apply {
		ed.Apply(s)
	}
	return nil
}

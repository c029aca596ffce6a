package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"aeval/internal/app"
	"aeval/internal/cli/ui"
	"aeval/internal/domain"
	"aeval/internal/fixtures"
	"aeval/internal/metadata"
)

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the catalog",
		Long:  "The catalog is read-only. Point fixtures.dir at a directory to overlay your own datasets.json, metrics.json, scenarios.json or agents.json.",
	}
	cat.AddCommand(catalogDatasetsCmd())
	cat.AddCommand(catalogMetricsCmd())
	cat.AddCommand(catalogScenariosCmd())
	cat.AddCommand(catalogAgentsCmd())
	return cat
}

func catalogDatasetsCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := rt.Engine.Store.SearchDatasets(query)
				return printJSONOrTable(items, func(w io.Writer) { ui.RenderDatasets(w, items) })
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "match on name or tag")
	return cmd
}

func catalogMetricsCmd() *cobra.Command {
	var query string
	var grouped bool
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "List metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := rt.Engine.Store.SearchMetrics(query)
				if !grouped {
					return printJSONOrTable(items, func(w io.Writer) { ui.RenderMetrics(w, items) })
				}
				groups := fixtures.GroupMetrics(items)
				return printJSONOrTable(groups, func(w io.Writer) {
					for _, g := range groups {
						ui.PrintBold("%s (%d)", g.Category, len(g.Metrics))
						ui.RenderMetrics(w, g.Metrics)
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "match on name, description or category")
	cmd.Flags().BoolVar(&grouped, "grouped", false, "group by category")
	return cmd
}

func catalogScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := rt.Engine.Store.Scenarios()
				return printJSONOrTable(items, func(w io.Writer) { ui.RenderScenarios(w, items) })
			})
		},
	}
}

func catalogAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := rt.Engine.Store.Agents()
				return printJSONOrTable(items, func(w io.Writer) { ui.RenderAgents(w, items) })
			})
		},
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify free text into an intent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				label := rt.Engine.Classify(ctx, strings.Join(args, " "))
				return printJSONOrTable(map[string]domain.Intent{"intent": label}, func(w io.Writer) {
					fmt.Fprintln(w, label)
				})
			})
		},
	}
}

func recommendCmd() *cobra.Command {
	var intentFlag string
	cmd := &cobra.Command{
		Use:   "recommend [text]",
		Short: "Recommend an evaluation setup for an intent or free text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if intentFlag == "" && strings.TrimSpace(text) == "" {
				return fmt.Errorf("pass --intent or some text")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				var label domain.Intent
				if intentFlag != "" {
					parsed, ok := domain.ParseIntent(intentFlag)
					if !ok {
						return fmt.Errorf("unknown intent %q", intentFlag)
					}
					label = parsed
				} else {
					label = rt.Engine.Classify(ctx, text)
				}
				rec, ok := rt.Engine.Recommend.Recommend(label)
				if !ok {
					rec = nil
				}
				out := struct {
					Intent         domain.Intent          `json:"intent"`
					Recommendation *domain.Recommendation `json:"recommendation"`
				}{label, rec}
				return printJSONOrTable(out, func(w io.Writer) {
					ui.PrintInfo("intent: %s", label)
					if rec == nil {
						ui.PrintWarning("no recommendation for this intent; try describing the agent and what to test")
						return
					}
					ui.PrintRecommendation(*rec)
					if rec.Reason != "" {
						fmt.Fprintln(w, rec.Reason)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&intentFlag, "intent", "", "rag_safety, rag_accuracy, code_eval, general_chat or unknown")
	return cmd
}

func compatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compat <dataset-id>",
		Short: "Rank metrics and scenarios against a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.Compatibility(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c, func(w io.Writer) {
					ui.PrintBold("%s [%s]", c.Dataset.Name, strings.Join(c.Dataset.Tags, ", "))
					ui.RenderRankedScenarios(w, c.Scenarios)
					ui.RenderRankedMetrics(w, c.Metrics)
				})
			})
		},
	}
}

func metadataCmd() *cobra.Command {
	md := &cobra.Command{
		Use:   "metadata",
		Short: "Suggest dataset metadata",
	}
	md.AddCommand(metadataRegenerateCmd())
	md.AddCommand(metadataDetectCmd())
	md.AddCommand(metadataEditCmd())
	return md
}

func metadataRegenerateCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "regenerate <dataset-id>",
		Short: "Propose a new name, description or tags for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				suggestions, err := rt.Engine.RegenerateMetadata(ctx, args[0], field)
				if err != nil {
					return err
				}
				return printJSONOrTable(suggestions, func(w io.Writer) {
					t := table.NewWriter()
					t.SetOutputMirror(w)
					t.SetStyle(table.StyleLight)
					t.AppendHeader(table.Row{"Field", "Suggestion", "Confidence"})
					for _, s := range suggestions {
						value := s.Value
						if s.Field == metadata.FieldTags {
							value = strings.Join(s.Tags, ", ")
						}
						t.AppendRow(table.Row{s.Field, value, fmt.Sprintf("%d%% (%s)", metadata.Percent(s.Confidence), metadata.Band(s.Confidence))})
					}
					t.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "name, description or tags (default all)")
	return cmd
}

func metadataDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>",
		Short: "Scan a dataset file and propose its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.Metadata.Detect(ctx, filepath.Base(args[0]), content)
				if err != nil {
					return err
				}
				return printJSONOrTable(d, func(w io.Writer) {
					t := table.NewWriter()
					t.SetOutputMirror(w)
					t.SetStyle(table.StyleLight)
					t.AppendRows([]table.Row{
						{"Name", d.Name},
						{"Description", d.Description},
						{"Format", d.FileFormat},
						{"Size", d.Size},
						{"Records", d.Records},
						{"Columns", strings.Join(d.Columns, ", ")},
						{"Tags", strings.Join(d.Tags, ", ")},
					})
					t.Render()
				})
			})
		},
	}
}

func evaluationsCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "evaluations",
		Short: "Submitted evaluations",
	}
	ev.AddCommand(evaluationsListCmd())
	ev.AddCommand(evaluationsShowCmd())
	return ev
}

func evaluationsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submitted evaluations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Evaluations(ctx, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func(w io.Writer) { ui.RenderEvaluations(w, items) })
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max evaluations")
	return cmd
}

func evaluationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ev, err := rt.Engine.Evaluation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
}

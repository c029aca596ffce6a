package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aeval/internal/app"
	"aeval/internal/cli/ui"
	"aeval/internal/config"
	"aeval/internal/db"
	"aeval/internal/logger"
	"aeval/internal/mcp"
	"aeval/internal/ratelimit"
	"aeval/internal/repo"
	"aeval/internal/server"
	"aeval/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "aeval",
	Short: "AI evaluation configurator",
	Long: `aeval helps you set up evaluations for AI agents.
Core concepts:
- Catalog: datasets, metrics, scenarios and agents the tool can recommend.
- Intent: what you want to test, read from free text (rag_safety, rag_accuracy, code_eval, general_chat).
- Recommendation: a dataset, agent, scenario and metric set for an intent.
- Compatibility: metrics and scenarios ranked against a dataset's tags.
- Chat: describe your goal and accept or tweak the suggested configuration.
- Wizard: build an evaluation step by step (basic info, dataset, metrics, review).
- Workspace: the .aeval directory holding onboarding answers, submitted evaluations and the event log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("%v", err)
		cancel()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AEVAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/aeval.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(compatCmd())
	rootCmd.AddCommand(metadataCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(wizardCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(evaluationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(versionCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default aeval.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			ui.PrintSuccess("wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect config",
		Long:  "Config lives in <workspace>/aeval.yml. Missing keys take the built-in defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			ui.PrintSuccess("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if cmd.Flags().Changed("addr") {
					cfg.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") {
					cfg.Server.BasePath = basePath
				}

				otelShutdown, err := telemetry.Init(ctx, cfg.Telemetry.OTELEndpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
				if err != nil {
					return err
				}
				defer func() { _ = otelShutdown(context.Background()) }()
				// instruments bind to the provider installed above
				rt.Engine.Counters = telemetry.NewCounters()

				limiter := ratelimit.New(cfg.Server.RateLimit.Enabled, cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
				defer limiter.Close()

				handler, err := server.New(server.Config{
					Engine:     rt.Engine,
					BasePath:   cfg.Server.BasePath,
					Limiter:    limiter,
					Logger:     rt.Logger,
					SessionTTL: cfg.Server.SessionTTL,
					MCPServer:  mcp.New(rt.Engine, rt.Logger, version).MCPServer(),
				})
				if err != nil {
					return err
				}

				go server.NewWebhookDispatcher(rt.Engine.Repo, cfg.Webhooks, rt.Logger).Run(ctx)

				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				shown := cfg.Server.BasePath
				if shown == "" {
					shown = "/v0"
				}
				rt.Logger.Info("aeval serving", "addr", cfg.Server.Addr, "base_path", shown, "version", version)
				fmt.Printf("Serving aeval API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, MCP at /mcp)\n", cfg.Server.Addr, shown)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides config)")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := app.LoadConfig(workspace, viper.GetString("config"))
			if err != nil {
				return err
			}
			// stdout carries the protocol
			log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			rt, err := app.Open(cmd.Context(), app.Options{Workspace: workspace, ConfigPath: viper.GetString("config"), Logger: log})
			if err != nil {
				return err
			}
			defer rt.Close()
			return mcpserver.ServeStdio(mcp.New(rt.Engine, log, version).MCPServer())
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything recorded in the workspace: onboarding, accepted chat suggestions and submitted evaluations.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Engine.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(events, func(w io.Writer) {
					ui.RenderEvents(w, events, time.Now())
				})
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// printJSONOrTable prints v as JSON under --json and renders the table
// otherwise.
func printJSONOrTable(v any, table func(io.Writer)) error {
	if viper.GetBool("json") || table == nil {
		return printJSON(v)
	}
	table(os.Stdout)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

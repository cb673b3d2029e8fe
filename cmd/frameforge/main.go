package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"frameforge/internal/app"
	"frameforge/internal/config"
	"frameforge/internal/logging"
	"frameforge/internal/server"
	frameforgesdk "frameforge/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "frameforge",
	Short: "FrameForge CLI",
	Long: `FrameForge turns a free-text video editing request into an approved scene plan.
A session moves through fixed phases:
- refine: the prompt is analyzed and improved; approve it or reject it with feedback.
- questions: clarifying questions are issued; answer them, then submit.
- analyze: the narrative arc, emotional beats and pacing are derived from the answers.
- plan: scenes, voice-over and subtitles are planned.
- execute: cuts, voice_over, subtitles and render steps are recorded, then complete.
Every transition emits an event; a session webhook can forward them to Discord.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FRAMEFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/frameforge.yml)")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "FrameForge API server URL")
	rootCmd.PersistentFlags().String("base-path", "/v1", "API base path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("base-path", rootCmd.PersistentFlags().Lookup("base-path"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(refineCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(questionsCmd())
	rootCmd.AddCommand(answerCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(completeCmd())
}

func serveCmd() *cobra.Command {
	var addr, logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") || os.Getenv("FRAMEFORGE_BASE_PATH") != "" {
				cfg.Server.BasePath = viper.GetString("base-path")
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Level:      cfg.Log.Level,
				Encoding:   cfg.Log.Encoding,
				OutputPath: cfg.Log.OutputPath,
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Pipeline:     a.Pipeline,
				BasePath:     cfg.Server.BasePath,
				Logger:       logger,
				Registry:     a.Registry,
				WebhookStats: a.Dispatcher.Stats,
			})
			if err != nil {
				a.Close(context.Background())
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving FrameForge API",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath),
				zap.String("store", cfg.Store.Driver))
			fmt.Printf("Serving FrameForge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			serveErr := srv.ListenAndServe()
			if errors.Is(serveErr, http.ErrServerClosed) {
				serveErr = nil
			}
			// Give queued webhook deliveries a bounded window to drain.
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Close(drainCtx); err != nil {
				logger.Warn("shutdown incomplete", zap.Error(err))
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage frameforge.yml",
		Long:  "Config holds the listen address, pipeline limits, webhook delivery settings, storage driver and logging. Missing keys take their defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func sessionCmd() *cobra.Command {
	s := &cobra.Command{Use: "session", Short: "Inspect sessions"}
	s.AddCommand(sessionNewCmd())
	s.AddCommand(sessionListCmd())
	s.AddCommand(sessionStatusCmd())
	s.AddCommand(sessionEventsCmd())
	return s
}

func sessionNewCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().CreateSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printSession(s)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "session id (generated when empty)")
	return cmd
}

func sessionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Phase", "Revisions", "Steps", "Updated"})
			for _, s := range items {
				tw.AppendRow(table.Row{s.ID, s.Phase, s.RevisionCount, strings.Join(s.ExecutionSteps, ","), s.UpdatedAt})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func sessionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show session status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(s)
		},
	}
	return cmd
}

func sessionEventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events <session-id>",
		Short: "Show recent session events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().Events(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Time", "Type", "Phase", "Status"})
			for _, e := range items {
				tw.AppendRow(table.Row{e.Timestamp, e.Type, e.Phase, e.Status})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func refineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refine <session-id> <prompt>",
		Short: "Submit and refine the original prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Refine(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return printRefinement(res)
		},
	}
	return cmd
}

func approveCmd() *cobra.Command {
	var reject bool
	var feedback string
	cmd := &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve the refined prompt, or reject it with --reject --feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Approve(cmd.Context(), args[0], !reject, feedback)
			if err != nil {
				return err
			}
			return printRefinement(res)
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject and request a revision")
	cmd.Flags().StringVar(&feedback, "feedback", "", "revision feedback")
	return cmd
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions <session-id>",
		Short: "Issue clarifying questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().IssueQuestions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Type", "Required", "Question", "Options"})
			for _, q := range res.Questions {
				tw.AppendRow(table.Row{q.ID, q.Type, q.Required, q.Text, strings.Join(q.Options, "\n")})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func answerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer <session-id> <question-id> <value>...",
		Short: "Record an answer",
		Long:  "One value answers a single choice, free text or number question. Several values answer a multiple choice question; pass --multi to send a single value as a list.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			multi, _ := cmd.Flags().GetBool("multi")
			number, _ := cmd.Flags().GetBool("number")
			value, err := answerValue(args[2:], multi, number)
			if err != nil {
				return err
			}
			res, err := client().Answer(cmd.Context(), args[0], args[1], value)
			if err != nil {
				return err
			}
			return printProgress(res)
		},
	}
	cmd.Flags().Bool("multi", false, "send the values as a list")
	cmd.Flags().Bool("number", false, "send the value as a number")
	return cmd
}

func answerValue(values []string, multi, number bool) (any, error) {
	switch {
	case number:
		if len(values) != 1 {
			return nil, fmt.Errorf("--number takes exactly one value")
		}
		f, err := strconv.ParseFloat(values[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", values[0], err)
		}
		return f, nil
	case multi || len(values) > 1:
		return values, nil
	default:
		return values[0], nil
	}
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <session-id>",
		Short: "Close questioning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().SubmitAnswers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printProgress(res)
		},
	}
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <session-id>",
		Short: "Analyze the narrative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().AnalyzeNarrative(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			tw := newTable()
			tw.AppendRows([]table.Row{
				{"Phase", res.Phase},
				{"Narrative arc", res.Narrative.NarrativeArc},
				{"Dominant tone", res.Narrative.DominantTone},
			})
			tw.Render()
			return nil
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <session-id>",
		Short: "Plan scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().PlanScenes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("%s (%s, %s)\n", res.Plan.Title, res.Plan.Format, res.Plan.Style)
			tw := newTable()
			tw.AppendHeader(table.Row{"#", "Start", "End", "Goal", "Visual", "Transition"})
			for _, s := range res.Plan.Scenes {
				tw.AppendRow(table.Row{s.SceneID, s.Start, s.End, s.Goal, s.Visual, s.Transition})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func webhookCmd() *cobra.Command {
	var url string
	var disabled bool
	var eventTypes []string
	cmd := &cobra.Command{
		Use:   "webhook <session-id>",
		Short: "Configure the session webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var optIn map[string]bool
			if len(eventTypes) > 0 {
				optIn = make(map[string]bool, len(eventTypes))
				for _, t := range eventTypes {
					optIn[strings.ToUpper(strings.TrimSpace(t))] = true
				}
			}
			res, err := client().ConfigureWebhook(cmd.Context(), args[0], url, !disabled, optIn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			tw := newTable()
			tw.AppendRows([]table.Row{
				{"URL", res.URL},
				{"Enabled", res.Enabled},
				{"Events", strings.Join(res.Events, "\n")},
			})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "webhook URL")
	cmd.Flags().BoolVar(&disabled, "disable", false, "store the webhook but do not deliver")
	cmd.Flags().StringSliceVar(&eventTypes, "events", nil, "event types to deliver (default all)")
	return cmd
}

func executeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "execute <session-id> <step>",
		Short:     "Record an execution step (cuts, voice_over, subtitles, render)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"cuts", "voice_over", "subtitles", "render"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().ExecuteStep(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printSession(s)
		},
	}
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Mark the final render complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Complete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(s)
		},
	}
	return cmd
}

// --- helpers ---

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

func loadConfig() (*config.Config, error) {
	if p := viper.GetString("config"); p != "" {
		return config.FromFile(p)
	}
	return config.LoadOptional(viper.GetString("workspace"))
}

func client() *frameforgesdk.Client {
	c := frameforgesdk.New(viper.GetString("server"))
	c.BasePath = viper.GetString("base-path")
	return c
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printSession(s frameforgesdk.Session) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	tw := newTable()
	tw.AppendRows([]table.Row{
		{"ID", s.ID},
		{"Phase", s.Phase},
		{"Revisions", s.RevisionCount},
		{"Answers", len(s.Answers)},
		{"Steps", strings.Join(s.ExecutionSteps, ", ")},
		{"Webhook", webhookSummary(s.Webhook)},
		{"Updated", s.UpdatedAt},
	})
	if s.ApprovedPrompt != "" {
		tw.AppendRow(table.Row{"Approved prompt", s.ApprovedPrompt})
	}
	if s.Narrative != nil {
		tw.AppendRow(table.Row{"Narrative", s.Narrative.NarrativeArc + " / " + s.Narrative.DominantTone})
	}
	tw.Render()
	return nil
}

func webhookSummary(w frameforgesdk.Webhook) string {
	switch {
	case !w.Configured:
		return "-"
	case !w.Enabled:
		return w.URL + " (disabled)"
	default:
		return w.URL
	}
}

func printRefinement(res frameforgesdk.RefinementResponse) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	r := res.Refinement
	tw := newTable()
	tw.AppendRows([]table.Row{
		{"Phase", res.Phase},
		{"Revisions", res.RevisionCount},
		{"Improved prompt", r.ImprovedPrompt},
		{"Issues", strings.Join(r.IssuesDetected, "\n")},
		{"Improvements", strings.Join(r.ImprovementsMade, "\n")},
		{"Action", r.UserActionRequired},
	})
	tw.Render()
	return nil
}

func printProgress(res frameforgesdk.ProgressResponse) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	p := res.Progress
	fmt.Printf("%s: %d/%d required answered (need %d, threshold %.0f%%)\n",
		res.Phase, p.Answered, p.Required, p.Needed, p.Threshold*100)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coursepipe/coursepipe/internal/analysis"
	"github.com/coursepipe/coursepipe/internal/anonymize"
	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/content"
	"github.com/coursepipe/coursepipe/internal/dashboard"
	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/discussion"
	"github.com/coursepipe/coursepipe/internal/llm"
	"github.com/coursepipe/coursepipe/internal/lms"
	"github.com/coursepipe/coursepipe/internal/model"
	"github.com/coursepipe/coursepipe/internal/pipeline"
	"github.com/coursepipe/coursepipe/internal/store"
	"github.com/coursepipe/coursepipe/internal/writeback"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coursepipe",
		Short: "Batch submission analysis pipeline for LMS courses",
		RunE:  run,
	}
	f := cmd.Flags()
	f.StringP("action", "a", "", "Action: download, analyze, grade, dashboard, full, post-grades, diagnose-downloads, anonymize")
	f.StringP("course", "c", "both", "Course code, or 'both' for every configured course")
	f.String("config-dir", "config", "Directory holding <course>.json and <course>-assignments.csv")
	f.String("data-dir", "data", "Data directory root (overridden by COURSEPIPE_DATA_DIR)")
	f.String("assignment", "", "Restrict the action to one assignment key")
	f.String("grades", "", "Grade file exported from the review dashboard (post-grades)")
	f.Bool("dry-run", true, "Log grade posts without writing to the LMS")
	f.Int("limit", 0, "Maximum grades to post this run (0 = all)")
	f.String("grade-model", "gpt-4o-mini", "Model for bulk discussion grading")
	f.String("analysis-model", "gpt-4o", "Model for quality analysis and summaries")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("COURSEPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("coursepipe")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/coursepipe")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}

	return v
}

// env groups everything one course action needs. Constructed once per
// course so clients and the cache are shared across the action chain.
type env struct {
	course *config.Course
	layout datadir.Layout
	lms    *lms.Client
	llm    *llm.Client
	cache  *store.Cache
	v      *viper.Viper
}

func run(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	action := strings.ToLower(v.GetString("action"))
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}
	if err := checkCredentials(action, creds); err != nil {
		return err
	}

	codes, err := courseCodes(v)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var failed int
	for _, code := range codes {
		if err := runCourse(ctx, v, creds, action, code); err != nil {
			slog.Error("course action failed", "course", code, "action", action, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d course(s) failed", failed)
	}
	return nil
}

// checkCredentials fails fast when the action needs a secret that is
// not set, before any course work starts.
func checkCredentials(action string, creds config.Credentials) error {
	needsLMS := map[string]bool{
		"download": true, "diagnose-downloads": true, "post-grades": true, "full": true,
	}
	needsLLM := map[string]bool{
		"analyze": true, "grade": true, "full": true,
	}
	if needsLMS[action] {
		if creds.LMSBaseURL == "" || creds.LMSToken == "" {
			return fmt.Errorf("action %s needs COURSEPIPE_LMS_BASE_URL and COURSEPIPE_LMS_TOKEN", action)
		}
	}
	if needsLLM[action] && creds.LLMAPIKey == "" {
		return fmt.Errorf("action %s needs COURSEPIPE_LLM_API_KEY", action)
	}
	return nil
}

// courseCodes resolves --course. "both" (or "all") means every
// <code>.json in the config directory, in name order.
func courseCodes(v *viper.Viper) ([]string, error) {
	sel := v.GetString("course")
	if sel != "both" && sel != "all" {
		return strings.Split(sel, ","), nil
	}
	pattern := filepath.Join(v.GetString("config-dir"), "*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var codes []string
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".json")
		if strings.HasSuffix(base, "-assignments") {
			continue
		}
		codes = append(codes, base)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no course configs found under %s", v.GetString("config-dir"))
	}
	return codes, nil
}

func newEnv(v *viper.Viper, creds config.Credentials, code string) (*env, error) {
	course, err := config.LoadCourse(v.GetString("config-dir"), code)
	if err != nil {
		return nil, err
	}
	dataRoot := creds.DataDir
	if dataRoot == "" {
		dataRoot = v.GetString("data-dir")
	}
	e := &env{
		course: course,
		layout: datadir.New(dataRoot),
		v:      v,
	}
	if creds.LMSBaseURL != "" {
		e.lms = lms.New(creds.LMSBaseURL, creds.LMSToken)
	}
	if creds.LLMAPIKey != "" {
		e.llm = llm.New(creds.LLMBaseURL, creds.LLMAPIKey,
			v.GetString("grade-model"), v.GetString("analysis-model"))
	}
	return e, nil
}

func runCourse(ctx context.Context, v *viper.Viper, creds config.Credentials, action, code string) error {
	e, err := newEnv(v, creds, code)
	if err != nil {
		return err
	}

	// The cache doubles as the run ledger; open it for any action that
	// may talk to the LLM.
	if action == "analyze" || action == "grade" || action == "full" {
		cache, err := store.Open(e.layout.CacheDB(code))
		if err != nil {
			return fmt.Errorf("open LLM cache: %w", err)
		}
		defer cache.Close()
		e.cache = cache
	}

	actions := []string{action}
	if action == "full" {
		actions = []string{"download", "analyze", "grade", "dashboard"}
	}
	for _, act := range actions {
		slog.Info("running action", "action", act, "course", code)
		if err := dispatch(ctx, e, act); err != nil {
			return fmt.Errorf("%s: %w", act, err)
		}
	}
	return nil
}

func dispatch(ctx context.Context, e *env, action string) error {
	only := e.v.GetString("assignment")
	switch action {
	case "download":
		d := &pipeline.Downloader{
			LMS:        e.lms,
			Extractor:  content.NewExtractor(e.lms),
			Course:     e.course,
			Layout:     e.layout,
			ReportOpts: lms.DefaultReportOptions(),
		}
		return d.Download(ctx, only)

	case "diagnose-downloads":
		d := &pipeline.Downloader{
			LMS:        e.lms,
			Extractor:  content.NewExtractor(e.lms),
			Course:     e.course,
			Layout:     e.layout,
			ReportOpts: lms.DefaultReportOptions(),
		}
		return d.Diagnose(ctx, only)

	case "analyze":
		return e.withRun(ctx, action, func() error {
			eng := &analysis.Engine{LLM: e.llm, Cache: e.cache, Course: e.course, Layout: e.layout}
			return eng.Run(ctx, only)
		})

	case "grade":
		return e.withRun(ctx, action, func() error {
			g := &discussion.Grader{LLM: e.llm, Cache: e.cache, Course: e.course, Layout: e.layout}
			return g.Run(ctx, only)
		})

	case "dashboard":
		r := &dashboard.Renderer{Course: e.course, Layout: e.layout}
		return r.RenderAll(time.Now().UTC().Format(time.RFC3339))

	case "post-grades":
		return e.postGrades(ctx)

	case "anonymize":
		return anonymize.Mirror(e.layout, e.course.Code, e.course.Prefix)

	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// withRun brackets an action with a run-ledger entry.
func (e *env) withRun(ctx context.Context, action string, fn func() error) error {
	runID := uuid.NewString()
	if err := e.cache.StartRun(runID, action, e.course.Code); err != nil {
		slog.Warn("run ledger write failed", "error", err)
	}
	err := fn()
	if ferr := e.cache.FinishRun(runID); ferr != nil {
		slog.Warn("run ledger finish failed", "error", ferr)
	}
	return err
}

func (e *env) postGrades(ctx context.Context) error {
	gradesPath := e.v.GetString("grades")
	if gradesPath == "" {
		return fmt.Errorf("post-grades needs --grades <file>")
	}
	assignmentKey := e.v.GetString("assignment")
	if assignmentKey == "" {
		return fmt.Errorf("post-grades needs --assignment <key>")
	}
	var grades model.GradeFile
	if err := datadir.ReadJSON(gradesPath, &grades); err != nil {
		return err
	}
	if grades.Course != "" && grades.Course != e.course.Code {
		return fmt.Errorf("grade file is for course %s, not %s", grades.Course, e.course.Code)
	}
	p := &writeback.Poster{LMS: e.lms, Course: e.course}
	_, err := p.Post(ctx, grades, writeback.Options{
		AssignmentKey: assignmentKey,
		DryRun:        e.v.GetBool("dry-run"),
		Limit:         e.v.GetInt("limit"),
	})
	return err
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/homer-mine/homer/pkg/analyze"
	"github.com/homer-mine/homer/pkg/capability"
	"github.com/homer-mine/homer/pkg/capability/forgeimpl"
	"github.com/homer-mine/homer/pkg/capability/gitimpl"
	"github.com/homer-mine/homer/pkg/capability/llmimpl"
	"github.com/homer-mine/homer/pkg/capability/parseimpl"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/extract"
	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/observability"
	"github.com/homer-mine/homer/pkg/pipeline"
	"github.com/homer-mine/homer/pkg/render"
	"github.com/homer-mine/homer/pkg/snapshot"
)

// exitNonFatalErrors is the process exit code when the pipeline
// completed but accumulated non-fatal errors.
const exitNonFatalErrors = 10

func newRunCommand(flags *rootFlags) *cobra.Command {
	var (
		forceAnalysis bool
		forceSemantic bool
		dryRun        bool
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: extract, snapshot, analyze, render",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			cfg.Pipeline.ForceAnalysis = cfg.Pipeline.ForceAnalysis || forceAnalysis
			cfg.Pipeline.ForceSemantic = cfg.Pipeline.ForceSemantic || forceSemantic

			if workers > 0 {
				cfg.Pipeline.Workers = workers
			}

			providers, err := initObservability(flags, observability.ModeCLI)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			defer func() { _ = providers.Shutdown(context.Background()) }()

			pipeMetrics, err := observability.NewPipelineMetrics(providers.Meter)
			if err != nil {
				return fmt.Errorf("create pipeline metrics: %w", err)
			}

			result, runErr := executePipeline(ctx, cfg, dryRun, pipeMetrics)
			if runErr != nil {
				return runErr
			}

			printSummary(cmd, result)

			if code := result.ExitCode(); code != 0 {
				os.Exit(code)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&forceAnalysis, "force-analysis", false, "clear all analysis results before analyzing")
	cmd.Flags().BoolVar(&forceSemantic, "force-semantic", false, "clear LLM-derived analysis results before analyzing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render without writing artifacts")
	cmd.Flags().IntVar(&workers, "workers", 0, "CPU-bound fanout width (default: logical cores)")

	return cmd
}

// executePipeline assembles the four stages from configuration and
// runs them against the store.
func executePipeline(ctx context.Context, cfg *config.Config, dryRun bool, pipeMetrics *observability.PipelineMetrics) (pipeline.PipelineResult, error) {
	store, err := homergraph.Open(cfg.Store.Path)
	if err != nil {
		return pipeline.PipelineResult{}, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	defer func() { _ = store.Close() }()

	reader, err := gitimpl.Open(cfg.Repository.Path)
	if err != nil {
		return pipeline.PipelineResult{}, fmt.Errorf("open repository %s: %w", cfg.Repository.Path, err)
	}
	defer reader.Free()

	orch, err := buildExtractors(ctx, cfg, reader)
	if err != nil {
		return pipeline.PipelineResult{}, err
	}

	scheduler := analyze.NewScheduler(
		analyze.NewBehavioralAnalyzer(),
		analyze.NewCentralityAnalyzer(),
		analyze.NewCommunityAnalyzer(),
		analyze.NewSemanticAnalyzer(
			summarizerFor(cfg), cfg.LLM.Model, cfg.LLM.PromptTemplateVersion,
		),
	)

	renderers := []render.Renderer{
		render.NewAgentsRenderer(),
		render.NewRiskMapRenderer(),
		render.NewDashboardRenderer(),
	}

	orchestrator := pipeline.New(orch, snapshot.NewSnapshotter(), scheduler, renderers)
	orchestrator.Metrics = pipeMetrics

	result, err := orchestrator.Run(ctx, store, cfg, cfg.Repository.Path, dryRun)
	if err != nil {
		return result, fmt.Errorf("pipeline: %w", err)
	}

	return result, nil
}

// buildExtractors wires the fixed extractor order: Git, Structure,
// Graph, Document, Forge, Prompt.
func buildExtractors(ctx context.Context, cfg *config.Config, reader capability.GitReader) (*extract.Orchestrator, error) {
	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	forge, err := forgeimpl.NewGitHub(ctx, cfg.Forge.Token, cfg.Forge.Owner, cfg.Forge.Repo, cfg.Forge.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("configure forge client: %w", err)
	}

	var forgeCap capability.Forge
	if forge != nil {
		forgeCap = forge
	}

	return extract.NewOrchestrator(
		extract.NewGitExtractor(reader),
		extract.NewStructureExtractor(cfg.Repository.Path),
		extract.NewGraphExtractor(reader, parseimpl.DefaultParsers(), os.ReadFile, workers),
		extract.NewDocumentExtractor(cfg.Repository.Path),
		extract.NewForgeExtractor(forgeCap),
		extract.NewPromptExtractor(cfg.Repository.Path+"/.homer/prompts"),
	), nil
}

// summarizerFor builds the optional Summarizer capability; nil when no
// API key is configured, which makes the semantic analyzer skip.
func summarizerFor(cfg *config.Config) capability.Summarizer {
	s := llmimpl.New(cfg.LLM.APIKey, "")
	if s == nil {
		return nil
	}

	return s
}

// printSummary renders the pipeline result tables on stdout.
func printSummary(cmd *cobra.Command, result pipeline.PipelineResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, render.FormatStageTable(result.StageSummaries()))

	if errList := render.FormatErrorList(result.ErrorEntries()); errList != "" {
		fmt.Fprintln(out, errList)
	}

	for _, d := range result.Diagnostics {
		fmt.Fprintf(out, "diagnostic (%s): %s\n", d.Stage, d.Message)
	}

	if riskTable := riskTableFromResults(result.RenderResults); riskTable != "" {
		fmt.Fprintln(out, riskTable)
	}

	fmt.Fprintf(out, "completed in %s with %s errors\n",
		result.Duration.Round(time.Millisecond), humanize.Comma(int64(len(result.Errors))))
}

// riskTableTopN bounds the terminal risk table to the highest-risk files.
const riskTableTopN = 10

// riskTableFromResults decodes the risk map renderer's JSON output back
// into entries for the terminal table, so the summary shows the same
// numbers the artifact carries.
func riskTableFromResults(results []render.Result) string {
	for _, r := range results {
		if r.Path != render.NewRiskMapRenderer().Path() {
			continue
		}

		var entries []render.RiskEntry

		if err := json.Unmarshal([]byte(r.Content), &entries); err != nil || len(entries) == 0 {
			return ""
		}

		return render.FormatRiskMapTable(entries, riskTableTopN)
	}

	return ""
}

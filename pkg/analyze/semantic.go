package analyze

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/homer-mine/homer/pkg/capability"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// semanticPromptLimit caps how much of a definition's metadata is sent
// per request; summaries beyond this carry no additional signal.
const semanticPromptLimit = 8000

// SemanticAnalyzer produces the LLM-derived trio (SemanticSummary,
// DesignRationale, InvariantDescription) for Function and Type nodes.
// It is the one analyzer whose fanout is I/O-bound: requests run
// concurrently under the pipeline's io_concurrency bound, and results
// are handed back to the coordinator goroutine for persistence.
type SemanticAnalyzer struct {
	Summarizer capability.Summarizer
	Model      string
	Template   string
}

// NewSemanticAnalyzer builds a SemanticAnalyzer. A nil summarizer is
// allowed and makes NeedsRerun report false, the Capability-kind
// "skip the subsystem silently" policy.
func NewSemanticAnalyzer(summarizer capability.Summarizer, model, template string) *SemanticAnalyzer {
	return &SemanticAnalyzer{Summarizer: summarizer, Model: model, Template: template}
}

func (a *SemanticAnalyzer) Name() string { return "semantic" }

func (a *SemanticAnalyzer) Produces() []homergraph.AnalysisKind {
	return []homergraph.AnalysisKind{
		homergraph.AnalysisSemanticSummary,
		homergraph.AnalysisDesignRationale,
		homergraph.AnalysisInvariantDescription,
	}
}

func (a *SemanticAnalyzer) Requires() []homergraph.AnalysisKind { return nil }

// NeedsRerun reports false when no summarizer is configured. With one
// configured it reports true and lets Run's per-node input-hash check
// skip nodes whose results are already current — conservative semantic
// invalidation means only a node's own content change staled them.
func (a *SemanticAnalyzer) NeedsRerun(context.Context, *homergraph.Store) (bool, error) {
	return a.Summarizer != nil, nil
}

// semanticSubject is one node needing summarization.
type semanticSubject struct {
	node      homergraph.Node
	inputHash string
}

// semanticOutcome is one node's completed request, handed back to the
// coordinator for persistence.
type semanticOutcome struct {
	subject semanticSubject
	payload map[string]any
	err     error
}

func (a *SemanticAnalyzer) Run(ctx context.Context, store *homergraph.Store, cfg *config.Config) (Stats, error) {
	stats := Stats{}

	if a.Summarizer == nil {
		stats.Skipped = true

		return stats, nil
	}

	subjects, err := a.staleSubjects(ctx, store)
	if err != nil {
		return stats, fmt.Errorf("list semantic subjects: %w", err)
	}

	outcomes := a.summarizeAll(ctx, cfg.Pipeline.IOConcurrency, subjects)

	for _, outcome := range outcomes {
		if outcome.err != nil {
			stats.Errors = append(stats.Errors, outcome.err)

			continue
		}

		written, writeErr := a.persist(ctx, store, outcome)
		if writeErr != nil {
			return stats, writeErr
		}

		stats.NodesWritten += written
	}

	return stats, nil
}

// staleSubjects returns every Function/Type node whose semantic results
// are missing or were computed from a different content hash.
func (a *SemanticAnalyzer) staleSubjects(ctx context.Context, store *homergraph.Store) ([]semanticSubject, error) {
	var subjects []semanticSubject

	for _, kind := range []homergraph.NodeKind{homergraph.NodeFunction, homergraph.NodeType} {
		nodes, err := store.ListNodesByKind(ctx, kind)
		if err != nil {
			return nil, err
		}

		for _, n := range nodes {
			if n.ContentHash == nil {
				continue
			}

			inputHash := fmt.Sprintf("%016x", *n.ContentHash)

			current, checkErr := a.isCurrent(ctx, store, n.ID, inputHash)
			if checkErr != nil {
				return nil, checkErr
			}

			if current {
				continue
			}

			subjects = append(subjects, semanticSubject{node: n, inputHash: inputHash})
		}
	}

	return subjects, nil
}

func (a *SemanticAnalyzer) isCurrent(ctx context.Context, store *homergraph.Store, nodeID int64, inputHash string) (bool, error) {
	for _, kind := range a.Produces() {
		result, err := store.GetAnalysis(ctx, nodeID, kind)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}

			return false, fmt.Errorf("read %s result: %w", kind, err)
		}

		if result.InputHash != inputHash {
			return false, nil
		}
	}

	return true, nil
}

// summarizeAll fans requests out under the io_concurrency bound and
// collects every outcome. Request failures are per-item outcomes, not
// a group abort: one refused summary must not discard the rest.
func (a *SemanticAnalyzer) summarizeAll(ctx context.Context, ioConcurrency int, subjects []semanticSubject) []semanticOutcome {
	if ioConcurrency < 1 {
		ioConcurrency = 1
	}

	outcomes := make([]semanticOutcome, len(subjects))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ioConcurrency)

	for i, subject := range subjects {
		group.Go(func() error {
			payload, err := a.summarizeOne(groupCtx, subject)
			outcomes[i] = semanticOutcome{subject: subject, payload: payload, err: err}

			return nil
		})
	}

	_ = group.Wait()

	return outcomes
}

func (a *SemanticAnalyzer) summarizeOne(ctx context.Context, subject semanticSubject) (map[string]any, error) {
	content := a.buildPrompt(subject)

	payload, err := a.Summarizer.Summarize(ctx, capability.SummaryRequest{
		PromptTemplateVersion: a.Template,
		ModelID:               a.Model,
		Content:               content,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.KindOf(err), a.Name(), subject.node.Name, "summarize: %w", err)
	}

	return payload, nil
}

// buildPrompt renders the template for one definition. The subject's
// content hash rides in the prompt so the summarizer's cache key
// reflects it per the capability contract.
func (a *SemanticAnalyzer) buildPrompt(subject semanticSubject) string {
	doc, _ := subject.node.Metadata["doc_comment"].(string)
	if len(doc) > semanticPromptLimit {
		doc = doc[:semanticPromptLimit]
	}

	return fmt.Sprintf(
		"Summarize the code entity below. Reply with JSON keys "+
			"\"summary\", \"design_rationale\", and \"invariants\".\n"+
			"Name: %s\nKind: %s\nContent hash: %s\nDoc comment:\n%s\n",
		subject.node.Name, subject.node.Kind, subject.inputHash, doc,
	)
}

// persist splits one response payload into the three semantic results.
func (a *SemanticAnalyzer) persist(ctx context.Context, store *homergraph.Store, outcome semanticOutcome) (int, error) {
	fields := []struct {
		kind homergraph.AnalysisKind
		key  string
	}{
		{homergraph.AnalysisSemanticSummary, "summary"},
		{homergraph.AnalysisDesignRationale, "design_rationale"},
		{homergraph.AnalysisInvariantDescription, "invariants"},
	}

	written := 0

	for _, field := range fields {
		value, ok := outcome.payload[field.key]
		if !ok {
			continue
		}

		payload := map[string]any{
			field.key: value,
			"model":   a.Model,
		}

		if err := store.WriteAnalysis(ctx, outcome.subject.node.ID, field.kind, payload, outcome.subject.inputHash); err != nil {
			return written, fmt.Errorf("write %s for %s: %w", field.kind, outcome.subject.node.Name, err)
		}

		written++
	}

	return written, nil
}

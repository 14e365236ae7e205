package render_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/homer-mine/homer/pkg/render"
)

func TestFormatStageTable_IncludesEachStage(t *testing.T) {
	t.Parallel()

	out := render.FormatStageTable([]render.StageSummary{
		{Name: "git", ItemsProcessed: 42, NodesCreated: 10, Duration: 1500 * time.Millisecond},
		{Name: "structure", Skipped: true},
	})

	assert.Contains(t, out, "git")
	assert.Contains(t, out, "structure (skipped)")
	assert.Contains(t, out, "42")
}

func TestFormatErrorList_EmptyReportsNoErrors(t *testing.T) {
	t.Parallel()
	assert.Contains(t, render.FormatErrorList(nil), "no errors")
}

func TestFormatErrorList_ListsEachEntry(t *testing.T) {
	t.Parallel()

	out := render.FormatErrorList([]render.ErrorEntry{
		{Component: "graph", Subject: "pkg/foo.go", Kind: "input"},
	})

	assert.Contains(t, out, "graph")
	assert.Contains(t, out, "pkg/foo.go")
}

func TestFormatRiskMapTable_LimitsToN(t *testing.T) {
	t.Parallel()

	entries := []render.RiskEntry{
		{FilePath: "a.go", RiskLevel: "critical"},
		{FilePath: "b.go", RiskLevel: "low"},
	}

	out := render.FormatRiskMapTable(entries, 1)

	assert.Contains(t, out, "a.go")
	assert.NotContains(t, out, "b.go")
}

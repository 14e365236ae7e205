package render

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/homer-mine/homer/pkg/homergraph"
)

// salienceBucketCount buckets the [0,1] composite salience range into
// this many equal-width bins for the distribution chart.
const salienceBucketCount = 10

// DashboardRenderer emits a static HTML dashboard charting composite
// salience distribution, co-change cluster sizes, and community sizes.
type DashboardRenderer struct{}

// NewDashboardRenderer builds a DashboardRenderer.
func NewDashboardRenderer() *DashboardRenderer { return &DashboardRenderer{} }

// Path implements Renderer.
func (r *DashboardRenderer) Path() string { return ".homer/report.html" }

// Render implements Renderer.
func (r *DashboardRenderer) Render(ctx context.Context, store *homergraph.Store) (string, error) {
	salience, err := allSalienceScores(ctx, store)
	if err != nil {
		return "", fmt.Errorf("load salience scores: %w", err)
	}

	coChangeSizes, err := coChangeClusterSizes(ctx, store)
	if err != nil {
		return "", fmt.Errorf("load co-change cluster sizes: %w", err)
	}

	communitySizes, err := communitySizes(ctx, store)
	if err != nil {
		return "", fmt.Errorf("load community sizes: %w", err)
	}

	page := components.NewPage()
	page.PageTitle = "Homer Dashboard"
	page.AddCharts(
		salienceDistributionChart(salience),
		sizeHistogramChart("Co-Change Cluster Sizes", coChangeSizes),
		sizeHistogramChart("Community Sizes", communitySizes),
	)

	var buf strings.Builder
	if renderErr := page.Render(&buf); renderErr != nil {
		return "", fmt.Errorf("render dashboard html: %w", renderErr)
	}

	return buf.String(), nil
}

func allSalienceScores(ctx context.Context, store *homergraph.Store) ([]float64, error) {
	files, err := store.ListNodesByKind(ctx, homergraph.NodeFile)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(files))

	for _, f := range files {
		result, analysisErr := store.GetAnalysis(ctx, f.ID, homergraph.AnalysisCompositeSalience)
		if analysisErr != nil {
			continue
		}

		scores = append(scores, asFloat(result.Payload["score"]))
	}

	return scores, nil
}

func coChangeClusterSizes(ctx context.Context, store *homergraph.Store) ([]int, error) {
	edges, err := store.ListHyperedgesByKind(ctx, homergraph.EdgeCoChanges)
	if err != nil {
		return nil, err
	}

	sizes := make([]int, len(edges))
	for i, e := range edges {
		sizes[i] = len(e.Members)
	}

	return sizes, nil
}

func communitySizes(ctx context.Context, store *homergraph.Store) ([]int, error) {
	kinds := []homergraph.NodeKind{homergraph.NodeFile, homergraph.NodeFunction, homergraph.NodeType, homergraph.NodeModule}

	seen := map[int64]bool{}
	sizeByCommunity := map[int]int{}

	for _, kind := range kinds {
		nodes, err := store.ListNodesByKind(ctx, kind)
		if err != nil {
			return nil, err
		}

		for _, n := range nodes {
			result, analysisErr := store.GetAnalysis(ctx, n.ID, homergraph.AnalysisCommunityAssignment)
			if analysisErr != nil || seen[n.ID] {
				continue
			}

			seen[n.ID] = true

			communityID := int(asFloat(result.Payload["community_id"]))
			size := int(asFloat(result.Payload["size"]))
			sizeByCommunity[communityID] = size
		}
	}

	ids := make([]int, 0, len(sizeByCommunity))
	for id := range sizeByCommunity {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	sizes := make([]int, len(ids))
	for i, id := range ids {
		sizes[i] = sizeByCommunity[id]
	}

	return sizes, nil
}

func salienceDistributionChart(scores []float64) *charts.Bar {
	buckets := make([]int, salienceBucketCount)

	for _, s := range scores {
		idx := int(s * salienceBucketCount)
		if idx >= salienceBucketCount {
			idx = salienceBucketCount - 1
		}

		if idx < 0 {
			idx = 0
		}

		buckets[idx]++
	}

	labels := make([]string, salienceBucketCount)
	data := make([]opts.BarData, salienceBucketCount)

	for i := range buckets {
		labels[i] = fmt.Sprintf("%.1f-%.1f", float64(i)/salienceBucketCount, float64(i+1)/salienceBucketCount)
		data[i] = opts.BarData{Value: buckets[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Composite Salience Distribution"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Salience Bucket"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "File Count"}),
	)
	bar.SetXAxis(labels).AddSeries("Files", data)

	return bar
}

func sizeHistogramChart(title string, sizes []int) *charts.Bar {
	labels := make([]string, len(sizes))
	data := make([]opts.BarData, len(sizes))

	for i, size := range sizes {
		labels[i] = fmt.Sprintf("#%d", i+1)
		data[i] = opts.BarData{Value: size}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cluster"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Member Count"}),
	)
	bar.SetXAxis(labels).AddSeries("Size", data)

	return bar
}

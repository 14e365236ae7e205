package analyze

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/homer-mine/homer/pkg/alg/stats"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// dayWindow is a lookback window, in days, reported separately within
// ChangeFrequency.
type dayWindow struct {
	days  int
	count int
}

// fileHistory accumulates the Modifies-edge history of one file across
// the whole commit set, the intermediate form both per-file metrics and
// co-change clustering are computed from.
type fileHistory struct {
	fileID     int64
	commits    []commitTouch
	commitSHAs map[int64]bool
}

type commitTouch struct {
	commitID  int64
	timestamp time.Time
	author    string
	linesNet  int
}

// BehavioralAnalyzer computes per-file ChangeFrequency, ChurnVelocity,
// and ContributorConcentration, plus co-change cluster detection over
// the Modifies/Authored hyperedges the Git extractor writes.
type BehavioralAnalyzer struct{}

// NewBehavioralAnalyzer builds a BehavioralAnalyzer.
func NewBehavioralAnalyzer() *BehavioralAnalyzer { return &BehavioralAnalyzer{} }

func (a *BehavioralAnalyzer) Name() string { return "behavioral" }

func (a *BehavioralAnalyzer) Produces() []homergraph.AnalysisKind {
	return []homergraph.AnalysisKind{
		homergraph.AnalysisChangeFrequency,
		homergraph.AnalysisChurnVelocity,
		homergraph.AnalysisContributorConcentration,
		homergraph.AnalysisCoChangeCluster,
	}
}

func (a *BehavioralAnalyzer) Requires() []homergraph.AnalysisKind { return nil }

func (a *BehavioralAnalyzer) NeedsRerun(context.Context, *homergraph.Store) (bool, error) {
	return true, nil
}

func (a *BehavioralAnalyzer) Run(ctx context.Context, store *homergraph.Store, cfg *config.Config) (Stats, error) {
	stats := Stats{}

	histories, err := a.loadHistories(ctx, store)
	if err != nil {
		return stats, fmt.Errorf("load commit history: %w", err)
	}

	allTotals := make([]float64, 0, len(histories))
	for _, hist := range histories {
		allTotals = append(allTotals, float64(len(hist.commits)))
	}

	for fileID, hist := range histories {
		if _, err := a.writeChangeFrequency(ctx, store, fileID, hist, cfg.Behavioral.ChangeFrequencyWindowsDays, allTotals); err != nil {
			return stats, err
		}

		stats.NodesWritten++

		if err := a.writeChurnVelocity(ctx, store, fileID, hist); err != nil {
			return stats, err
		}

		stats.NodesWritten++

		if err := a.writeContributorConcentration(ctx, store, fileID, hist); err != nil {
			return stats, err
		}

		stats.NodesWritten++
	}

	clusterWritten, err := a.detectCoChanges(ctx, store, histories, cfg.Behavioral)
	if err != nil {
		return stats, err
	}

	stats.NodesWritten += clusterWritten

	return stats, nil
}

// loadHistories builds the per-file commit history and a commit->author
// lookup from the Modifies and Authored hyperedges.
func (a *BehavioralAnalyzer) loadHistories(
	ctx context.Context, store *homergraph.Store,
) (map[int64]*fileHistory, error) {
	authoredEdges, err := store.ListHyperedgesByKind(ctx, homergraph.EdgeAuthored)
	if err != nil {
		return nil, fmt.Errorf("list authored edges: %w", err)
	}

	commitAuthor := map[int64]string{}

	for _, e := range authoredEdges {
		var authorID, commitID int64

		for _, m := range e.Members {
			switch m.Role {
			case "author":
				authorID = m.NodeID
			case "commit":
				commitID = m.NodeID
			}
		}

		if authorID == 0 || commitID == 0 {
			continue
		}

		authorNode, err := store.GetNodeByID(ctx, authorID)
		if err != nil {
			continue
		}

		commitAuthor[commitID] = authorNode.Name
	}

	modifiesEdges, err := store.ListHyperedgesByKind(ctx, homergraph.EdgeModifies)
	if err != nil {
		return nil, fmt.Errorf("list modifies edges: %w", err)
	}

	commitCache := map[int64]*homergraph.Node{}
	histories := map[int64]*fileHistory{}

	for _, e := range modifiesEdges {
		var commitID, fileID int64

		for _, m := range e.Members {
			switch m.Role {
			case "commit":
				commitID = m.NodeID
			case "file":
				fileID = m.NodeID
			}
		}

		if commitID == 0 || fileID == 0 {
			continue
		}

		commitNode, ok := commitCache[commitID]
		if !ok {
			var err error

			commitNode, err = store.GetNodeByID(ctx, commitID)
			if err != nil {
				continue
			}

			commitCache[commitID] = commitNode
		}

		ts, _ := commitNode.Metadata["timestamp"].(string)

		parsedTS, tsErr := time.Parse(time.RFC3339, ts)
		if tsErr != nil {
			parsedTS, _ = commitNode.Metadata["timestamp"].(time.Time)
		}

		added, _ := e.Metadata["lines_added"].(float64)
		deleted, _ := e.Metadata["lines_deleted"].(float64)

		hist, ok := histories[fileID]
		if !ok {
			hist = &fileHistory{fileID: fileID, commitSHAs: map[int64]bool{}}
			histories[fileID] = hist
		}

		hist.commits = append(hist.commits, commitTouch{
			commitID:  commitID,
			timestamp: parsedTS,
			author:    commitAuthor[commitID],
			linesNet:  int(added) - int(deleted),
		})
		hist.commitSHAs[commitID] = true
	}

	for _, hist := range histories {
		sort.Slice(hist.commits, func(i, j int) bool { return hist.commits[i].timestamp.Before(hist.commits[j].timestamp) })
	}

	return histories, nil
}

func (a *BehavioralAnalyzer) writeChangeFrequency(
	ctx context.Context, store *homergraph.Store, fileID int64, hist *fileHistory, windows []int, allTotals []float64,
) (int, error) {
	now := latestTimestamp(hist)

	windowCounts := make([]dayWindow, 0, len(windows))

	for _, days := range windows {
		cutoff := now.AddDate(0, 0, -days)
		count := 0

		for _, c := range hist.commits {
			if !c.timestamp.Before(cutoff) {
				count++
			}
		}

		windowCounts = append(windowCounts, dayWindow{days: days, count: count})
	}

	payload := map[string]any{
		"total":           len(hist.commits),
		"windows":         windowCountsToPayload(windowCounts),
		"percentile_rank": stats.PercentileRank(allTotals, float64(len(hist.commits))),
	}

	if err := store.WriteAnalysis(ctx, fileID, homergraph.AnalysisChangeFrequency, payload, ""); err != nil {
		return 0, fmt.Errorf("write change frequency for %d: %w", fileID, err)
	}

	return len(hist.commits), nil
}

func windowCountsToPayload(windows []dayWindow) map[string]any {
	out := make(map[string]any, len(windows))
	for _, w := range windows {
		out[fmt.Sprintf("%dd", w.days)] = w.count
	}

	return out
}

// writeChurnVelocity buckets commits by calendar month and fits the
// slope of monthly change counts via simple linear regression over bucket
// index, alongside net LOC growth across the full history.
func (a *BehavioralAnalyzer) writeChurnVelocity(ctx context.Context, store *homergraph.Store, fileID int64, hist *fileHistory) error {
	monthly := map[string]int{}

	var netLOC int

	for _, c := range hist.commits {
		key := c.timestamp.Format("2006-01")
		monthly[key]++
		netLOC += c.linesNet
	}

	months := make([]string, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}

	sort.Strings(months)

	slope := linearSlope(months, monthly)

	smoothed, volatility := smoothMonthlyChurn(months, monthly)

	payload := map[string]any{
		"monthly_slope":    slope,
		"net_loc_growth":   netLOC,
		"months_active":    len(months),
		"smoothed_churn":   smoothed,
		"churn_volatility": volatility,
	}

	if err := store.WriteAnalysis(ctx, fileID, homergraph.AnalysisChurnVelocity, payload, ""); err != nil {
		return fmt.Errorf("write churn velocity for %d: %w", fileID, err)
	}

	return nil
}

// churnEMAAlpha weights the most recent month heavily enough that a
// sudden spike in edits is visible within two or three months, without
// the single-month noise a raw slope is prone to.
const churnEMAAlpha = 0.3

// smoothMonthlyChurn feeds the monthly change counts through an EMA (so
// the tail of the history dominates the trend reading) and reports the
// population stddev across the raw monthly counts as a volatility
// measure, both additive to the OLS slope already computed.
func smoothMonthlyChurn(orderedKeys []string, counts map[string]int) (smoothed, volatility float64) {
	if len(orderedKeys) == 0 {
		return 0, 0
	}

	ema := stats.NewEMA(churnEMAAlpha)
	values := make([]float64, len(orderedKeys))

	for i, key := range orderedKeys {
		v := float64(counts[key])
		values[i] = v
		smoothed = ema.Update(v)
	}

	_, volatility = stats.MeanStdDev(values)

	return smoothed, volatility
}

func linearSlope(orderedKeys []string, counts map[string]int) float64 {
	n := len(orderedKeys)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64

	for i, key := range orderedKeys {
		x := float64(i)
		y := float64(counts[key])

		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	return (float64(n)*sumXY - sumX*sumY) / denom
}

func (a *BehavioralAnalyzer) writeContributorConcentration(
	ctx context.Context, store *homergraph.Store, fileID int64, hist *fileHistory,
) error {
	byAuthor := map[string]int{}
	for _, c := range hist.commits {
		if c.author == "" {
			continue
		}

		byAuthor[c.author]++
	}

	authors := make([]string, 0, len(byAuthor))
	for name := range byAuthor {
		authors = append(authors, name)
	}

	sort.Slice(authors, func(i, j int) bool { return byAuthor[authors[i]] > byAuthor[authors[j]] })

	total := len(hist.commits)
	busFactor := busFactor(authors, byAuthor, total)

	topShare := 0.0
	if total > 0 && len(authors) > 0 {
		topShare = float64(byAuthor[authors[0]]) / float64(total)
	}

	payload := map[string]any{
		"unique_authors":   len(authors),
		"bus_factor":       busFactor,
		"top_author_share": topShare,
	}

	if err := store.WriteAnalysis(ctx, fileID, homergraph.AnalysisContributorConcentration, payload, ""); err != nil {
		return fmt.Errorf("write contributor concentration for %d: %w", fileID, err)
	}

	return nil
}

// busFactor is the minimum number of top authors (by change count,
// descending) whose cumulative share reaches 80% of all changes.
func busFactor(authorsDesc []string, byAuthor map[string]int, total int) int {
	if total == 0 {
		return 0
	}

	threshold := 0.8 * float64(total)

	var cumulative float64

	for i, name := range authorsDesc {
		cumulative += float64(byAuthor[name])
		if cumulative >= threshold {
			return i + 1
		}
	}

	return len(authorsDesc)
}

func latestTimestamp(hist *fileHistory) time.Time {
	var latest time.Time
	for _, c := range hist.commits {
		if c.timestamp.After(latest) {
			latest = c.timestamp
		}
	}

	return latest
}

// detectCoChanges computes pairwise Jaccard similarity over each file's
// commit-touch set, seeds clusters from confidence > 0.5 pairs, and
// greedily grows each cluster with candidates that co-change with every
// existing member at or above min_confidence, stopping when no candidate adds
// marginal gain above min_marginal_gain or the group hits max_group_size.
func (a *BehavioralAnalyzer) detectCoChanges(
	ctx context.Context, store *homergraph.Store, histories map[int64]*fileHistory, cfg config.BehavioralConfig,
) (int, error) {
	fileIDs := make([]int64, 0, len(histories))
	for id := range histories {
		fileIDs = append(fileIDs, id)
	}

	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	pairConfidence := map[[2]int64]float64{}

	for i := 0; i < len(fileIDs); i++ {
		for j := i + 1; j < len(fileIDs); j++ {
			conf := jaccard(histories[fileIDs[i]].commitSHAs, histories[fileIDs[j]].commitSHAs)
			if conf > 0 {
				pairConfidence[[2]int64{fileIDs[i], fileIDs[j]}] = conf
			}
		}
	}

	seeds := seedPairs(pairConfidence, cfg.SeedConfidence)
	clusters := growClusters(seeds, pairConfidence, fileIDs, cfg)

	written := 0

	for _, cluster := range clusters {
		if len(cluster) < 3 {
			continue
		}

		mean := meanConfidence(cluster, pairConfidence)
		if mean < 0.3 {
			continue
		}

		members := make([]homergraph.Member, len(cluster))
		for i, id := range cluster {
			members[i] = homergraph.Member{NodeID: id, Role: "member", Position: i}
		}

		if _, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeCoChanges, Members: members, Confidence: mean,
		}); err != nil {
			return written, fmt.Errorf("upsert co-change cluster: %w", err)
		}

		written++

		if err := writeCoChangeAssignment(ctx, store, cluster, mean); err != nil {
			return written, err
		}
	}

	for pair, conf := range pairConfidence {
		if conf < cfg.MinConfidence || inAnyCluster(pair, clusters) {
			continue
		}

		if _, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeCoChanges,
			Members: []homergraph.Member{
				{NodeID: pair[0], Role: "member", Position: 0},
				{NodeID: pair[1], Role: "member", Position: 1},
			},
			Confidence: conf,
		}); err != nil {
			return written, fmt.Errorf("upsert co-change pair: %w", err)
		}

		written++
	}

	return written, nil
}

func writeCoChangeAssignment(ctx context.Context, store *homergraph.Store, cluster []int64, mean float64) error {
	for _, id := range cluster {
		if err := store.WriteAnalysis(ctx, id, homergraph.AnalysisCoChangeCluster,
			map[string]any{"cluster_size": len(cluster), "mean_confidence": mean}, ""); err != nil {
			return fmt.Errorf("write co-change cluster assignment for %d: %w", id, err)
		}
	}

	return nil
}

func inAnyCluster(pair [2]int64, clusters [][]int64) bool {
	for _, c := range clusters {
		seen0, seen1 := false, false

		for _, id := range c {
			if id == pair[0] {
				seen0 = true
			}

			if id == pair[1] {
				seen1 = true
			}
		}

		if seen0 && seen1 {
			return true
		}
	}

	return false
}

func jaccard(a, b map[int64]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0

	for id := range a {
		if b[id] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func seedPairs(pairConfidence map[[2]int64]float64, threshold float64) [][2]int64 {
	seeds := make([][2]int64, 0)

	for pair, conf := range pairConfidence {
		if conf > threshold {
			seeds = append(seeds, pair)
		}
	}

	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i][0] != seeds[j][0] {
			return seeds[i][0] < seeds[j][0]
		}

		return seeds[i][1] < seeds[j][1]
	})

	return seeds
}

// growClusters seeds one cluster per seed pair and greedily grows it
// with candidate files from the active file set that co-change with
// every existing member at or above min_confidence, stopping when the
// best remaining candidate's marginal gain falls at or below
// min_marginal_gain or the cluster reaches max_group_size.
func growClusters(seeds [][2]int64, pairConfidence map[[2]int64]float64, fileIDs []int64, cfg config.BehavioralConfig) [][]int64 {
	var clusters [][]int64

	consumed := map[int64]bool{}

	for _, seed := range seeds {
		if consumed[seed[0]] || consumed[seed[1]] {
			continue
		}

		cluster := []int64{seed[0], seed[1]}
		consumed[seed[0]] = true
		consumed[seed[1]] = true

		for len(cluster) < cfg.MaxGroupSize {
			bestCandidate, bestGain := int64(0), -1.0

			for _, candidate := range fileIDs {
				if consumed[candidate] || containsID(cluster, candidate) {
					continue
				}

				gain, qualifies := candidateGain(cluster, candidate, pairConfidence, cfg.MinConfidence)
				if qualifies && gain > bestGain {
					bestGain = gain
					bestCandidate = candidate
				}
			}

			if bestCandidate == 0 || bestGain <= cfg.MinMarginalGain {
				break
			}

			cluster = append(cluster, bestCandidate)
			consumed[bestCandidate] = true
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

func candidateGain(cluster []int64, candidate int64, pairConfidence map[[2]int64]float64, minConfidence float64) (float64, bool) {
	var sum float64

	for _, member := range cluster {
		conf, ok := pairConfidence[orderedPair(member, candidate)]
		if !ok || conf < minConfidence {
			return 0, false
		}

		sum += conf
	}

	return sum / float64(len(cluster)), true
}

func orderedPair(a, b int64) [2]int64 {
	if a < b {
		return [2]int64{a, b}
	}

	return [2]int64{b, a}
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}

	return false
}

func meanConfidence(cluster []int64, pairConfidence map[[2]int64]float64) float64 {
	var sum float64

	count := 0

	for i := 0; i < len(cluster); i++ {
		for j := i + 1; j < len(cluster); j++ {
			sum += pairConfidence[orderedPair(cluster[i], cluster[j])]
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return sum / float64(count)
}

// Package homergraph implements the hypergraph store: the embedded
// relational persistence layer for nodes, N-ary hyperedges, analysis
// results, checkpoints, and snapshots that the rest of Homer's pipeline
// reads and writes.
package homergraph

import "time"

// NodeKind is a closed set of conceptual entity kinds.
type NodeKind string

// Recognized node kinds.
const (
	NodeFile         NodeKind = "File"
	NodeFunction     NodeKind = "Function"
	NodeType         NodeKind = "Type"
	NodeModule       NodeKind = "Module"
	NodeCommit       NodeKind = "Commit"
	NodeContributor  NodeKind = "Contributor"
	NodeRelease      NodeKind = "Release"
	NodePullRequest  NodeKind = "PullRequest"
	NodeIssue        NodeKind = "Issue"
	NodeDocument     NodeKind = "Document"
	NodeExternalDep  NodeKind = "ExternalDep"
	NodeConcept      NodeKind = "Concept"
	NodePrompt       NodeKind = "Prompt"
	NodeAgentRule    NodeKind = "AgentRule"
	NodeAgentSession NodeKind = "AgentSession"
)

// nodeKinds is the closed set, for membership checks on external input.
var nodeKinds = map[NodeKind]bool{
	NodeFile: true, NodeFunction: true, NodeType: true, NodeModule: true,
	NodeCommit: true, NodeContributor: true, NodeRelease: true,
	NodePullRequest: true, NodeIssue: true, NodeDocument: true,
	NodeExternalDep: true, NodeConcept: true, NodePrompt: true,
	NodeAgentRule: true, NodeAgentSession: true,
}

// IsNodeKind reports whether s names a recognized node kind.
func IsNodeKind(s string) bool { return nodeKinds[NodeKind(s)] }

// HyperedgeKind is a closed set of N-ary relation kinds.
type HyperedgeKind string

// Recognized hyperedge kinds.
const (
	EdgeModifies            HyperedgeKind = "Modifies"
	EdgeAuthored            HyperedgeKind = "Authored"
	EdgeCalls               HyperedgeKind = "Calls"
	EdgeImports             HyperedgeKind = "Imports"
	EdgeInherits            HyperedgeKind = "Inherits"
	EdgeResolves            HyperedgeKind = "Resolves"
	EdgeReviewed            HyperedgeKind = "Reviewed"
	EdgeBelongsTo           HyperedgeKind = "BelongsTo"
	EdgeIncludes            HyperedgeKind = "Includes"
	EdgeDependsOn           HyperedgeKind = "DependsOn"
	EdgeAliases             HyperedgeKind = "Aliases"
	EdgeDocuments           HyperedgeKind = "Documents"
	EdgePromptReferences    HyperedgeKind = "PromptReferences"
	EdgePromptModifiedFiles HyperedgeKind = "PromptModifiedFiles"
	EdgeRelatedPrompts      HyperedgeKind = "RelatedPrompts"
	EdgeCoChanges           HyperedgeKind = "CoChanges"
	EdgeClusterMembers      HyperedgeKind = "ClusterMembers"
	EdgeEncompasses         HyperedgeKind = "Encompasses"
)

// topologyKinds are the edge kinds whose add/remove triggers global
// centrality invalidation (they define the call/import topology).
var topologyKinds = map[HyperedgeKind]bool{
	EdgeCalls:   true,
	EdgeImports: true,
}

// IsTopologyKind reports whether k's mutation should invalidate centrality results.
func IsTopologyKind(k HyperedgeKind) bool { return topologyKinds[k] }

// AnalysisKind is a closed set of analysis result kinds across four
// analyzer families (behavioral, centrality, community, plus semantic).
type AnalysisKind string

// Recognized analysis kinds.
const (
	AnalysisChangeFrequency          AnalysisKind = "ChangeFrequency"
	AnalysisChurnVelocity            AnalysisKind = "ChurnVelocity"
	AnalysisContributorConcentration AnalysisKind = "ContributorConcentration"
	AnalysisCoChangeCluster          AnalysisKind = "CoChangeCluster"
	AnalysisPageRank                 AnalysisKind = "PageRank"
	AnalysisBetweennessCentrality    AnalysisKind = "BetweennessCentrality"
	AnalysisHITSScore                AnalysisKind = "HITSScore"
	AnalysisCompositeSalience        AnalysisKind = "CompositeSalience"
	AnalysisCommunityAssignment      AnalysisKind = "CommunityAssignment"
	AnalysisSemanticSummary          AnalysisKind = "SemanticSummary"
	AnalysisDesignRationale          AnalysisKind = "DesignRationale"
	AnalysisInvariantDescription     AnalysisKind = "InvariantDescription"
)

// semanticKinds are invalidated conservatively (own content-hash change
// only), never by neighbor/topology changes.
var semanticKinds = map[AnalysisKind]bool{
	AnalysisSemanticSummary:      true,
	AnalysisDesignRationale:      true,
	AnalysisInvariantDescription: true,
}

// IsSemanticKind reports whether k is one of the LLM-derived trio.
func IsSemanticKind(k AnalysisKind) bool { return semanticKinds[k] }

// centralityKinds are invalidated globally on any topology change.
var centralityKinds = map[AnalysisKind]bool{
	AnalysisPageRank:              true,
	AnalysisBetweennessCentrality: true,
	AnalysisHITSScore:             true,
	AnalysisCompositeSalience:     true,
}

// IsCentralityKind reports whether k is a global centrality property.
func IsCentralityKind(k AnalysisKind) bool { return centralityKinds[k] }

// Node is the persisted conceptual entity: (kind, name) is its identity.
type Node struct {
	ID            int64
	Kind          NodeKind
	Name          string
	ContentHash   *uint64
	Metadata      map[string]any
	LastExtracted time.Time
}

// Member is one participant of a hyperedge: a node playing a role at a
// given position. Position is preserved on write but excluded from identity.
type Member struct {
	NodeID   int64
	Role     string
	Position int
}

// Hyperedge is an N-ary typed relation between nodes.
type Hyperedge struct {
	ID          int64
	Kind        HyperedgeKind
	Members     []Member
	Confidence  float64
	Metadata    map[string]any
	IdentityKey string
}

// AnalysisResult is keyed by (node, analysis_kind); at most one per key.
type AnalysisResult struct {
	NodeID     int64
	Kind       AnalysisKind
	Payload    map[string]any
	InputHash  string
	ComputedAt time.Time
}

// Recognized checkpoint keys.
const (
	CheckpointGitLastSHA       = "git_last_sha"
	CheckpointStructureLastSHA = "structure_last_sha"
	CheckpointGraphLastSHA     = "graph_last_sha"
	CheckpointDocumentLastSHA  = "document_last_sha"
)

// ForgeCursorKey names the per-forge checkpoint key for a given forge provider.
func ForgeCursorKey(provider string) string { return "forge_cursor:" + provider }

// PromptCursorKey names the per-prompt-source checkpoint key.
func PromptCursorKey(source string) string { return "prompt_cursor:" + source }

// Snapshot is an immutable labeled copy of the node/edge sets.
type Snapshot struct {
	ID        int64
	Label     string
	CreatedAt time.Time
}

// SnapshotDiff summarizes what changed between two snapshots by identity.
type SnapshotDiff struct {
	AddedNodes   []string // "kind:name"
	RemovedNodes []string
	AddedEdges   []string // identity_key
	RemovedEdges []string
}

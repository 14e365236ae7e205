package snapshot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/persist"
)

// Archive is the on-disk form of one exported snapshot: the identity
// sets only, matching what DiffSnapshots compares. Node internals are
// not exported; an archive is a portable identity record, not a backup.
type Archive struct {
	Label      string   `json:"label"`
	CreatedAt  string   `json:"created_at"`
	Nodes      []string `json:"nodes"`
	Edges      []string `json:"edges"`
	ExportedAt string   `json:"exported_at"`
}

// archiveCodec compresses the JSON archive; identity sets are highly
// repetitive and compress an order of magnitude.
var archiveCodec = persist.NewLZ4Codec(persist.NewJSONCodec())

// Export writes a labeled snapshot's identity sets to
// <dir>/<label>.json.lz4.
func Export(ctx context.Context, store *homergraph.Store, label, dir string) (string, error) {
	snapshots, err := store.ListSnapshots(ctx)
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}

	var created time.Time

	found := false

	for _, snap := range snapshots {
		if snap.Label == label {
			created = snap.CreatedAt
			found = true

			break
		}
	}

	if !found {
		return "", fmt.Errorf("export snapshot: %w: %s", homergraph.ErrSnapshotNotFound, label)
	}

	nodes, edges, err := store.SnapshotContents(ctx, label)
	if err != nil {
		return "", fmt.Errorf("load snapshot contents: %w", err)
	}

	if mkdirErr := os.MkdirAll(dir, 0o755); mkdirErr != nil {
		return "", fmt.Errorf("create export dir: %w", mkdirErr)
	}

	persister := persist.NewPersister[Archive](label, archiveCodec)

	saveErr := persister.Save(dir, func() *Archive {
		return &Archive{
			Label:      label,
			CreatedAt:  created.UTC().Format(time.RFC3339),
			Nodes:      nodes,
			Edges:      edges,
			ExportedAt: time.Now().UTC().Format(time.RFC3339),
		}
	})
	if saveErr != nil {
		return "", fmt.Errorf("write snapshot archive: %w", saveErr)
	}

	return dir + "/" + label + archiveCodec.Extension(), nil
}

// ReadArchive loads a previously exported archive by label.
func ReadArchive(dir, label string) (*Archive, error) {
	persister := persist.NewPersister[Archive](label, archiveCodec)

	var out *Archive

	err := persister.Load(dir, func(a *Archive) { out = a })
	if err != nil {
		return nil, fmt.Errorf("read snapshot archive: %w", err)
	}

	return out, nil
}

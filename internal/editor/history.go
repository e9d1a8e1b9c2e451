package editor

import (
	"github.com/cloudnote/cloudnote/backend/go-services/internal/draft"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
)

// ReplayHistory reconstructs the note at target version by applying buffered
// patches on top of a snapshot. The entries must form an unbroken chain from
// the snapshot's version up to target; the draft buffer only keeps a bounded
// window, so replay returns nil when the chain has gaps or falls short.
func ReplayHistory(snapshot note.Note, entries []draft.HistoryEntry, target int64) (*note.Note, error) {
	if target == snapshot.Version {
		cp := snapshot
		return &cp, nil
	}
	if target < snapshot.Version {
		return nil, nil
	}

	byVersion := make(map[int64]draft.HistoryEntry, len(entries))
	for _, e := range entries {
		byVersion[e.FromVersion] = e
	}

	cur := snapshot
	for v := snapshot.Version; v < target; v++ {
		e, ok := byVersion[v]
		if !ok {
			return nil, nil
		}
		next, err := patch.Apply(cur, e.Ops)
		if err != nil {
			return nil, err
		}
		next.Version = v + 1
		cur = next
	}
	cur.Version = target
	return &cur, nil
}

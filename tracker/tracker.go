// Package tracker records the patches emitted by a tree, keeps named snapshots of it and
// restores earlier states by replaying recorded patches onto a snapshot.
package tracker

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"

	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

// Record is one recorded patch. IDs grow with recording order.
type Record struct {
	ID    snowflake.ID
	Time  time.Time
	Patch jsonpatch.Patch
}

// Recorder records every patch emitted under a node.
type Recorder struct {
	node       *tree.Node
	generator  *snowflake.Node
	maxHistory int
	snapshots  *SnapshotManager

	mutex   sync.RWMutex
	records []Record
	dispose func()
}

// NewRecorder starts recording the patches emitted under n.
func NewRecorder(n *tree.Node, opts ...Option) (*Recorder, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	generator, err := snowflake.NewNode(options.NodeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create record id generator")
	}

	r := &Recorder{
		node:       n,
		generator:  generator,
		maxHistory: options.MaxHistory,
		snapshots:  NewSnapshotManager(),
	}
	r.dispose = n.OnPatch(r.record)
	return r, nil
}

func (r *Recorder) record(p jsonpatch.Patch, _ *tree.Node) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.records = append(r.records, Record{
		ID:    r.generator.Generate(),
		Time:  time.Now(),
		Patch: p,
	})
	if r.maxHistory > 0 && len(r.records) > r.maxHistory {
		r.records = append([]Record(nil), r.records[len(r.records)-r.maxHistory:]...)
	}
}

// Stop stops recording. Recorded history is kept.
func (r *Recorder) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.dispose != nil {
		r.dispose()
		r.dispose = nil
	}
}

// Len returns the number of kept records.
func (r *Recorder) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.records)
}

// Records returns a copy of the kept records, oldest first.
func (r *Recorder) Records() []Record {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Record(nil), r.records...)
}

// Patches returns the kept patches, oldest first.
func (r *Recorder) Patches() []jsonpatch.Patch {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]jsonpatch.Patch, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Patch
	}
	return out
}

// Since returns the records recorded after id.
func (r *Recorder) Since(id snowflake.ID) []Record {
	return r.Between(id, 0)
}

// Between returns the records after from and up to and including until.
// A zero until means no upper bound.
func (r *Recorder) Between(from, until snowflake.ID) []Record {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.ID <= from {
			continue
		}
		if until != 0 && rec.ID > until {
			break
		}
		out = append(out, rec)
	}
	return out
}

// Last returns the ID of the newest record, or 0.
func (r *Recorder) Last() snowflake.ID {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if len(r.records) == 0 {
		return 0
	}
	return r.records[len(r.records)-1].ID
}

// Snapshots returns the snapshot manager of the recorder.
func (r *Recorder) Snapshots() *SnapshotManager {
	return r.snapshots
}

// Checkpoint stores a named snapshot of the recorded node, tagged with the newest
// record so that later records can be replayed onto it.
func (r *Recorder) Checkpoint(id string) (*Snapshot, error) {
	return r.snapshots.CreateSnapshot(r.node, id, r.Last())
}

// TimeTravel restores the checkpoint snapshotID as a new tree of typ and replays the
// records following it up to and including until (0 replays everything).
func (r *Recorder) TimeTravel(typ tree.ComplexType, snapshotID string, until snowflake.ID) (tree.Instance, error) {
	snapshot, err := r.snapshots.GetSnapshot(snapshotID)
	if err != nil {
		return nil, err
	}
	inst, err := snapshot.Restore(typ)
	if err != nil {
		return nil, err
	}
	if err := Replay(inst.Handle(), r.Between(snapshot.LastRecord, until)); err != nil {
		return nil, err
	}
	return inst, nil
}

// Replay applies the patches of records onto target, in order.
func Replay(target *tree.Node, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	patches := make([]jsonpatch.Patch, len(records))
	for i, rec := range records {
		patches[i] = rec.Patch
	}
	if err := tree.ApplyPatches(target, patches...); err != nil {
		return errors.Wrap(err, "failed to replay records")
	}
	return nil
}

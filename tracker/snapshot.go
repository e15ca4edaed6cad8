package tracker

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/tree"
)

// Snapshot is the serialized state of a tree at one point in time.
type Snapshot struct {
	// ID is the name of the snapshot.
	ID string
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time
	// Data is the JSON encoded tree snapshot.
	Data []byte
	// LastRecord is the newest record included in the snapshot, or 0.
	LastRecord snowflake.ID
}

// NewSnapshot serializes the current state of n.
func NewSnapshot(n *tree.Node, id string, lastRecord snowflake.ID) (*Snapshot, error) {
	data, err := json.Marshal(n.Snapshot())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize %s", n.Type().Name())
	}
	return &Snapshot{
		ID:         id,
		Timestamp:  time.Now(),
		Data:       data,
		LastRecord: lastRecord,
	}, nil
}

// Value decodes the stored snapshot.
func (s *Snapshot) Value() (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(s.Data, &v); err != nil {
		return nil, errors.Wrapf(err, "failed to decode snapshot %s", s.ID)
	}
	return v, nil
}

// Restore creates a new tree of typ from the snapshot.
func (s *Snapshot) Restore(typ tree.ComplexType, opts ...tree.CreateOption) (tree.Instance, error) {
	v, err := s.Value()
	if err != nil {
		return nil, err
	}
	return tree.Create(typ, v, opts...)
}

// SnapshotManager keeps named snapshots ordered by time.
type SnapshotManager struct {
	mutex     sync.RWMutex
	snapshots map[string]*Snapshot
	order     []*Snapshot
}

// NewSnapshotManager creates an empty snapshot manager.
func NewSnapshotManager() *SnapshotManager {
	return &SnapshotManager{
		snapshots: make(map[string]*Snapshot),
	}
}

// CreateSnapshot stores a snapshot of n under id, replacing any snapshot with that id.
func (m *SnapshotManager) CreateSnapshot(n *tree.Node, id string, lastRecord snowflake.ID) (*Snapshot, error) {
	snapshot, err := NewSnapshot(n, id, lastRecord)
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.snapshots[id]; ok {
		m.remove(id)
	}
	m.snapshots[id] = snapshot
	m.order = append(m.order, snapshot)
	sort.SliceStable(m.order, func(i, j int) bool {
		return m.order[i].Timestamp.Before(m.order[j].Timestamp)
	})
	return snapshot, nil
}

// GetSnapshot returns the snapshot named id.
func (m *SnapshotManager) GetSnapshot(id string) (*Snapshot, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	snapshot, ok := m.snapshots[id]
	if !ok {
		return nil, common.ErrNodeNotFound{Path: "snapshot/" + id}
	}
	return snapshot, nil
}

// GetSnapshotByTime returns the newest snapshot taken at or before t.
func (m *SnapshotManager) GetSnapshotByTime(t time.Time) (*Snapshot, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var found *Snapshot
	for _, s := range m.order {
		if s.Timestamp.After(t) {
			break
		}
		found = s
	}
	if found == nil {
		return nil, common.ErrNodeNotFound{Path: "snapshot@" + t.Format(time.RFC3339Nano)}
	}
	return found, nil
}

// ListSnapshots returns every snapshot, oldest first.
func (m *SnapshotManager) ListSnapshots() []*Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]*Snapshot(nil), m.order...)
}

// DeleteSnapshot removes the snapshot named id.
func (m *SnapshotManager) DeleteSnapshot(id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return common.ErrNodeNotFound{Path: "snapshot/" + id}
	}
	m.remove(id)
	return nil
}

func (m *SnapshotManager) remove(id string) {
	delete(m.snapshots, id)
	for i, s := range m.order {
		if s.ID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

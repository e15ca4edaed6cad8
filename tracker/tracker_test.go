package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totomo/luvtree/collection"
	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

var stringList = collection.Of(tree.String)

func TestRecorderRecordsPatches(t *testing.T) {
	a, err := stringList.Create([]interface{}{"a"})
	require.NoError(t, err)
	r, err := NewRecorder(a.Handle())
	require.NoError(t, err)

	require.NoError(t, a.Push("b"))
	first := r.Last()
	require.NoError(t, a.Set(0, "z"))

	assert.Equal(t, []jsonpatch.Patch{
		{Op: jsonpatch.OpAdd, Path: "/1", Value: "b"},
		{Op: jsonpatch.OpReplace, Path: "/0", Value: "z"},
	}, r.Patches())

	records := r.Records()
	require.Len(t, records, 2)
	assert.Less(t, int64(records[0].ID), int64(records[1].ID))
	assert.Equal(t, first, records[0].ID)

	since := r.Since(first)
	require.Len(t, since, 1)
	assert.Equal(t, jsonpatch.OpReplace, since[0].Patch.Op)

	r.Stop()
	require.NoError(t, a.Push("c"))
	assert.Equal(t, 2, r.Len())
}

func TestRecorderMaxHistory(t *testing.T) {
	a, err := stringList.Create(nil)
	require.NoError(t, err)
	r, err := NewRecorder(a.Handle(), WithMaxHistory(2))
	require.NoError(t, err)

	require.NoError(t, a.Push("a", "b", "c"))

	patches := r.Patches()
	require.Len(t, patches, 2)
	assert.Equal(t, "/1", patches[0].Path)
	assert.Equal(t, "/2", patches[1].Path)
}

func TestRecorderRejectsInvalidNodeID(t *testing.T) {
	a, err := stringList.Create(nil)
	require.NoError(t, err)
	_, err = NewRecorder(a.Handle(), WithNodeID(5000))
	assert.Error(t, err)
}

func TestReplayReproducesSource(t *testing.T) {
	source, err := stringList.Create([]interface{}{"a", "b", "c", "d"})
	require.NoError(t, err)
	replica, err := stringList.Create(source.Snapshot())
	require.NoError(t, err)
	r, err := NewRecorder(source.Handle())
	require.NoError(t, err)

	_, err = source.Splice(1, 2, "x", "y", "z")
	require.NoError(t, err)
	_, err = source.Pop()
	require.NoError(t, err)

	require.NoError(t, Replay(replica.Handle(), r.Records()))
	assert.Equal(t, source.Snapshot(), replica.Snapshot())
	assert.Equal(t, []interface{}{"a", "x", "y", "z"}, replica.Snapshot())
}

func TestCheckpointAndTimeTravel(t *testing.T) {
	a, err := stringList.Create([]interface{}{"a"})
	require.NoError(t, err)
	r, err := NewRecorder(a.Handle())
	require.NoError(t, err)

	_, err = r.Checkpoint("start")
	require.NoError(t, err)
	require.NoError(t, a.Push("b"))
	afterB := r.Last()
	require.NoError(t, a.Push("c"))

	inst, err := r.TimeTravel(stringList, "start", afterB)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, inst.(*collection.Array).Snapshot())

	inst, err = r.TimeTravel(stringList, "start", 0)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c"}, inst.(*collection.Array).Snapshot())

	_, err = r.Checkpoint("end")
	require.NoError(t, err)
	inst, err = r.TimeTravel(stringList, "end", 0)
	require.NoError(t, err)
	assert.Equal(t, a.Snapshot(), inst.(*collection.Array).Snapshot())

	_, err = r.TimeTravel(stringList, "missing", 0)
	var notFound common.ErrNodeNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestSnapshotManager(t *testing.T) {
	a, err := stringList.Create([]interface{}{"a"})
	require.NoError(t, err)
	m := NewSnapshotManager()
	before := time.Now().Add(-time.Hour)

	s1, err := m.CreateSnapshot(a.Handle(), "s1", 0)
	require.NoError(t, err)
	require.NoError(t, a.Push("b"))
	_, err = m.CreateSnapshot(a.Handle(), "s2", 0)
	require.NoError(t, err)

	assert.JSONEq(t, `["a"]`, string(s1.Data))
	list := m.ListSnapshots()
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)

	latest, err := m.GetSnapshotByTime(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.ID)
	_, err = m.GetSnapshotByTime(before)
	assert.Error(t, err)

	restored, err := s1.Restore(stringList)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, restored.(*collection.Array).Snapshot())

	require.NoError(t, m.DeleteSnapshot("s1"))
	assert.Error(t, m.DeleteSnapshot("s1"))
	_, err = m.GetSnapshot("s1")
	assert.Error(t, err)
	assert.Len(t, m.ListSnapshots(), 1)
}

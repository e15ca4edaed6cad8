package collection

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

var (
	point = tree.Model("Point", tree.Prop("x", tree.Number))
	todo  = tree.Model("Todo", tree.Prop("id", tree.Identifier), tree.Prop("title", tree.String))
)

func recordPatches(a *Array) *[]jsonpatch.Patch {
	var out []jsonpatch.Patch
	a.Handle().OnPatch(func(p jsonpatch.Patch, _ *tree.Node) {
		out = append(out, p)
	})
	return &out
}

func pt(x float64) map[string]interface{} {
	return map[string]interface{}{"x": x}
}

func td(id, title string) map[string]interface{} {
	return map[string]interface{}{"id": id, "title": title}
}

// assertReplays checks that the recorded patches turn before into the current content.
func assertReplays(t *testing.T, a *Array, before interface{}, patches []jsonpatch.Patch) {
	t.Helper()
	replayed, err := jsonpatch.ApplyToValue(before, patches)
	require.NoError(t, err)
	expected, err := jsonpatch.ApplyToValue(a.Snapshot(), nil)
	require.NoError(t, err)
	assert.Equal(t, expected, replayed)
}

func TestSpliceEmitsRemovesThenAdds(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"A", "B", "C"})
	require.NoError(t, err)
	before := a.Snapshot()
	patches := recordPatches(a)

	removed, err := a.Splice(1, 1, "X", "Y")
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"B"}, removed)
	assert.Equal(t, []interface{}{"A", "X", "Y", "C"}, a.Snapshot())
	assert.Equal(t, []jsonpatch.Patch{
		{Op: jsonpatch.OpRemove, Path: "/1"},
		{Op: jsonpatch.OpAdd, Path: "/1", Value: "X"},
		{Op: jsonpatch.OpAdd, Path: "/2", Value: "Y"},
	}, *patches)
	assertReplays(t, a, before, *patches)
}

func TestSpliceRemovesInDescendingOrder(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	before := a.Snapshot()
	patches := recordPatches(a)

	_, err = a.Splice(1, 3)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"a", "e"}, a.Snapshot())
	require.Len(t, *patches, 3)
	for i, want := range []string{"/3", "/2", "/1"} {
		assert.Equal(t, jsonpatch.OpRemove, (*patches)[i].Op)
		assert.Equal(t, want, (*patches)[i].Path)
	}
	assertReplays(t, a, before, *patches)
}

func TestSpliceReusesNodesPositionally(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2), pt(3)})
	require.NoError(t, err)
	n0, n1, n2 := a.Node(0), a.Node(1), a.Node(2)
	before := a.Snapshot()
	patches := recordPatches(a)

	_, err = a.Splice(0, 2, pt(10))
	require.NoError(t, err)

	assert.Same(t, n0, a.Node(0), "aligned node is updated in place")
	assert.Same(t, n2, a.Node(1))
	assert.Equal(t, "/1", n2.Path(), "survivor is reindexed")
	assert.Nil(t, n1.Parent(), "trailing removed node is detached")
	assert.True(t, n1.IsAlive())
	assert.Equal(t, []interface{}{pt(10), pt(3)}, a.Snapshot())
	assertReplays(t, a, before, *patches)
}

func TestSpliceReindexesSurvivorsOnInsert(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2)})
	require.NoError(t, err)
	n1 := a.Node(1)

	require.NoError(t, a.Insert(0, pt(0), pt(0.5)))

	assert.Same(t, n1, a.Node(3))
	assert.Equal(t, "/3", n1.Path())
	for i := 0; i < a.Len(); i++ {
		assert.Same(t, a.Handle(), a.Node(i).Parent())
	}
}

func TestSetReplacesAndDetaches(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2)})
	require.NoError(t, err)
	old := a.Node(0)
	patches := recordPatches(a)

	require.NoError(t, a.Set(0, pt(5)))

	assert.NotSame(t, old, a.Node(0), "a different element does not inherit the identity")
	assert.Nil(t, old.Parent())
	assert.Equal(t, []jsonpatch.Patch{
		{Op: jsonpatch.OpReplace, Path: "/0", Value: pt(5)},
	}, *patches)
}

func TestSetIdenticalValueIsNoop(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1)})
	require.NoError(t, err)
	s, err := Of(tree.String).Create([]interface{}{"A"})
	require.NoError(t, err)
	nodePatches := recordPatches(a)
	scalarPatches := recordPatches(s)
	observed := 0
	a.Observe(func(*Array, Edit) { observed++ })

	require.NoError(t, a.Set(0, a.Get(0)))
	require.NoError(t, s.Set(0, "A"))

	assert.Empty(t, *nodePatches)
	assert.Empty(t, *scalarPatches)
	assert.Zero(t, observed)
}

func TestSetAtLengthAppends(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"A"})
	require.NoError(t, err)
	patches := recordPatches(a)

	require.NoError(t, a.Set(1, "B"))

	assert.Equal(t, []interface{}{"A", "B"}, a.Snapshot())
	assert.Equal(t, []jsonpatch.Patch{{Op: jsonpatch.OpAdd, Path: "/1", Value: "B"}}, *patches)
}

func TestIdentityReconciliation(t *testing.T) {
	a, err := Of(todo).Create([]interface{}{td("1", "a"), td("2", "b")})
	require.NoError(t, err)
	node1, node2 := a.Node(0), a.Node(1)
	before := a.Snapshot()
	patches := recordPatches(a)

	require.NoError(t, a.ApplySnapshot([]interface{}{td("2", "B"), td("3", "c")}))

	assert.Same(t, node2, a.Node(0), "id 2 keeps its node")
	assert.Equal(t, "/0", node2.Path())
	assert.Nil(t, node1.Parent(), "id 1 is dropped")
	id, ok := a.Node(1).Identifier()
	require.True(t, ok)
	assert.Equal(t, "3", id)
	assert.Equal(t, []interface{}{td("2", "B"), td("3", "c")}, a.Snapshot())
	assertReplays(t, a, before, *patches)
}

func TestIdentityReconciliationFollowsSnapshotOrder(t *testing.T) {
	a, err := Of(todo).Create([]interface{}{td("1", "a"), td("2", "b"), td("3", "c")})
	require.NoError(t, err)
	nodes := []*tree.Node{a.Node(0), a.Node(1), a.Node(2)}

	require.NoError(t, a.ApplySnapshot([]interface{}{td("3", "c"), td("1", "a"), td("2", "b")}))

	assert.Same(t, nodes[2], a.Node(0))
	assert.Same(t, nodes[0], a.Node(1))
	assert.Same(t, nodes[1], a.Node(2))
	for i := 0; i < 3; i++ {
		assert.Same(t, a.Handle(), a.Node(i).Parent())
	}
}

func TestDuplicateIdentifiers(t *testing.T) {
	_, err := Of(todo).Create([]interface{}{td("1", "a"), td("1", "b")})
	var dup common.ErrDuplicateIdentifier
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "1", dup.Identifier)

	a, err := Of(todo).Create([]interface{}{td("1", "a")})
	require.NoError(t, err)
	err = a.ApplySnapshot([]interface{}{td("2", "x"), td("2", "y")})
	assert.True(t, errors.As(err, &dup))
	assert.Equal(t, []interface{}{td("1", "a")}, a.Snapshot())
}

func TestSnapshotWithoutIdentifierReconcilesByPosition(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2)})
	require.NoError(t, err)
	n0, n1 := a.Node(0), a.Node(1)

	require.NoError(t, a.ApplySnapshot([]interface{}{pt(7)}))

	assert.Same(t, n0, a.Node(0))
	assert.Nil(t, n1.Parent())
	assert.Equal(t, []interface{}{pt(7)}, a.Snapshot())
}

func TestUnionRuntimeTypeMismatchCreatesNewNode(t *testing.T) {
	cat := tree.Model("Cat", tree.Prop("id", tree.Identifier), tree.Prop("kind", tree.Literal("cat")))
	dog := tree.Model("Dog", tree.Prop("id", tree.Identifier), tree.Prop("kind", tree.Literal("dog")))
	a, err := Of(tree.Union(cat, dog)).Create([]interface{}{
		map[string]interface{}{"id": "1", "kind": "cat"},
	})
	require.NoError(t, err)
	old := a.Node(0)

	require.NoError(t, a.ApplySnapshot([]interface{}{
		map[string]interface{}{"id": "1", "kind": "dog"},
	}))

	assert.NotSame(t, old, a.Node(0))
	assert.Equal(t, "Dog", a.Node(0).Type().Name())
	assert.Nil(t, old.Parent())
}

func TestSnapshotRoundTrip(t *testing.T) {
	nested := tree.Model("List", tree.Prop("name", tree.String), tree.Prop("todos", Of(todo)))
	snapshot := []interface{}{
		map[string]interface{}{"name": "home", "todos": []interface{}{td("1", "a")}},
		map[string]interface{}{"name": "work", "todos": []interface{}{}},
	}

	a, err := Of(nested).Create(snapshot)
	require.NoError(t, err)
	assert.Equal(t, snapshot, a.Snapshot())

	b, err := Of(nested).Create(a.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestCreateRejectsInvalidSnapshot(t *testing.T) {
	_, err := Of(tree.String).Create([]interface{}{"a", 1})
	var invalid common.ErrInvalidSnapshot
	assert.True(t, errors.As(err, &invalid))

	_, err = Of(tree.String).Create("abc")
	assert.True(t, errors.As(err, &invalid))
}

func TestCreateAcceptsTypedSlices(t *testing.T) {
	a, err := Of(tree.String).Create([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, a.Snapshot())
}

func TestMoveNodesWithinSplice(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2), pt(3)})
	require.NoError(t, err)
	first, second := a.Get(0), a.Get(1)

	_, err = a.Splice(0, 2, second, first)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{pt(2), pt(1), pt(3)}, a.Snapshot())
	assert.Equal(t, "/0", tree.HandleOf(second).Path())
	assert.Equal(t, "/1", tree.HandleOf(first).Path())
}

func TestSpliceRemovesThenInsertsInOneEdit(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a", "b", "c", "d"})
	require.NoError(t, err)
	before := a.Snapshot()
	patches := recordPatches(a)

	removed, err := a.Splice(1, 2, "x", "y", "z")
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"b", "c"}, removed)
	assert.Equal(t, []interface{}{"a", "x", "y", "z", "d"}, a.Snapshot())
	assert.Equal(t, []jsonpatch.Patch{
		{Op: jsonpatch.OpRemove, Path: "/2"},
		{Op: jsonpatch.OpRemove, Path: "/1"},
		{Op: jsonpatch.OpAdd, Path: "/1", Value: "x"},
		{Op: jsonpatch.OpAdd, Path: "/2", Value: "y"},
		{Op: jsonpatch.OpAdd, Path: "/3", Value: "z"},
	}, *patches)
	assertReplays(t, a, before, *patches)
}

func TestRejectedMoveKeepsPaths(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2), pt(3)})
	require.NoError(t, err)
	n0, n2 := a.Node(0), a.Node(2)
	patches := recordPatches(a)

	_, err = a.Splice(0, 3, a.Get(2), a.Get(0), "not a point")
	var invalid common.ErrInvalidSnapshot
	require.True(t, errors.As(err, &invalid))

	assert.Equal(t, []interface{}{pt(1), pt(2), pt(3)}, a.Snapshot())
	assert.Same(t, n0, a.Node(0))
	assert.Same(t, n2, a.Node(2))
	assert.Equal(t, "/0", n0.Path())
	assert.Equal(t, "/2", n2.Path())
	for i := 0; i < a.Len(); i++ {
		assert.Same(t, a.Handle(), a.Node(i).Parent())
		assert.Equal(t, fmt.Sprintf("/%d", i), a.Node(i).Path())
	}
	assert.Empty(t, *patches)
}

func TestRejectedSpliceLeavesContentUntouched(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2)})
	require.NoError(t, err)
	n0 := a.Node(0)
	patches := recordPatches(a)

	_, err = a.Splice(0, 2, pt(99), "bad")
	require.Error(t, err)

	assert.Equal(t, []interface{}{pt(1), pt(2)}, a.Snapshot())
	assert.Same(t, n0, a.Node(0))
	assert.Empty(t, *patches)

	other, err := Of(point).Create([]interface{}{pt(9)})
	require.NoError(t, err)
	_, err = a.Splice(0, 1, pt(42), other.Get(0))
	var attached common.ErrAlreadyAttached
	require.True(t, errors.As(err, &attached))
	assert.Equal(t, []interface{}{pt(1), pt(2)}, a.Snapshot())
	assert.Equal(t, []interface{}{pt(9)}, other.Snapshot())
	assert.Empty(t, *patches)
}

func TestRejectedSnapshotLeavesChildrenUntouched(t *testing.T) {
	a, err := Of(todo).Create([]interface{}{td("1", "write"), td("2", "ship")})
	require.NoError(t, err)
	patches := recordPatches(a)

	err = a.ApplySnapshot([]interface{}{td("1", "CHANGED"), td("2", "x"), td("2", "y")})
	var duplicate common.ErrDuplicateIdentifier
	require.True(t, errors.As(err, &duplicate))

	assert.Equal(t, []interface{}{td("1", "write"), td("2", "ship")}, a.Snapshot())
	assert.Empty(t, *patches)
}

func TestVetoedSnapshotLeavesChildrenUntouched(t *testing.T) {
	a, err := Of(todo).Create([]interface{}{td("1", "write")})
	require.NoError(t, err)
	patches := recordPatches(a)

	var seen []Edit
	veto := a.Intercept(func(_ *Array, e *Edit) (*Edit, error) {
		seen = append(seen, *e)
		return nil, nil
	})
	require.NoError(t, a.ApplySnapshot([]interface{}{td("1", "CHANGED")}))

	require.Len(t, seen, 1)
	assert.Equal(t, EditSplice, seen[0].Kind)
	assert.Equal(t, []interface{}{td("1", "CHANGED")}, seen[0].Added)
	assert.Equal(t, []interface{}{td("1", "write")}, a.Snapshot())
	assert.Empty(t, *patches)

	node := a.Node(0)
	veto()
	require.NoError(t, a.ApplySnapshot([]interface{}{td("1", "CHANGED")}))
	assert.Same(t, node, a.Node(0))
	assert.Equal(t, []interface{}{td("1", "CHANGED")}, a.Snapshot())
}

func TestLookupChildRejectsLeadingZeros(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2)})
	require.NoError(t, err)

	assert.Same(t, a.Node(1), a.arrayType().LookupChild(a.Handle(), "1"))
	assert.Nil(t, a.arrayType().LookupChild(a.Handle(), "01"))
	assert.Same(t, a.Node(0), a.arrayType().LookupChild(a.Handle(), "0"))
}

func TestAttachedNodeCannotBeInsertedTwice(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1)})
	require.NoError(t, err)

	err = a.Push(a.Get(0))
	var attached common.ErrAlreadyAttached
	assert.True(t, errors.As(err, &attached))

	other, err := Of(point).Create([]interface{}{pt(9)})
	require.NoError(t, err)
	err = a.Push(other.Get(0))
	assert.True(t, errors.As(err, &attached), "a node owned by another tree")

	detached, err := tree.Create(point, pt(4))
	require.NoError(t, err)
	err = a.Push(detached, detached)
	var invalid common.ErrInvalidOperation
	assert.True(t, errors.As(err, &invalid))
	assert.Equal(t, 1, a.Len())

	require.NoError(t, a.Push(detached))
	assert.Same(t, a.Handle(), detached.Handle().Parent())
}

func TestInterceptors(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a"})
	require.NoError(t, err)
	patches := recordPatches(a)

	dispose := a.Intercept(func(_ *Array, e *Edit) (*Edit, error) {
		if e.Kind != EditSplice {
			return e, nil
		}
		for i, v := range e.Added {
			e.Added[i] = strings.ToUpper(v.(string))
		}
		return e, nil
	})
	require.NoError(t, a.Push("b"))
	assert.Equal(t, []interface{}{"a", "B"}, a.Snapshot())
	dispose()

	veto := a.Intercept(func(*Array, *Edit) (*Edit, error) { return nil, nil })
	require.NoError(t, a.Push("c"))
	assert.Equal(t, []interface{}{"a", "B"}, a.Snapshot())
	veto()

	boom := errors.New("boom")
	a.Intercept(func(*Array, *Edit) (*Edit, error) { return nil, boom })
	assert.ErrorIs(t, a.Push("d"), boom)
	assert.Len(t, *patches, 1)
}

func TestObserversRunAfterPatchEmission(t *testing.T) {
	a, err := Of(tree.String).Create(nil)
	require.NoError(t, err)
	var order []string
	a.Handle().OnPatch(func(p jsonpatch.Patch, _ *tree.Node) {
		order = append(order, "patch "+p.Path)
	})
	a.Observe(func(_ *Array, e Edit) {
		order = append(order, "observe "+e.String())
		assert.Equal(t, []interface{}{"x"}, e.Added)
	})

	require.NoError(t, a.Push("x"))
	assert.Equal(t, []string{"patch /0", "observe splice[0] -0 +1"}, order)
}

func TestProtectedArrayRequiresAction(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a"}, tree.WithProtection(true))
	require.NoError(t, err)

	var notWritable common.ErrNotWritable
	assert.True(t, errors.As(a.Push("b"), &notWritable))
	assert.True(t, errors.As(a.Set(0, "z"), &notWritable))
	assert.Equal(t, []interface{}{"a"}, a.Snapshot())

	require.NoError(t, tree.RunInAction(a.Handle(), func() error {
		return a.Push("b")
	}))
	assert.Equal(t, []interface{}{"a", "b"}, a.Snapshot())
}

func TestApplyPatches(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a", "b", "c"})
	require.NoError(t, err)

	err = tree.ApplyPatches(a.Handle(),
		jsonpatch.Patch{Op: jsonpatch.OpAdd, Path: "/-", Value: "d"},
		jsonpatch.Patch{Op: jsonpatch.OpReplace, Path: "/0", Value: "z"},
		jsonpatch.Patch{Op: jsonpatch.OpRemove, Path: "/1"},
		jsonpatch.Patch{Op: jsonpatch.OpReplace, Path: "/-", Value: "e"},
	)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"z", "c", "d", "e"}, a.Snapshot())

	err = tree.ApplyPatches(a.Handle(), jsonpatch.Patch{Op: jsonpatch.OpRemove, Path: "/9"})
	var bounds common.ErrIndexOutOfBounds
	assert.True(t, errors.As(err, &bounds))
}

func TestApplyPatchesReplaysEmittedPatches(t *testing.T) {
	source, err := Of(todo).Create([]interface{}{td("1", "a"), td("2", "b")})
	require.NoError(t, err)
	replica, err := Of(todo).Create(source.Snapshot())
	require.NoError(t, err)
	patches := recordPatches(source)

	require.NoError(t, source.ApplySnapshot([]interface{}{td("2", "B"), td("3", "c")}))
	require.NoError(t, source.Push(td("4", "d")))
	_, err = source.Splice(0, 1)
	require.NoError(t, err)

	require.NoError(t, tree.ApplyPatches(replica.Handle(), *patches...))
	assert.Equal(t, source.Snapshot(), replica.Snapshot())
}

func TestNestedPatchPaths(t *testing.T) {
	list := tree.Model("List", tree.Prop("todos", Of(todo)))
	root, err := tree.Create(list, map[string]interface{}{"todos": []interface{}{td("1", "a")}})
	require.NoError(t, err)
	var got []jsonpatch.Patch
	root.Handle().OnPatch(func(p jsonpatch.Patch, _ *tree.Node) { got = append(got, p) })

	todos := root.(*tree.ModelInstance).Get("todos").(*Array)
	require.NoError(t, todos.Push(td("2", "b")))
	require.NoError(t, todos.Get(0).(*tree.ModelInstance).Set("title", "A"))

	assert.Equal(t, []jsonpatch.Patch{
		{Op: jsonpatch.OpAdd, Path: "/todos/1", Value: td("2", "b")},
		{Op: jsonpatch.OpReplace, Path: "/todos/0/title", Value: "A"},
	}, got)
}

func TestDestroyRemovesElement(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1), pt(2), pt(3)})
	require.NoError(t, err)
	victim := a.Node(1)
	patches := recordPatches(a)

	require.NoError(t, tree.Destroy(victim))

	assert.False(t, victim.IsAlive())
	assert.Equal(t, []interface{}{pt(1), pt(3)}, a.Snapshot())
	assert.Equal(t, []jsonpatch.Patch{{Op: jsonpatch.OpRemove, Path: "/1"}}, *patches)
	assert.Equal(t, "/1", a.Node(1).Path())
}

func TestDestroyedArrayRejectsEdits(t *testing.T) {
	a, err := Of(point).Create([]interface{}{pt(1)})
	require.NoError(t, err)
	child := a.Node(0)

	require.NoError(t, tree.Destroy(a.Handle()))

	assert.False(t, child.IsAlive())
	assert.Nil(t, child.Parent())
	var notWritable common.ErrNotWritable
	assert.True(t, errors.As(a.Push(pt(2)), &notWritable))
}

func TestOutOfBounds(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a"})
	require.NoError(t, err)

	var bounds common.ErrIndexOutOfBounds
	_, err = a.Splice(2, 0, "x")
	assert.True(t, errors.As(err, &bounds))
	assert.True(t, errors.As(a.Set(-1, "x"), &bounds))
	_, err = a.RemoveAt(1)
	assert.True(t, errors.As(err, &bounds))

	removed, err := a.Splice(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, removed)
	assert.Zero(t, a.Len())
}

func TestPopAndClear(t *testing.T) {
	a, err := Of(tree.String).Create([]interface{}{"a", "b"})
	require.NoError(t, err)

	v, err := a.Pop()
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	removed, err := a.Clear()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, removed)

	v, err = a.Pop()
	require.NoError(t, err)
	assert.Nil(t, v)
}

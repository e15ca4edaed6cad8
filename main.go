package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"go.uber.org/zap"

	"github.com/totomo/luvtree/collection"
	"github.com/totomo/luvtree/internal/lvlog"
	"github.com/totomo/luvtree/patchbus"
	"github.com/totomo/luvtree/snapshotstore"
	"github.com/totomo/luvtree/tracker"
	"github.com/totomo/luvtree/tree"
)

var (
	task = tree.Model("Task",
		tree.Prop("id", tree.Identifier),
		tree.Prop("title", tree.String),
		tree.Prop("done", tree.Boolean),
	)
	board = tree.Model("Board",
		tree.Prop("name", tree.String),
		tree.Prop("tasks", collection.Of(task)),
	)
)

func newTask(id, title string) map[string]interface{} {
	return map[string]interface{}{"id": id, "title": title, "done": false}
}

// client is a replica of the board kept in sync through the bus.
type client struct {
	name     string
	board    tree.Instance
	follower *patchbus.Follower
	applied  chan struct{}
}

func newClient(ctx context.Context, name string, bus patchbus.Subscriber, topic string, snapshot interface{}) (*client, error) {
	inst, err := tree.Create(board, snapshot, tree.WithProtection(true))
	if err != nil {
		return nil, err
	}
	c := &client{name: name, board: inst, applied: make(chan struct{}, 16)}
	c.follower, err = patchbus.Follow(ctx, bus, topic, name, inst.Handle(),
		patchbus.WithOnApplied(func(*patchbus.Batch) { c.applied <- struct{}{} }))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *client) wait(ctx context.Context) error {
	select {
	case <-c.applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	redisAddr := flag.String("redis", "", "Redis address; the in-memory bus is used when empty")
	topic := flag.String("topic", "board-patches", "topic of the patch bus")
	clients := flag.Int("clients", 2, "number of replicas")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	lvlog.SetLogger(false, *logLevel)
	logger := lvlog.Named("demo")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *redisAddr, *topic, *clients); err != nil {
		logger.Error("demo failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, redisAddr, topic string, clientCount int) error {
	logger := lvlog.Named("demo")

	var bus patchbus.PubSub = patchbus.NewMemoryPubSub(nil)
	if redisAddr != "" {
		rps, err := patchbus.NewRedisPubSub(redis.NewClient(&redis.Options{Addr: redisAddr}), nil)
		if err != nil {
			return err
		}
		bus = rps
	}
	defer bus.Close()

	inst, err := tree.Create(board, map[string]interface{}{
		"name":  "release",
		"tasks": []interface{}{newTask("1", "write notes"), newTask("2", "tag")},
	})
	if err != nil {
		return err
	}
	server := inst.(*tree.ModelInstance)
	tasks := server.Get("tasks").(*collection.Array)

	recorder, err := tracker.NewRecorder(server.Handle())
	if err != nil {
		return err
	}
	defer recorder.Stop()
	if _, err := recorder.Checkpoint("initial"); err != nil {
		return err
	}

	store := snapshotstore.NewDatastoreStore(dssync.MutexWrap(ds.NewMapDatastore()))
	defer store.Close()
	flush, stopAutosave, err := snapshotstore.Autosave(ctx, store, "board", server.Handle())
	if err != nil {
		return err
	}
	defer stopAutosave()

	broadcaster, err := patchbus.NewBroadcaster(server.Handle(), bus, topic)
	if err != nil {
		return err
	}
	defer broadcaster.Close()

	var replicas []*client
	for i := 0; i < clientCount; i++ {
		c, err := newClient(ctx, fmt.Sprintf("client-%d", i+1), bus, topic, server.Snapshot())
		if err != nil {
			return err
		}
		replicas = append(replicas, c)
	}

	edits := []func() error{
		func() error { return tasks.Push(newTask("3", "publish")) },
		func() error { return tasks.Get(0).(*tree.ModelInstance).Set("done", true) },
		func() error {
			_, err := tasks.Splice(1, 1, newTask("4", "announce"), newTask("5", "celebrate"))
			return err
		},
		func() error {
			return tasks.ApplySnapshot([]interface{}{
				newTask("5", "celebrate"),
				newTask("3", "publish"),
			})
		},
	}
	for i, edit := range edits {
		if err := edit(); err != nil {
			return err
		}
		if err := broadcaster.Flush(ctx); err != nil {
			return err
		}
		for _, c := range replicas {
			if err := c.wait(ctx); err != nil {
				return err
			}
		}
		logger.Info("edit replicated", zap.Int("edit", i+1), zap.Any("tasks", tasks.Snapshot()))
	}

	if err := flush(ctx); err != nil {
		return err
	}
	stored, err := snapshotstore.Load(ctx, store, "board", board)
	if err != nil {
		return err
	}
	restored, err := recorder.TimeTravel(board, "initial", 0)
	if err != nil {
		return err
	}

	want := fmt.Sprint(server.Snapshot())
	for _, c := range replicas {
		var got string
		if err := c.follower.Do(func(n *tree.Node) error {
			got = fmt.Sprint(n.Snapshot())
			return nil
		}); err != nil {
			return err
		}
		logger.Info("replica state", zap.String("client", c.name), zap.Bool("in_sync", got == want))
	}
	logger.Info("persisted state", zap.Bool("in_sync", fmt.Sprint(stored.Handle().Snapshot()) == want))
	logger.Info("time travel", zap.Bool("in_sync", fmt.Sprint(restored.Handle().Snapshot()) == want),
		zap.Int("records", recorder.Len()))
	return nil
}

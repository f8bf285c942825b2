// Demo: drives the status update manager against an in-memory master
// that acknowledges every update it receives, with checkpointing under
// the directory given as the first argument ("demo-data" by default).
// Run it again against the same directory to watch the stream replay
// its checkpoint log without re-sending acknowledged updates.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heronworks/heron/internal/manager"
	"github.com/heronworks/heron/internal/metrics"
	"github.com/heronworks/heron/internal/transport"
	"github.com/heronworks/heron/pkg/types"
)

func main() {
	dir := "demo-data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	sender := transport.NewMemorySender()

	mgr := manager.New(sender, collector, manager.Config{
		RetryInterval:    500 * time.Millisecond,
		MaxRetryInterval: 2 * time.Second,
	})
	mgr.Initialize("demo-agent")
	mgr.Start()
	defer mgr.Stop()

	mgr.NewMasterDetected("demo-master")

	ctx := context.Background()
	framework := types.FrameworkID("demo-framework")
	task := types.TaskID("demo-task")
	path := filepath.Join(dir, "frameworks", string(framework), "tasks", string(task), "task.updates")

	// The "master": acknowledge every update the manager sends.
	go func() {
		for send := range sender.Notify() {
			u := send.Update
			fmt.Printf("master got %s\n", u)
			if err := mgr.Acknowledge(ctx, u.TaskID, u.FrameworkID, u.UUID); err != nil {
				log.Printf("ack failed: %v", err)
			}
		}
	}()

	states := []types.TaskState{types.TaskStarting, types.TaskRunning, types.TaskFinished}
	for _, state := range states {
		u := types.StatusUpdate{
			FrameworkID: framework,
			TaskID:      task,
			State:       state,
			Timestamp:   time.Now().UnixMilli(),
			UUID:        uuid.New(),
		}
		if err := mgr.Update(ctx, u, true, path); err != nil {
			log.Fatalf("update failed: %v", err)
		}
	}

	time.Sleep(time.Second)

	pending, err := mgr.Pending(ctx, task, framework)
	if err != nil {
		log.Fatalf("pending failed: %v", err)
	}
	fmt.Printf("pending after acks: %d, total sends: %d\n", len(pending), len(sender.Sends()))
	fmt.Printf("checkpoint log at %s\n", path)
}

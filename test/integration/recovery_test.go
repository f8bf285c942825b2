package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/heronworks/heron/internal/manager"
	"github.com/heronworks/heron/internal/metrics"
	"github.com/heronworks/heron/internal/rpc"
	"github.com/heronworks/heron/internal/storage/updatelog"
	"github.com/heronworks/heron/internal/transport"
	"github.com/heronworks/heron/internal/wire"
	"github.com/heronworks/heron/pkg/types"
)

// agent bundles one running agent stack: manager, gRPC service, and a
// client connected to it over an in-memory listener.
type agent struct {
	mgr    *manager.Manager
	sender *transport.MemorySender
	client rpc.StatusServiceClient

	server *grpc.Server
	conn   *grpc.ClientConn
}

func startAgent(t *testing.T, checkpointDir string) *agent {
	t.Helper()

	sender := transport.NewMemorySender()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	mgr := manager.New(sender, collector, manager.Config{
		RetryInterval:    time.Second,
		MaxRetryInterval: 5 * time.Second,
	})
	mgr.Initialize("agent-1")
	mgr.Start()
	mgr.NewMasterDetected("master-1")

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	rpc.RegisterStatusServiceServer(server, transport.NewServer(mgr, true, checkpointDir))
	go func() {
		_ = server.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	a := &agent{
		mgr:    mgr,
		sender: sender,
		client: rpc.NewStatusServiceClient(conn),
		server: server,
		conn:   conn,
	}
	t.Cleanup(a.stop)
	return a
}

func (a *agent) stop() {
	_ = a.conn.Close()
	a.server.GracefulStop()
	a.mgr.Stop()
}

func statusUpdate(task types.TaskID, state types.TaskState, n byte) types.StatusUpdate {
	id := uuid.UUID{}
	id[15] = n
	return types.StatusUpdate{
		FrameworkID: "framework-1",
		TaskID:      task,
		State:       state,
		Timestamp:   int64(n),
		UUID:        id,
	}
}

// TestAgentRestartRecovery drives the full flow across an agent
// restart: updates and one acknowledgement before the restart, an
// executor re-send and the remaining acknowledgement after it.
func TestAgentRestartRecovery(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	u1 := statusUpdate("task-1", types.TaskRunning, 1)
	u2 := statusUpdate("task-1", types.TaskFinished, 2)

	// First incarnation: both updates arrive, the first is
	// acknowledged by the framework.
	a1 := startAgent(t, dir)

	_, err := a1.client.SendUpdate(ctx, &rpc.UpdateRequest{Update: u1})
	require.NoError(t, err)
	_, err = a1.client.SendUpdate(ctx, &rpc.UpdateRequest{Update: u2})
	require.NoError(t, err)

	// Only the head went out.
	sends := a1.sender.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, u1.UUID, sends[0].Update.UUID)

	_, err = a1.client.Acknowledge(ctx, &rpc.AckRequest{
		FrameworkID: u1.FrameworkID,
		TaskID:      u1.TaskID,
		UUID:        u1.UUID,
	})
	require.NoError(t, err)

	sends = a1.sender.Sends()
	require.Len(t, sends, 2)
	assert.Equal(t, u2.UUID, sends[1].Update.UUID)

	a1.stop()

	// Second incarnation over the same checkpoint directory: the
	// executor re-sends both updates.
	a2 := startAgent(t, dir)

	_, err = a2.client.SendUpdate(ctx, &rpc.UpdateRequest{Update: u1})
	require.NoError(t, err)
	_, err = a2.client.SendUpdate(ctx, &rpc.UpdateRequest{Update: u2})
	require.NoError(t, err)

	// u1 was acknowledged before the restart; only u2 is pending and
	// was put back in flight by recovery.
	pending, err := a2.mgr.Pending(ctx, "task-1", "framework-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, u2.UUID, pending[0].UUID)

	sends = a2.sender.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, u2.UUID, sends[0].Update.UUID)

	_, err = a2.client.Acknowledge(ctx, &rpc.AckRequest{
		FrameworkID: u2.FrameworkID,
		TaskID:      u2.TaskID,
		UUID:        u2.UUID,
	})
	require.NoError(t, err)

	pending, err = a2.mgr.Pending(ctx, "task-1", "framework-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The checkpoint log tells the whole story in order.
	path := filepath.Join(dir,
		"frameworks", "framework-1", "tasks", "task-1", "task.updates")
	log, err := updatelog.Open(path)
	require.NoError(t, err)
	defer log.Close()

	var records []wire.Record
	require.NoError(t, log.Replay(func(r wire.Record) error {
		records = append(records, r)
		return nil
	}))

	require.Len(t, records, 4)
	assert.Equal(t, wire.RecordUpdate, records[0].Type)
	assert.Equal(t, u1.UUID, records[0].Update.UUID)
	assert.Equal(t, wire.RecordUpdate, records[1].Type)
	assert.Equal(t, u2.UUID, records[1].Update.UUID)
	assert.Equal(t, wire.RecordAck, records[2].Type)
	assert.Equal(t, u1.UUID, records[2].UUID)
	assert.Equal(t, wire.RecordAck, records[3].Type)
	assert.Equal(t, u2.UUID, records[3].UUID)
}

// TestFrameworkCleanupOverRPC verifies that tearing down a framework
// stops delivery for its tasks while other frameworks are untouched.
func TestFrameworkCleanupOverRPC(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := startAgent(t, dir)

	u1 := statusUpdate("task-1", types.TaskRunning, 1)
	other := types.StatusUpdate{
		FrameworkID: "framework-2",
		TaskID:      "task-2",
		State:       types.TaskRunning,
		UUID:        uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
	}

	_, err := a.client.SendUpdate(ctx, &rpc.UpdateRequest{Update: u1})
	require.NoError(t, err)
	_, err = a.client.SendUpdate(ctx, &rpc.UpdateRequest{Update: other})
	require.NoError(t, err)

	a.mgr.Cleanup("framework-1")

	count, err := a.mgr.StreamCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Acknowledgements for the removed framework now fail.
	_, err = a.client.Acknowledge(ctx, &rpc.AckRequest{
		FrameworkID: u1.FrameworkID,
		TaskID:      u1.TaskID,
		UUID:        u1.UUID,
	})
	assert.Error(t, err)

	// The surviving framework still acknowledges fine.
	_, err = a.client.Acknowledge(ctx, &rpc.AckRequest{
		FrameworkID: other.FrameworkID,
		TaskID:      other.TaskID,
		UUID:        other.UUID,
	})
	assert.NoError(t, err)
}

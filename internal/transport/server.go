package transport

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/heronworks/heron/internal/manager"
	"github.com/heronworks/heron/internal/rpc"
	"github.com/heronworks/heron/pkg/types"
)

// Server is the agent-side gRPC service: executors call SendUpdate,
// the master calls Acknowledge. Both are forwarded to the manager.
type Server struct {
	mgr        *manager.Manager
	checkpoint bool
	dir        string // base directory for per-task update logs
	logger     *slog.Logger
}

// NewServer creates the service implementation. When checkpoint is
// true, each task's updates are logged under dir.
func NewServer(mgr *manager.Manager, checkpoint bool, dir string) *Server {
	return &Server{
		mgr:        mgr,
		checkpoint: checkpoint,
		dir:        dir,
		logger:     slog.With("component", "server"),
	}
}

// LogPath returns the checkpoint log path for a task.
func (s *Server) LogPath(frameworkID types.FrameworkID, taskID types.TaskID) string {
	return filepath.Join(s.dir,
		"frameworks", string(frameworkID),
		"tasks", string(taskID),
		"task.updates")
}

// SendUpdate handles a status update delivered by an executor.
func (s *Server) SendUpdate(ctx context.Context, in *rpc.UpdateRequest) (*rpc.UpdateResponse, error) {
	u := in.Update
	s.logger.Debug("Received status update", "update", u.String())

	path := ""
	if s.checkpoint {
		path = s.LogPath(u.FrameworkID, u.TaskID)
	}

	if err := s.mgr.Update(ctx, u, s.checkpoint, path); err != nil {
		s.logger.Error("Failed to handle status update", "update", u.String(), "error", err)
		return nil, err
	}
	return &rpc.UpdateResponse{}, nil
}

// Acknowledge handles a framework acknowledgement relayed by the
// master.
func (s *Server) Acknowledge(ctx context.Context, in *rpc.AckRequest) (*rpc.AckResponse, error) {
	s.logger.Debug("Received acknowledgement",
		"task", in.TaskID, "framework", in.FrameworkID, "uuid", in.UUID)

	if err := s.mgr.Acknowledge(ctx, in.TaskID, in.FrameworkID, in.UUID); err != nil {
		s.logger.Error("Failed to handle acknowledgement",
			"task", in.TaskID, "framework", in.FrameworkID, "error", err)
		return nil, err
	}
	return &rpc.AckResponse{}, nil
}

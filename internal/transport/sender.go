// Package transport carries status updates between the agent, its
// executors, and the master over gRPC.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/heronworks/heron/internal/rpc"
	"github.com/heronworks/heron/pkg/types"
)

// GrpcSender sends status updates to master endpoints. Sends are
// fire-and-forget: a failed or timed-out send is only logged, because
// the manager's retransmission owns reliability.
type GrpcSender struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	timeout time.Duration
	logger  *slog.Logger
}

// NewGrpcSender creates a sender with the given per-send timeout.
func NewGrpcSender(timeout time.Duration) *GrpcSender {
	return &GrpcSender{
		conns:   make(map[string]*grpc.ClientConn),
		timeout: timeout,
		logger:  slog.With("component", "transport"),
	}
}

// getClient returns a client for the given master address, caching
// connections to avoid reconnecting on every send.
func (s *GrpcSender) getClient(master string) (rpc.StatusServiceClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[master]; ok {
		return rpc.NewStatusServiceClient(conn), nil
	}

	conn, err := grpc.NewClient(master, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial master %s: %w", master, err)
	}
	s.conns[master] = conn
	return rpc.NewStatusServiceClient(conn), nil
}

// Send conveys one status update to the master. It returns
// immediately; the RPC runs in the background.
func (s *GrpcSender) Send(master string, update types.StatusUpdate) {
	client, err := s.getClient(master)
	if err != nil {
		s.logger.Warn("Dropping status update send", "master", master, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := client.SendUpdate(ctx, &rpc.UpdateRequest{Update: update}); err != nil {
			s.logger.Debug("Status update send failed; will retransmit",
				"master", master, "update", update.String(), "error", err)
		}
	}()
}

// Close releases all cached connections.
func (s *GrpcSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for master, conn := range s.conns {
		if err := conn.Close(); err != nil {
			s.logger.Warn("Failed to close master connection", "master", master, "error", err)
		}
		delete(s.conns, master)
	}
}

// Package cli provides the heron-agent command line interface.
//
// Command structure:
//
//	heron-agent                  # root command
//	└── run                      # start the agent
//	    ├── --config, -c         # config file path
//	    ├── --listen             # agent listen address override
//	    └── --master             # master address override
package cli

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	"github.com/heronworks/heron/internal/manager"
	"github.com/heronworks/heron/internal/metrics"
	"github.com/heronworks/heron/internal/rpc"
	"github.com/heronworks/heron/internal/transport"
)

// Config represents the complete agent configuration structure, mapped
// from the YAML config file.
type Config struct {
	Agent struct {
		Listen        string `yaml:"listen"`
		Checkpoint    bool   `yaml:"checkpoint"`
		CheckpointDir string `yaml:"checkpoint_dir"`
	} `yaml:"agent"`

	Master struct {
		Address       string `yaml:"address"`
		SendTimeoutMs int    `yaml:"send_timeout_ms"`
	} `yaml:"master"`

	Retry struct {
		IntervalMs    int `yaml:"interval_ms"`
		MaxIntervalMs int `yaml:"max_interval_ms"`
	} `yaml:"retry"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "heron-agent",
		Short: "Heron agent: reliable task status update delivery",
		Long: `The heron agent receives task status updates from local executors,
checkpoints them to disk, and delivers them to the cluster master with
at-least-once retransmission until the framework acknowledges them.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/agent.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var listen string
	var masterAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the heron agent",
		Long:  "Start the status update manager and its executor- and master-facing transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(listen, masterAddr)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&masterAddr, "master", "", "master address (overrides config)")

	return cmd
}

func runAgent(listen, masterAddr string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if listen == "" {
		listen = cfg.Agent.Listen
	}
	if masterAddr == "" {
		masterAddr = cfg.Master.Address
	}

	log.Printf("Starting heron agent on %s\n", listen)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	sendTimeout := time.Duration(cfg.Master.SendTimeoutMs) * time.Millisecond
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	sender := transport.NewGrpcSender(sendTimeout)

	mgr := manager.New(sender, collector, manager.Config{
		RetryInterval:    time.Duration(cfg.Retry.IntervalMs) * time.Millisecond,
		MaxRetryInterval: time.Duration(cfg.Retry.MaxIntervalMs) * time.Millisecond,
	})
	mgr.Initialize(listen)
	mgr.Start()

	if masterAddr != "" {
		mgr.NewMasterDetected(masterAddr)
	}

	// Metrics endpoint.
	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Printf("Starting metrics server on %s\n", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	// Executor- and master-facing gRPC service.
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	grpcServer := grpc.NewServer()
	srv := transport.NewServer(mgr, cfg.Agent.Checkpoint, cfg.Agent.CheckpointDir)
	rpc.RegisterStatusServiceServer(grpcServer, srv)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	log.Println("Agent started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("\nReceived shutdown signal, stopping gracefully...")

	// Stop accepting RPCs first so no new work reaches the manager,
	// then drain the manager, then drop master connections.
	grpcServer.GracefulStop()
	mgr.Stop()
	sender.Close()

	log.Println("Agent stopped. Goodbye!")
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}

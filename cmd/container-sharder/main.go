// Package main implements the container-sharder daemon, which walks the
// local partitions a device holds and drives each sharding-enabled
// container's broker through one cycle of the per-broker state machine.
//
// The daemon is the worker side of the container sharder: it holds no
// cluster-wide view of its own, relying entirely on the ring for partition
// ownership and on the root-reporting client for the small amount of
// coordination sharding requires (reporting ranges to the root, fetching
// the root's current listing). Everything else -- scanning, creating shard
// containers, cleaving, sweeping misplaced rows, finding shrink candidates
// -- happens against whatever brokers are opened locally for this run.
//
// Usage:
//
//	container-sharder run-once --config /etc/container-sharder.yaml
//	container-sharder run-forever --interval 30
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/reportclient"
	"github.com/dreamware/containersharder/internal/ring"
	"github.com/dreamware/containersharder/internal/sharder"
	"github.com/dreamware/containersharder/internal/workerpool"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := sharder.DefaultConfig()
	var configFile string
	var baseDir string
	var adminAddr string
	var ringFile string
	var poolSize int

	root := &cobra.Command{
		Use:   "container-sharder",
		Short: "Split, shrink and reconcile container namespaces across shard containers",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file overlaying the documented defaults")
	root.PersistentFlags().StringVar(&baseDir, "base-dir", "/srv/node", "root of this device's data directories")
	root.PersistentFlags().StringVar(&ringFile, "ring-file", "", "JSON ring description; empty uses a single-device local ring")
	root.PersistentFlags().IntVar(&poolSize, "worker-pool-size", 4, "concurrent replication tasks per cycle")
	cfg.BindFlags(root.PersistentFlags())

	loadCfg := func() (sharder.Config, error) {
		if configFile == "" {
			return cfg, nil
		}
		return sharder.LoadConfigFile(cfg, configFile)
	}

	runOnceCmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single cycle against every local, sharding-enabled broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := loadCfg()
			if err != nil {
				return err
			}
			d, _, err := buildDriver(resolved, baseDir, ringFile, poolSize)
			if err != nil {
				return err
			}
			return d.RunOnce(cmd.Context(), nil, nil)
		},
	}

	runForeverCmd := &cobra.Command{
		Use:   "run-forever",
		Short: "Run cycles on Config.Interval until terminated, serving an admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := loadCfg()
			if err != nil {
				return err
			}
			d, reg, err := buildDriver(resolved, baseDir, ringFile, poolSize)
			if err != nil {
				return err
			}
			return runForever(cmd.Context(), d, reg, adminAddr)
		},
	}
	runForeverCmd.Flags().StringVar(&adminAddr, "addr", ":6090", "admin/recon HTTP listen address")

	root.AddCommand(runOnceCmd, runForeverCmd)
	return root
}

// buildDriver assembles a CycleDriver over a process-local broker registry.
// Without a real on-disk container database, brokers are registered
// on-demand through the admin surface's POST /brokers (the same
// lazily-create-on-first-access shape the storage node keeps for shards)
// rather than discovered by walking a real data directory.
func buildDriver(cfg sharder.Config, baseDir, ringFile string, poolSize int) (*sharder.CycleDriver, *brokerRegistry, error) {
	r, err := loadRing(ringFile)
	if err != nil {
		return nil, nil, err
	}

	reg := newBrokerRegistry()
	client := reportclient.New(r)
	client.RequestTries = cfg.RequestTries
	client.ConnTimeout = cfg.ConnTimeoutDuration()
	client.HTTPClient.Timeout = cfg.NodeTimeoutDuration()
	client.UserAgent = cfg.ClientUserAgent

	cache, err := sharder.NewDestinationCache(128)
	if err != nil {
		return nil, nil, err
	}

	stats := sharder.NewStats(prometheus.DefaultRegisterer)
	log := logrus.StandardLogger()

	driver := &sharder.CycleDriver{
		Ring:    r,
		Config:  cfg,
		BaseDir: baseDir,
		Open:    reg.openForPartition,
		DepsFor: func(leader bool) sharder.Deps {
			return sharder.Deps{
				Leader:   leader && cfg.AutoShard,
				Reporter: client,
				Factory:  reg,
				Ring:     r,
				Pool:     workerpool.New(poolSize),
				Cache:    cache,
				Stats:    stats,
			}
		},
		Stats: stats,
		Log:   log,
	}
	return driver, reg, nil
}

// loadRing reads a JSON device list from ringFile, or -- when ringFile is
// empty -- builds a single-partition, single-replica ring over localhost,
// enough to drive run-once/run-forever against brokers registered through
// the admin surface on this same process.
func loadRing(ringFile string) (ring.Ring, error) {
	if ringFile == "" {
		return ring.NewStaticRing(0, 1, []ring.Device{
			{ID: 1, NodeID: "local", IP: "127.0.0.1", Port: 6000, Device: "sdb1"},
		}), nil
	}

	data, err := os.ReadFile(ringFile)
	if err != nil {
		return nil, err
	}
	var spec struct {
		PartitionPower int           `json:"partition_power"`
		ReplicaCount   int           `json:"replica_count"`
		Devices        []ring.Device `json:"devices"`
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return ring.NewStaticRing(spec.PartitionPower, spec.ReplicaCount, spec.Devices), nil
}

// runForever starts the admin HTTP surface and the cycle loop together,
// stopping both on SIGINT/SIGTERM, in the same shutdown shape as the
// cluster's coordinator daemon: stop the background loop first, then give
// the HTTP server a bounded window to drain in-flight requests.
func runForever(ctx context.Context, d *sharder.CycleDriver, reg *brokerRegistry, addr string) error {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/brokers", adminRegisterBroker(reg)).Methods(http.MethodPost)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		d.Log.WithField("addr", addr).Info("container-sharder admin surface listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.Log.WithError(err).Fatal("admin listener failed")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := d.RunForever(runCtx); err != nil {
			d.Log.WithError(err).Error("cycle loop exited")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	d.Log.Info("stopping cycle loop")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		d.Log.WithError(err).Warn("admin HTTP server shutdown error")
	}
	d.Log.Info("container-sharder stopped")
	return nil
}

func adminRegisterBroker(reg *brokerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Account       string `json:"account"`
			Container     string `json:"container"`
			RootAccount   string `json:"root_account"`
			RootContainer string `json:"root_container"`
			Partition     int    `json:"partition"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Account == "" || req.Container == "" {
			http.Error(w, "account and container are required", http.StatusBadRequest)
			return
		}
		br, err := reg.Create(r.Context(), req.Account, req.Container, broker.Info{
			RootAccount:   req.RootAccount,
			RootContainer: req.RootContainer,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		reg.bindPartition(req.Partition, br.(*broker.MemoryBroker))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"account":%q,"container":%q,"partition":%d}`, req.Account, req.Container, req.Partition)
	}
}

// brokerRegistry is the process-local directory of brokers this daemon
// hosts, the lazily-populated analogue of cmd/node's shards map: a broker
// only exists here once created through a cleave, a scan, or the admin
// surface's registration endpoint. Brokers are indexed two ways: by
// account/container for BrokerFactory lookups the sharder package performs
// on its own (opening shard/sibling brokers), and by partition for the
// cycle driver's local-partition enumeration.
type brokerRegistry struct {
	mu        sync.Mutex
	byName    map[string]*broker.MemoryBroker
	byPartition map[int]*broker.MemoryBroker
}

func newBrokerRegistry() *brokerRegistry {
	return &brokerRegistry{
		byName:      make(map[string]*broker.MemoryBroker),
		byPartition: make(map[int]*broker.MemoryBroker),
	}
}

func (r *brokerRegistry) Open(ctx context.Context, account, container string) (broker.Broker, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.byName[account+"/"+container]
	if !ok {
		return nil, false, nil
	}
	return br, true, nil
}

func (r *brokerRegistry) Create(ctx context.Context, account, container string, info broker.Info) (broker.Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := account + "/" + container
	if existing, ok := r.byName[key]; ok {
		return existing, nil
	}
	info.Account, info.Container = account, container
	br := broker.NewMemoryBroker(info)
	r.byName[key] = br
	return br, nil
}

// bindPartition associates br with the local partition number the admin
// surface reports it under, so a later cycle's openForPartition call finds
// it. Production deployments resolve this mapping from a real per-partition
// container database under dataDir instead of an explicit admin call.
func (r *brokerRegistry) bindPartition(partition int, br *broker.MemoryBroker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPartition[partition] = br
}

// openForPartition satisfies sharder.BrokerOpener.
func (r *brokerRegistry) openForPartition(ctx context.Context, dataDir string, partition int) (broker.Broker, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.byPartition[partition]
	if !ok {
		return nil, false, nil
	}
	return br, true, nil
}

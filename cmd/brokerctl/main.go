// Package main implements brokerctl, a standalone process that hosts
// in-memory container brokers behind the same wire protocol
// internal/reportclient.Client speaks, so the sharder daemon (or a test
// harness standing in for one) has a real container server to report
// shard ranges to and fetch them back from.
//
// Containers are created on demand, the same lazy-shard shape cmd/node
// uses for storage shards: the first request naming an account/container
// that doesn't exist yet creates an empty, UNSHARDED broker for it.
//
// Endpoints:
//
//	GET  /health                       liveness
//	GET  /info                         every hosted container and its state
//	PUT  /v1/{account}/{container}     merge shard ranges (X-Backend-Record-Type: shard)
//	GET  /v1/{account}/{container}     list shard ranges (X-Backend-Record-Type: shard)
//	PUT  /v1/{account}/{container}/obj merge object rows
//	GET  /v1/{account}/{container}/obj list object rows
//
// Environment:
//   - BROKERCTL_LISTEN: listen address (default ":8090")
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// hostedBroker wraps one hosted container's broker. It keeps no creation
// order, so /info lists containers in map iteration order.
type hostedBroker struct {
	br *broker.MemoryBroker
}

// Host holds every broker brokerctl has created so far, the lazy-creation
// analogue of cmd/node's shards map.
type Host struct {
	mu    sync.RWMutex
	store map[string]*hostedBroker
}

func NewHost() *Host {
	return &Host{store: make(map[string]*hostedBroker)}
}

// getOrCreate returns the broker for account/container, creating an empty
// UNSHARDED one on first reference.
func (h *Host) getOrCreate(account, container string) *broker.MemoryBroker {
	key := account + "/" + container
	h.mu.RLock()
	hb, ok := h.store[key]
	h.mu.RUnlock()
	if ok {
		return hb.br
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if hb, ok := h.store[key]; ok {
		return hb.br
	}
	br := broker.NewMemoryBroker(broker.Info{Account: account, Container: container})
	h.store[key] = &hostedBroker{br: br}
	return br
}

func (h *Host) list() []*broker.MemoryBroker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*broker.MemoryBroker, 0, len(h.store))
	for _, hb := range h.store {
		out = append(out, hb.br)
	}
	return out
}

func main() {
	listen := getenv("BROKERCTL_LISTEN", ":8090")
	host := NewHost()

	router := newRouter(host)
	s := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("brokerctl listening on %s", listen)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("brokerctl shutdown error: %v", err)
	}
	log.Println("brokerctl stopped")
}

func newRouter(host *Host) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("/info", handleInfo(host))
	r.HandleFunc("/v1/{account}/{container}", handleShardRanges(host)).Methods(http.MethodPut, http.MethodGet)
	r.HandleFunc("/v1/{account}/{container}/obj", handleObjects(host)).Methods(http.MethodPut, http.MethodGet)
	return r
}

// handleShardRanges implements the wire contract reportclient.Client
// speaks: PUT merges a JSON array of shard ranges into the named
// container's broker; GET returns its current, non-deleted ranges.
// X-Newest on a GET is accepted and ignored -- brokerctl has only one
// copy of any broker, so every read is already the newest one.
func handleShardRanges(host *Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		br := host.getOrCreate(vars["account"], vars["container"])
		ctx := r.Context()

		switch r.Method {
		case http.MethodPut:
			var ranges []shardrange.ShardRange
			if err := json.NewDecoder(r.Body).Decode(&ranges); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := br.MergeShardRanges(ctx, ranges); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusAccepted)

		case http.MethodGet:
			ranges, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{
				IncludeOwn:     true,
				IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(ranges)
		}
	}
}

// handleObjects lets an operator seed or inspect a hosted broker's object
// rows directly, useful for standing up a cleave/sweep scenario without a
// real upload path in front of it.
func handleObjects(host *Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		br := host.getOrCreate(vars["account"], vars["container"])
		ctx := r.Context()

		switch r.Method {
		case http.MethodPut:
			var rows []broker.ObjectRow
			if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := br.MergeItems(ctx, rows); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusAccepted)

		case http.MethodGet:
			marker := r.URL.Query().Get("marker")
			rows, err := br.GetObjects(ctx, 10000, marker, "", 0, false)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(rows)
		}
	}
}

// handleInfo reports every hosted container's identity and db_state, the
// brokerctl analogue of cmd/node's /info endpoint.
func handleInfo(host *Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		brokers := host.list()

		type entry struct {
			Account   string        `json:"account"`
			Container string        `json:"container"`
			DBState   broker.DBState `json:"db_state"`
		}
		out := make([]entry, 0, len(brokers))
		for _, br := range brokers {
			info, err := br.GetInfo(ctx)
			if err != nil {
				continue
			}
			state, err := br.GetDBState(ctx)
			if err != nil {
				continue
			}
			out = append(out, entry{Account: info.Account, Container: info.Container, DBState: state})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Containers []entry `json:"containers"`
			Count      int     `json:"count"`
		}{Containers: out, Count: len(out)})
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

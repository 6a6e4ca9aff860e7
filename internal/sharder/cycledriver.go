package sharder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/ring"
)

// statsReportInterval is the minimum time between periodic stats dumps
// (§4.4 step 6): "periodically (>= 3600s since last report) emit stats and
// re-zero".
const statsReportInterval = 3600 * time.Second

// shardingSysmetaKey is the sharding-info key a broker's own sysmeta
// carries once sharding has been enabled on it.
const shardingSysmetaKey = "Sharding"

// BrokerOpener opens the local broker backing a partition's replica on a
// given device, returning ok=false if the device holds no database yet for
// that partition (a legitimate skip, not an error).
type BrokerOpener func(ctx context.Context, dataDir string, partition int) (br broker.Broker, ok bool, err error)

// CycleDriver enumerates local partitions, gate-keeps by ring membership
// and device mount, and dispatches each eligible broker to ProcessBroker
// (§4.4). One CycleDriver is built per daemon process.
type CycleDriver struct {
	Ring    ring.Ring
	Config  Config
	BaseDir string

	Open BrokerOpener
	// DepsFor builds the per-broker collaborators for a cycle, given
	// whether this broker's replica is the partition's leader.
	DepsFor func(leader bool) Deps

	Stats *Stats
	Log   *logrus.Logger
}

// RunOnce performs a single cycle, honouring optional device/partition
// overrides (nil means "no restriction").
func (d *CycleDriver) RunOnce(ctx context.Context, deviceOverride, partitionOverride []int) error {
	cycleID := uuid.NewString()
	log := d.Log.WithField("cycle_id", cycleID)

	localIPs, err := ring.LocalIPs()
	if err != nil {
		return err
	}

	eligible := ring.LocalDevices(d.Ring.Devices(), localIPs)
	eligible = filterDevices(eligible, deviceOverride)
	slices.SortStableFunc(eligible, func(a, b ring.Device) int { return a.ID - b.ID })

	for _, dev := range eligible {
		if !ring.IsMounted(d.BaseDir, dev) {
			continue
		}
		dataDir := ring.DataDir(d.BaseDir, dev)

		for partition := 0; partition < d.Ring.PartitionCount(); partition++ {
			if !partitionWanted(partition, partitionOverride) {
				continue
			}

			leader, ok := replicaRole(d.Ring, partition, dev)
			if !ok {
				continue
			}

			br, found, err := d.Open(ctx, dataDir, partition)
			if err != nil {
				log.WithError(err).WithField("partition", partition).Error("failed to open broker")
				continue
			}
			if !found {
				continue
			}

			enabled, err := shardingEnabled(ctx, br)
			if err != nil {
				log.WithError(err).WithField("partition", partition).Error("failed to read sharding state")
				continue
			}
			if !enabled {
				continue
			}

			d.processOne(ctx, br, leader, log, partition)
		}
	}

	if time.Since(d.Stats.Since()) >= statsReportInterval {
		d.Stats.Dump(log)
		d.Stats.Reset()
	}

	return nil
}

// processOne runs ProcessBroker with a deferred recover, matching the
// "per-broker exception caught at the cycle driver" disposition (§7): a
// panic from one broker logs and counts a failure without aborting the
// cycle for the rest.
func (d *CycleDriver) processOne(ctx context.Context, br broker.Broker, leader bool, log *logrus.Entry, partition int) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("partition", partition).Error("broker processing panicked")
			d.Stats.Visited.fail()
		}
	}()

	if err := ProcessBroker(ctx, br, d.Config, d.DepsFor(leader)); err != nil {
		log.WithError(err).WithField("partition", partition).Warn("broker processing failed")
	}
}

// RunForever loops RunOnce with Config.Interval backoff until ctx is
// cancelled.
func (d *CycleDriver) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(d.Config.IntervalDuration())
	defer ticker.Stop()

	for {
		if err := d.RunOnce(ctx, nil, nil); err != nil {
			d.Log.WithError(err).Error("cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func filterDevices(devices []ring.Device, allow []int) []ring.Device {
	if len(allow) == 0 {
		return devices
	}
	want := make(map[int]bool, len(allow))
	for _, id := range allow {
		want[id] = true
	}
	out := devices[:0:0]
	for _, d := range devices {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

func partitionWanted(partition int, allow []int) bool {
	if len(allow) == 0 {
		return true
	}
	for _, p := range allow {
		if p == partition {
			return true
		}
	}
	return false
}

// replicaRole reports whether dev is one of partition's replicas and, if
// so, whether it is the leader (ring index 0; auto_shard is applied
// afterwards by the DepsFor callback, not here). A
// device absent from the replica set is a handoff mismatch and is skipped
// entirely, per §4.4 step 4.
func replicaRole(r ring.Ring, partition int, dev ring.Device) (leader bool, isReplica bool) {
	nodes := r.GetNodes(partition)
	for i, n := range nodes {
		if n.ID == dev.ID {
			return i == 0, true
		}
	}
	return false, false
}

func shardingEnabled(ctx context.Context, br broker.Broker) (bool, error) {
	v, ok, err := br.GetShardingInfo(ctx, shardingSysmetaKey)
	if err != nil {
		return false, err
	}
	if ok && v == "True" {
		return true, nil
	}

	ranges, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{IncludeDeleted: true})
	if err != nil {
		return false, err
	}
	return len(ranges) > 0, nil
}

package sharder

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the recognised options from §6 of the sharder design. Zero
// values are never valid configuration; always start from DefaultConfig.
type Config struct {
	ShardContainerSize      int64   `yaml:"shard_container_size"`
	ShardShrinkPoint        float64 `yaml:"shard_shrink_point"`
	ShardShrinkMergePoint   float64 `yaml:"shard_shrink_merge_point"`
	ShardScannerBatchSize   int     `yaml:"shard_scanner_batch_size"`
	ShardBatchSize          int     `yaml:"shard_batch_size"`
	RequestTries            int     `yaml:"request_tries"`
	ConnTimeout             float64 `yaml:"conn_timeout"`
	NodeTimeout             float64 `yaml:"node_timeout"`
	AutoShard               bool    `yaml:"auto_shard"`
	AutoCreateAccountPrefix string  `yaml:"auto_create_account_prefix"`
	Interval                float64 `yaml:"interval"`
	// ClientUserAgent is sent as the HTTP User-Agent on every root-reporting
	// request; recovered from swift/common/internal_client.py (§6.1).
	ClientUserAgent string `yaml:"client_user_agent"`
}

// DefaultConfig returns the documented defaults from the §6 options table.
func DefaultConfig() Config {
	return Config{
		ShardContainerSize:      10_000_000,
		ShardShrinkPoint:        25,
		ShardShrinkMergePoint:   75,
		ShardScannerBatchSize:   10,
		ShardBatchSize:          2,
		RequestTries:            3,
		ConnTimeout:             5,
		NodeTimeout:             10,
		AutoShard:               false,
		AutoCreateAccountPrefix: ".",
		Interval:                30,
		ClientUserAgent:         "container-sharder",
	}
}

// LoadConfigFile overlays a YAML file's values onto cfg, leaving any key
// the file omits untouched.
func LoadConfigFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BindFlags registers every Config field as a CLI flag on flags, defaulting
// to cfg's current values, so a cmd/container-sharder invocation can layer
// "flags override file values, which override documented defaults" (§6).
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.Int64Var(&c.ShardContainerSize, "shard-container-size", c.ShardContainerSize, "target max objects per shard")
	flags.Float64Var(&c.ShardShrinkPoint, "shard-shrink-point", c.ShardShrinkPoint, "percent below which a shard becomes a shrink donor")
	flags.Float64Var(&c.ShardShrinkMergePoint, "shard-shrink-merge-point", c.ShardShrinkMergePoint, "percent a merged donor+acceptor pair must stay below")
	flags.IntVar(&c.ShardScannerBatchSize, "shard-scanner-batch-size", c.ShardScannerBatchSize, "ranges discovered per scan call")
	flags.IntVar(&c.ShardBatchSize, "shard-batch-size", c.ShardBatchSize, "ranges cleaved per cycle")
	flags.IntVar(&c.RequestTries, "request-tries", c.RequestTries, "root-client retries")
	flags.Float64Var(&c.ConnTimeout, "conn-timeout", c.ConnTimeout, "connect timeout in seconds")
	flags.Float64Var(&c.NodeTimeout, "node-timeout", c.NodeTimeout, "per-node RPC timeout in seconds")
	flags.BoolVar(&c.AutoShard, "auto-shard", c.AutoShard, "enable leader-only scan/create/shrink-find actions")
	flags.StringVar(&c.AutoCreateAccountPrefix, "auto-create-account-prefix", c.AutoCreateAccountPrefix, "prefix for shard accounts")
	flags.Float64Var(&c.Interval, "interval", c.Interval, "sleep between cycles in run-forever mode, in seconds")
	flags.StringVar(&c.ClientUserAgent, "client-user-agent", c.ClientUserAgent, "User-Agent sent on root-reporting requests")
}

// ShrinkSize returns the object-count threshold below which an ACTIVE shard
// becomes a shrink donor candidate (§4.9).
func (c Config) ShrinkSize() int64 {
	return int64(float64(c.ShardContainerSize) * c.ShardShrinkPoint / 100)
}

// MergeSize returns the combined object-count ceiling a donor+acceptor pair
// must stay under to be merged (§4.9).
func (c Config) MergeSize() int64 {
	return int64(float64(c.ShardContainerSize) * c.ShardShrinkMergePoint / 100)
}

// ScanTargetSize is the split target passed to Broker.FindShardRanges:
// half of ShardContainerSize (§4.6).
func (c Config) ScanTargetSize() int64 {
	return c.ShardContainerSize / 2
}

func (c Config) ConnTimeoutDuration() time.Duration {
	return time.Duration(c.ConnTimeout * float64(time.Second))
}

func (c Config) NodeTimeoutDuration() time.Duration {
	return time.Duration(c.NodeTimeout * float64(time.Second))
}

func (c Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

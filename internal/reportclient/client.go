package reportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/containersharder/internal/ring"
	"github.com/dreamware/containersharder/internal/shardrange"
	"github.com/dreamware/containersharder/internal/workerpool"
)

// Client issues quorum writes of shard-range batches to a container's
// replicas and fetches a root container's own shard-range listing.
type Client struct {
	Ring ring.Ring

	HTTPClient *http.Client
	UserAgent  string

	// RequestTries bounds the retry attempts cenkalti/backoff makes for a
	// single node's request before that node is counted as failed.
	RequestTries int
	ConnTimeout  time.Duration

	// MaxParallel bounds how many replica requests run concurrently; 0
	// means "one per replica" (internal/workerpool treats <=0 as 1, so
	// this package resolves 0 to the replica count itself).
	MaxParallel int
}

// New builds a Client with the given ring and sane defaults for retry and
// timeout behavior, matching the original internal client's request_tries
// and conn_timeout options (§6 of the sharder spec).
func New(r ring.Ring) *Client {
	return &Client{
		Ring:         r,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		UserAgent:    "container-sharder",
		RequestTries: 3,
		ConnTimeout:  5 * time.Second,
	}
}

// SendShardRanges serializes ranges as a JSON array and PUTs it to every
// replica of account/container in parallel, returning true iff at least
// quorum = replica_count/2 + 1 replicas accepted it. A per-node failure
// only counts against quorum and never aborts the other in-flight
// requests; missing quorum is reported as (false, nil), not as an error.
func (c *Client) SendShardRanges(ctx context.Context, account, container string, ranges []shardrange.ShardRange, headers map[string]string) (bool, error) {
	partition := c.Ring.GetPartition(account, container)
	nodes := c.Ring.GetNodes(partition)
	if len(nodes) == 0 {
		return false, ErrNoDevices
	}

	body, err := json.Marshal(ranges)
	if err != nil {
		return false, err
	}

	quorum := len(nodes)/2 + 1

	parallel := c.MaxParallel
	if parallel <= 0 {
		parallel = len(nodes)
	}
	pool := workerpool.New(parallel)

	successes := make(chan bool, len(nodes))
	for _, node := range nodes {
		node := node
		pool.Spawn(func() error {
			ok, err := c.postOnce(ctx, node, account, container, body, headers)
			successes <- ok
			return err
		})
	}
	pool.Wait()
	close(successes)

	count := 0
	for ok := range successes {
		if ok {
			count++
		}
	}

	return count >= quorum, nil
}

func (c *Client) postOnce(ctx context.Context, node ring.Device, account, container string, body []byte, headers map[string]string) (bool, error) {
	url := fmt.Sprintf("http://%s/v1/%s/%s?format=json", node.Addr(), account, container)

	var lastErr error
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), uint64(maxInt(c.RequestTries-1, 0)))

	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(body)))
		req.Header.Set("X-Backend-Record-Type", "shard")
		req.Header.Set("X-Timestamp", shardrange.Now().String())
		req.Header.Set("User-Agent", c.UserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("reportclient: %s returned %d", url, resp.StatusCode)
			return lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("reportclient: %s returned %d", url, resp.StatusCode)
			return backoff.Permanent(lastErr)
		}
		lastErr = nil
		return nil
	}, policy)

	if err != nil {
		return false, nil
	}
	return true, nil
}

// FetchShardRanges GETs the root container's shard-range listing. newest
// requests X-Newest: true, forcing a direct read of the most up to date
// replica rather than whichever one answers first. A non-2xx response is
// a soft failure: it returns (nil, nil), which callers treat as "try
// again next cycle" rather than as an error.
func (c *Client) FetchShardRanges(ctx context.Context, rootAccount, rootContainer string, newest bool) ([]shardrange.ShardRange, error) {
	partition := c.Ring.GetPartition(rootAccount, rootContainer)
	nodes := c.Ring.GetNodes(partition)
	if len(nodes) == 0 {
		return nil, ErrNoDevices
	}

	url := fmt.Sprintf("http://%s/v1/%s/%s?format=json", nodes[0].Addr(), rootAccount, rootContainer)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Backend-Record-Type", "shard")
	req.Header.Set("User-Agent", c.UserAgent)
	if newest {
		req.Header.Set("X-Newest", "true")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var ranges []shardrange.ShardRange
	if err := json.NewDecoder(resp.Body).Decode(&ranges); err != nil {
		return nil, err
	}
	return ranges, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

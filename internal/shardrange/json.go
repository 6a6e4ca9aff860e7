package shardrange

import "encoding/json"

// wireShardRange is the JSON-on-the-wire shape exchanged with the root
// container and between replicas (§6 of the sharder spec): one record per
// shard range, epoch omitted when unset.
type wireShardRange struct {
	Account        string    `json:"account"`
	Container      string    `json:"container"`
	Lower          string    `json:"lower"`
	Upper          string    `json:"upper"`
	Timestamp      Timestamp `json:"timestamp"`
	State          State     `json:"state"`
	StateTimestamp Timestamp `json:"state_timestamp"`
	MetaTimestamp  Timestamp `json:"meta_timestamp"`
	ObjectCount    int64     `json:"object_count"`
	BytesUsed      int64     `json:"bytes_used"`
	Deleted        bool      `json:"deleted"`
	Epoch          *string   `json:"epoch,omitempty"`
}

// MarshalJSON renders the shard range in the wire format described in §6.
func (r ShardRange) MarshalJSON() ([]byte, error) {
	w := wireShardRange{
		Account:        r.Account,
		Container:      r.Container,
		Lower:          r.Lower,
		Upper:          r.Upper,
		Timestamp:      r.Timestamp,
		State:          r.State,
		StateTimestamp: r.StateTimestamp,
		MetaTimestamp:  r.MetaTimestamp,
		ObjectCount:    r.ObjectCount,
		BytesUsed:      r.BytesUsed,
		Deleted:        r.Deleted,
	}
	if !r.Epoch.IsZero() {
		s := r.Epoch.String()
		w.Epoch = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire format described in §6.
func (r *ShardRange) UnmarshalJSON(data []byte) error {
	var w wireShardRange
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := ShardRange{
		Account:        w.Account,
		Container:      w.Container,
		Lower:          w.Lower,
		Upper:          w.Upper,
		Timestamp:      w.Timestamp,
		State:          w.State,
		StateTimestamp: w.StateTimestamp,
		MetaTimestamp:  w.MetaTimestamp,
		ObjectCount:    w.ObjectCount,
		BytesUsed:      w.BytesUsed,
		Deleted:        w.Deleted,
	}
	if w.Epoch != nil {
		epoch, err := Parse(*w.Epoch)
		if err != nil {
			return err
		}
		out.Epoch = epoch
	}
	*r = out
	return nil
}

package trigger

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"loki-watch/internal/lokiapi"
	"loki-watch/internal/models"
)

const (
	defaultSince      = "10m"
	defaultMaxRecords = 100
)

// Querier is the query-executor collaborator consumed by the poller.
// *lokiapi.Client satisfies it.
type Querier interface {
	QueryRange(ctx context.Context, params lokiapi.QueryParams) (*lokiapi.QueryResponse, error)
}

// CycleResult is what one poll cycle hands to downstream consumers: the
// entries that survived dedup, in response order, plus the watermark
// timestamp of the newest fired entry.
type CycleResult struct {
	Logs          []lokiapi.Entry `json:"logs"`
	Count         int             `json:"count"`
	Query         string          `json:"query"`
	ResultType    string          `json:"resultType"`
	LastTimestamp string          `json:"lastTimestamp"`
}

// Poller runs poll cycles for one recurring trigger. At most one cycle per
// state key may be in flight at a time; the Watcher's serial loop enforces
// that, the Poller itself does no locking.
type Poller struct {
	querier Querier
	store   Store
	cfg     models.TriggerConfig
}

// NewPoller wires a poller from its collaborators and resolved configuration.
func NewPoller(querier Querier, store Store, cfg models.TriggerConfig) *Poller {
	if cfg.Since == "" {
		cfg.Since = defaultSince
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}
	return &Poller{querier: querier, store: store, cfg: cfg}
}

// Run executes one poll cycle: query the window, normalize, dedup against
// persisted state, persist, and report what fired. A nil result with a nil
// error means nothing new was found. Any error leaves persisted state
// untouched; the next scheduled cycle retries from the same state.
func (p *Poller) Run(ctx context.Context) (*CycleResult, error) {
	now := time.Now()
	end := strconv.FormatInt(now.UnixNano(), 10)

	// Direction is forced forward so entries arrive oldest first and the
	// watermark grows monotonically across cycles.
	resp, err := p.querier.QueryRange(ctx, lokiapi.QueryParams{
		Query:     p.cfg.Query,
		End:       end,
		Since:     p.cfg.Since,
		Limit:     p.cfg.MaxRecords,
		Direction: "forward",
	})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	entries, err := resp.Normalize()
	if err != nil {
		return nil, fmt.Errorf("failed to normalize response: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	state, err := p.store.Load(ctx, p.cfg.StateKey, p.cfg.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to load state for %q: %w", p.cfg.StateKey, err)
	}

	var fired []lokiapi.Entry
	for _, entry := range entries {
		if _, err := strconv.ParseInt(entry.Timestamp, 10, 64); err != nil {
			log.Printf("Warning: skipping entry with unparseable timestamp %q", entry.Timestamp)
			continue
		}
		id := Identity(entry.Timestamp, entry.Content, entry.Labels)
		if state.Evaluate(id, entry.Timestamp, now) {
			fired = append(fired, entry)
		}
	}

	if len(fired) == 0 {
		return nil, nil
	}

	watermark := fired[0].Timestamp
	for _, entry := range fired[1:] {
		if compareTimestamps(entry.Timestamp, watermark) > 0 {
			watermark = entry.Timestamp
		}
	}

	if err := p.store.Save(ctx, p.cfg.StateKey, state, p.cfg.StateTTL); err != nil {
		// The dedup decisions for this cycle are lost; report the cycle as
		// failed so the caller does not treat the entries as delivered.
		return nil, fmt.Errorf("failed to save state for %q: %w", p.cfg.StateKey, err)
	}

	return &CycleResult{
		Logs:          fired,
		Count:         len(fired),
		Query:         p.cfg.Query,
		ResultType:    resp.Data.ResultType,
		LastTimestamp: watermark,
	}, nil
}

// compareTimestamps orders two nanosecond-epoch decimal strings. A longer
// numeric string is always larger; equal lengths compare lexicographically.
func compareTimestamps(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

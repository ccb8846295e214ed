// loki-watch polls Grafana Loki with LogQL queries and fires downstream
// actions when new log entries appear.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loki-watch/internal/action"
	"loki-watch/internal/lokiapi"
	"loki-watch/internal/models"
	"loki-watch/internal/state"
	"loki-watch/internal/trigger"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

// Version information
var (
	Version   = "dev"     // Set by goreleaser
	CommitSHA = "unknown" // Set by goreleaser
	BuildTime = "unknown" // Set by goreleaser
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("loki-watch: %v", err)
	}
}

// connFlags are the Loki connection settings shared by every subcommand.
type connFlags struct {
	url            string
	authToken      string
	tenantID       string
	connectTimeout time.Duration
	readTimeout    time.Duration
	rateLimit      float64
	rateBurst      int
	debug          bool
}

func (c *connFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.url, "url", "", "Loki base URL (e.g. http://localhost:3100)")
	fs.StringVar(&c.authToken, "auth-token", "", "bearer token if Loki is secured")
	fs.StringVar(&c.tenantID, "tenant-id", "", "X-Scope-OrgID header for multi-tenant Loki")
	fs.DurationVar(&c.connectTimeout, "connect-timeout", 30*time.Second, "HTTP connection timeout")
	fs.DurationVar(&c.readTimeout, "read-timeout", 60*time.Second, "HTTP read timeout")
	fs.Float64Var(&c.rateLimit, "rate", 1, "requests per second limit against Loki")
	fs.IntVar(&c.rateBurst, "burst", 1, "request burst capacity")
	fs.BoolVar(&c.debug, "debug", false, "log outgoing requests")
}

func (c *connFlags) config() (models.Config, error) {
	if c.url == "" {
		return models.Config{}, errors.New("Loki base URL must be provided via -url or LOKI_WATCH_URL")
	}
	return models.Config{
		URL:              c.url,
		AuthToken:        c.authToken,
		TenantID:         c.tenantID,
		ConnectTimeout:   c.connectTimeout,
		ReadTimeout:      c.readTimeout,
		Debug:            c.debug,
		RequestRateLimit: c.rateLimit,
		RequestRateBurst: c.rateBurst,
	}, nil
}

func (c *connFlags) client() (*lokiapi.Client, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Timeout: cfg.ReadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		},
	}
	return lokiapi.NewClient(httpClient, cfg)
}

func ffOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix("LOKI_WATCH"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	}
}

func newFlagSet(name string, conn *connFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	conn.register(fs)
	fs.String("config", "", "config file path")
	return fs
}

func run(args []string) error {
	var conn connFlags
	rootFS := flag.NewFlagSet("loki-watch", flag.ExitOnError)

	root := &ffcli.Command{
		Name:       "loki-watch",
		ShortUsage: "loki-watch <subcommand> [flags]",
		ShortHelp:  "watch Grafana Loki queries and act on new log entries",
		FlagSet:    rootFS,
		Subcommands: []*ffcli.Command{
			watchCommand(&conn),
			queryCommand(&conn),
			rangeCommand(&conn),
			versionCommand(),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}

	return root.ParseAndRun(context.Background(), args)
}

func watchCommand(conn *connFlags) *ffcli.Command {
	fs := newFlagSet("loki-watch watch", conn)
	var (
		query      = fs.String("query", "", "LogQL query to monitor")
		interval   = fs.Duration("interval", time.Minute, "polling interval")
		maxRecords = fs.Int("max-records", 100, "maximum entries per poll cycle")
		since      = fs.String("since", "10m", "lookback window for the query")
		stateKey   = fs.String("state-key", "", "key for the dedup state (defaults to a hash of url+query)")
		stateTTL   = fs.Duration("state-ttl", 24*time.Hour, "time to live for dedup state entries")
		stateDB    = fs.String("state-db", "", "path to the state database (defaults to ~/.loki-watch/state.db)")
		webhookURL = fs.String("webhook-url", "", "POST new entries to this URL")
		listen     = fs.String("listen", "127.0.0.1:8970", "address for the embedded HTTP server")
	)

	return &ffcli.Command{
		Name:       "watch",
		ShortUsage: "loki-watch watch -url <loki-url> -query <logql> [flags]",
		ShortHelp:  "poll a query and fire on new entries",
		FlagSet:    fs,
		Options:    ffOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if *query == "" {
				return errors.New("a LogQL query must be provided via -query or LOKI_WATCH_QUERY")
			}

			client, err := conn.client()
			if err != nil {
				return err
			}

			store, err := state.NewSQLiteStore(*stateDB)
			if err != nil {
				return fmt.Errorf("failed to open state store: %w", err)
			}
			defer store.Close()

			key := *stateKey
			if key == "" {
				key = trigger.DefaultStateKey(conn.url, *query)
			}

			poller := trigger.NewPoller(client, store, models.TriggerConfig{
				Query:      *query,
				Interval:   *interval,
				MaxRecords: *maxRecords,
				Since:      *since,
				StateKey:   key,
				StateTTL:   *stateTTL,
			})

			server := NewServer(*listen)
			notifiers := []trigger.Notifier{server}
			if *webhookURL != "" {
				notifiers = append(notifiers, action.NewWebhook(&http.Client{Timeout: 30 * time.Second}, *webhookURL))
			}
			watcher := trigger.NewWatcher(poller, *interval, notifiers...)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("watching %q every %s (state key %s)", *query, *interval, key)

			watchErr := make(chan error, 1)
			go func() { watchErr <- watcher.Run(ctx) }()

			if err := server.Start(ctx); err != nil {
				return err
			}
			if err := <-watchErr; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func queryCommand(conn *connFlags) *ffcli.Command {
	fs := newFlagSet("loki-watch query", conn)
	var (
		query     = fs.String("query", "", "LogQL query to execute")
		evalTime  = fs.String("time", "", "evaluation time (nanosecond epoch or RFC3339)")
		limit     = fs.Int("limit", 100, "maximum entries to return")
		direction = fs.String("direction", "backward", "sort order: forward or backward")
	)

	return &ffcli.Command{
		Name:       "query",
		ShortUsage: "loki-watch query -url <loki-url> -query <logql> [flags]",
		ShortHelp:  "run an instant query and print the flattened results",
		FlagSet:    fs,
		Options:    ffOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if *query == "" {
				return errors.New("a LogQL query must be provided via -query")
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			resp, err := client.Query(ctx, lokiapi.QueryParams{
				Query:     *query,
				Time:      *evalTime,
				Limit:     *limit,
				Direction: *direction,
			})
			if err != nil {
				return err
			}
			return printResults(resp)
		},
	}
}

func rangeCommand(conn *connFlags) *ffcli.Command {
	fs := newFlagSet("loki-watch range", conn)
	var (
		query     = fs.String("query", "", "LogQL query to execute")
		start     = fs.String("start", "", "start time (nanosecond epoch or RFC3339)")
		end       = fs.String("end", "", "end time (nanosecond epoch or RFC3339)")
		since     = fs.String("since", "", "duration before end, alternative to -start (e.g. 1h)")
		step      = fs.String("step", "", "query resolution step for metric queries")
		interval  = fs.String("interval", "", "return entries at this interval for log queries")
		limit     = fs.Int("limit", 100, "maximum entries to return")
		direction = fs.String("direction", "backward", "sort order: forward or backward")
	)

	return &ffcli.Command{
		Name:       "range",
		ShortUsage: "loki-watch range -url <loki-url> -query <logql> [flags]",
		ShortHelp:  "run a range query and print the flattened results",
		FlagSet:    fs,
		Options:    ffOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if *query == "" {
				return errors.New("a LogQL query must be provided via -query")
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			resp, err := client.QueryRange(ctx, lokiapi.QueryParams{
				Query:     *query,
				Start:     *start,
				End:       *end,
				Since:     *since,
				Step:      *step,
				Interval:  *interval,
				Limit:     *limit,
				Direction: *direction,
			})
			if err != nil {
				return err
			}
			return printResults(resp)
		},
	}
}

func versionCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "loki-watch version",
		ShortHelp:  "print build information",
		Exec: func(ctx context.Context, args []string) error {
			fmt.Printf("loki-watch %s (commit %s, built %s)\n", Version, CommitSHA, BuildTime)
			return nil
		},
	}
}

func printResults(resp *lokiapi.QueryResponse) error {
	entries, err := resp.Normalize()
	if err != nil {
		return err
	}

	out := struct {
		Logs       []lokiapi.Entry `json:"logs"`
		Count      int             `json:"count"`
		ResultType string          `json:"resultType"`
	}{
		Logs:       entries,
		Count:      len(entries),
		ResultType: resp.Data.ResultType,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

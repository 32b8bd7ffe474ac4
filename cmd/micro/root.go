package main

import (
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/petrarca/nats-micro/bus"
	"github.com/petrarca/nats-micro/client"
)

var (
	serverURL   string
	maxWait     time.Duration
	maxCount    int
	maxInterval time.Duration
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "micro",
	Short: "Discover and inspect micro services",
	Long: `micro talks to the control plane of running services:
ping discovers instances, info lists their endpoints and stats
collects their counters.`,
	SilenceUsage: true,
}

func init() {
	defaultURL := os.Getenv("MICRO_URL")
	if defaultURL == "" {
		defaultURL = nats.DefaultURL
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultURL, "server URL")
	rootCmd.PersistentFlags().DurationVar(&maxWait, "max-wait", 500*time.Millisecond, "total time to wait for replies")
	rootCmd.PersistentFlags().IntVar(&maxCount, "max-count", 0, "stop after this many replies (0 = unlimited)")
	rootCmd.PersistentFlags().DurationVar(&maxInterval, "max-interval", 0, "stop when replies dry up for this long (0 = off)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")
}

// connect dials the server and returns the discovery client. The
// caller closes the bus.
func connect() (bus.Bus, *client.Client, error) {
	b, err := bus.Connect(serverURL)
	if err != nil {
		return nil, nil, err
	}
	return b, client.New(b, client.WithDefaultMaxWait(maxWait)), nil
}

func discoverOpts() []client.ReqOpt {
	opts := []client.ReqOpt{client.MaxWait(maxWait)}
	if maxCount > 0 {
		opts = append(opts, client.MaxCount(maxCount))
	}
	if maxInterval > 0 {
		opts = append(opts, client.MaxInterval(maxInterval))
	}
	return opts
}

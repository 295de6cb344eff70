// Command streamtail subscribes to events on a stream and prints each
// payload as one JSON line.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/eventstream/internal/version"
)

type options struct {
	configPath string
	envFile    string
	url        string
	baseURL    string
	events     []string
	namespace  string
	debounce   time.Duration
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "streamtail --event NAME [--event NAME...]",
		Short: "Tail events from a real-time event stream",
		Long: `streamtail keeps a single stream connection alive, reconnecting with
backoff and refreshing stale connections, and prints every payload delivered
to the requested events. Connection changes are logged.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config (ignored if missing)")
	f.StringVar(&opts.url, "url", "", "fixed stream url, overrides provider.url")
	f.StringVar(&opts.baseURL, "base-url", "", "connection-info base url, overrides provider.base_url")
	f.StringSliceVarP(&opts.events, "event", "e", nil, "event name to subscribe to (repeatable)")
	f.StringVarP(&opts.namespace, "namespace", "n", "streamtail", "handler id namespace")
	f.DurationVar(&opts.debounce, "debounce", 0, "delay each delivery by this long")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "streamtail:", err)
		os.Exit(1)
	}
}

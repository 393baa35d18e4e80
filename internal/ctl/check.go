package ctl

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/wxalerts/internal/feed"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
	"github.com/linnemanlabs/wxalerts/internal/prefs"
)

// CheckCmd runs a single poll tick and prints the requested effects.
func CheckCmd(sf *storeFlags) *cobra.Command {
	var (
		prefsFile string
		zone      string
		feedURL   string
		userAgent string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch active alerts once and apply them to the stored state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closeFn, err := sf.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			settings, err := prefs.Load(prefsFile, zone, nil)
			if err != nil {
				return err
			}
			st := settings.Current()
			if zone != "" {
				st.Zone = zone
			}
			// a manual check runs even when polling is switched off
			st.Enabled = true

			sink := ingest.SinkFunc(func(_ context.Context, e ingest.Effect) error {
				printEffect(cmd, e)
				return nil
			})
			p := ingest.NewPoller(store, feed.New(feedURL, userAgent, timeout), ingest.StaticSettings(st), sink, nil, ingest.Hooks{})
			rep, err := p.Tick(ctx)
			if err != nil {
				return err
			}
			for _, d := range rep.Decisions {
				printf(cmd, "%s\t%s\n", d.AlertID, d.Classification)
			}
			printf(cmd, "zone %s: %d fetched, %d rejected, %d filtered, %d processed\n",
				st.Zone, rep.Fetched, rep.Rejected, rep.Filtered, len(rep.Decisions))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&prefsFile, "prefs-file", "config/preferences.json", "user preferences file")
	f.StringVar(&zone, "zone", "", "forecast zone (overrides preferences)")
	f.StringVar(&feedURL, "feed-url", feed.DefaultBaseURL, "base URL of the alerts feed")
	f.StringVar(&userAgent, "user-agent", feed.DefaultUserAgent, "User-Agent sent to the feed")
	f.DurationVar(&timeout, "timeout", 15*time.Second, "feed request timeout")
	return cmd
}

func printEffect(cmd *cobra.Command, e ingest.Effect) {
	switch e.Kind {
	case ingest.EffectPlaySound:
		printf(cmd, "effect\t%s\t%s\n", e.Kind, e.Tier)
	case ingest.EffectNotify:
		printf(cmd, "effect\t%s\t%s\tsilent=%t\n", e.Kind, e.Title, e.Silent)
	case ingest.EffectUrgentAlert:
		printf(cmd, "effect\t%s\t%s\n", e.Kind, e.Alert.ID)
	case ingest.EffectReportError:
		printf(cmd, "effect\t%s\t%s\n", e.Kind, e.Message)
	default:
		printf(cmd, "effect\t%s\n", e.Kind)
	}
}

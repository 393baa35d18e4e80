package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// AlertsCmd lists stored alerts, most recent first.
func AlertsCmd(sf *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List stored alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := sf.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			alerts, err := store.StoredAlerts(cmd.Context())
			if err != nil {
				return err
			}
			for i := range alerts {
				printf(cmd, "%s\t%s\t%s\n", alerts[i].ID, alerts[i].Severity, alerts[i].Headline)
			}
			return nil
		},
	}
}

// ShowCmd prints one stored alert as JSON.
func ShowCmd(sf *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := sf.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			al, ok, err := store.FindStored(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("alert %s not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(al)
		},
	}
}

// ResetCmd clears seen ids and stored alerts. With --api-url the reset goes
// through a running daemon, which refuses it while a poll tick is in flight.
// Without it the store is cleared directly, so the daemon must be stopped.
func ResetCmd(sf *storeFlags) *cobra.Command {
	var (
		yes      bool
		apiURL   string
		apiToken string
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every seen and stored alert",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			if apiURL != "" {
				if err := remoteReset(cmd.Context(), apiURL, apiToken); err != nil {
					return err
				}
				printf(cmd, "alert state reset\n")
				return nil
			}

			store, closeFn, err := sf.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			printf(cmd, "alert state reset\n")
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&yes, "yes", false, "confirm the reset")
	f.StringVar(&apiURL, "api-url", "", "reset through a running wxalerts daemon at this base URL")
	f.StringVar(&apiToken, "api-token", "", "bearer token for the daemon's control routes")
	return cmd
}

func remoteReset(ctx context.Context, baseURL, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/v1/reset", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reset via daemon: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusConflict:
		return errors.New("daemon is running an alert check, retry shortly")
	default:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return fmt.Errorf("reset via daemon: %s: %s", resp.Status, body.Error)
	}
}

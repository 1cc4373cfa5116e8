package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/proxy"
	"mercator-hq/sentinel/pkg/server"
)

var adminFlags struct {
	server  string
	prefix  string
	apiKey  string
	timeout time.Duration
	path    string
	tier    string
	format  string
}

var statusCmd = &cobra.Command{
	Use:   "status [client-id]",
	Short: "Show a client's current rate limit usage",
	Long: `Query the admin API of a running gateway for the usage of every window of
the policy that applies to a client. Counting is not affected.

Client ids are "ip:<address>" or "user:<id>". Without a client id the
status of the calling client is shown.

Examples:
  # Usage under the default policy
  sentinel status ip:203.0.113.7

  # Usage under the policy for a path, as a premium client
  sentinel status user:42 --path /api/chatbot/ask --tier premium

  # Raw JSON
  sentinel status user:42 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: showStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset <client-id>",
	Short: "Clear every rate limit counter of a client",
	Long: `Ask the admin API of a running gateway to delete all counters of a client.
Resetting a client with no counters succeeds.

Examples:
  sentinel reset ip:203.0.113.7 --server http://gateway:8080`,
	Args: cobra.ExactArgs(1),
	RunE: resetClient,
}

func init() {
	rootCmd.AddCommand(statusCmd, resetCmd)

	for _, cmd := range []*cobra.Command{statusCmd, resetCmd} {
		cmd.Flags().StringVar(&adminFlags.server, "server", "http://127.0.0.1:8080", "gateway base URL")
		cmd.Flags().StringVar(&adminFlags.prefix, "prefix", "/admin/ratelimit", "admin API path prefix")
		cmd.Flags().StringVar(&adminFlags.apiKey, "api-key", "", "API key sent as X-API-Key")
		cmd.Flags().DurationVar(&adminFlags.timeout, "timeout", 10*time.Second, "request timeout")
	}
	statusCmd.Flags().StringVar(&adminFlags.path, "path", "", "request path selecting the policy")
	statusCmd.Flags().StringVar(&adminFlags.tier, "tier", "", "tier override: anonymous, authenticated, premium")
	statusCmd.Flags().StringVar(&adminFlags.format, "format", "text", "output format: text, json, csv")
}

// adminClient calls the admin API of a running gateway.
type adminClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newAdminClient(serverURL, prefix, apiKey string, timeout time.Duration) (*adminClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}
	return &adminClient{
		base:   strings.TrimRight(serverURL, "/") + "/" + strings.Trim(prefix, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// Status fetches the usage of client, or of the caller when client is empty.
func (c *adminClient) Status(ctx context.Context, client, path, tier string) (*server.StatusResponse, error) {
	target := c.base + "/status"
	if client != "" {
		target = c.base + "/clients/" + url.PathEscape(client)
	}

	q := url.Values{}
	if path != "" {
		q.Set("path", path)
	}
	if tier != "" {
		q.Set("tier", tier)
	}
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var resp server.StatusResponse
	if err := c.do(ctx, http.MethodGet, target, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset clears every counter of client.
func (c *adminClient) Reset(ctx context.Context, client string) (*server.ResetResponse, error) {
	var resp server.ResetResponse
	if err := c.do(ctx, http.MethodDelete, c.base+"/clients/"+url.PathEscape(client), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *adminClient) do(ctx context.Context, method, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read admin response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr proxy.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("admin API returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("admin API returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode admin response: %w", err)
	}
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(adminFlags.format)
	if err != nil {
		return err
	}

	client, err := newAdminClient(adminFlags.server, adminFlags.prefix, adminFlags.apiKey, adminFlags.timeout)
	if err != nil {
		return err
	}

	var clientID string
	if len(args) == 1 {
		clientID = args[0]
	}

	status, err := client.Status(cmd.Context(), clientID, adminFlags.path, adminFlags.tier)
	if err != nil {
		return cli.NewCommandError("status", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, status)
	}

	if format == cli.FormatText {
		fmt.Fprintf(out, "Client: %s (%s)\n", status.ClientID, status.Tier)
		fmt.Fprintf(out, "Policy: %s\n\n", status.Policy)
	}
	return cli.NewFormatter(format).FormatTo(out, usageTable(status))
}

// usageTable lists windows from shortest to longest.
func usageTable(status *server.StatusResponse) *cli.Table {
	names := make([]string, 0, len(status.RateLimits))
	for name := range status.RateLimits {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := status.RateLimits[names[i]], status.RateLimits[names[j]]
		if a.WindowSeconds != b.WindowSeconds {
			return a.WindowSeconds < b.WindowSeconds
		}
		return names[i] < names[j]
	})

	table := &cli.Table{Headers: []string{"WINDOW", "COUNT", "WINDOW_SECONDS"}}
	for _, name := range names {
		w := status.RateLimits[name]
		table.AddRow(name, w.CurrentCount, w.WindowSeconds)
	}
	return table
}

func resetClient(cmd *cobra.Command, args []string) error {
	client, err := newAdminClient(adminFlags.server, adminFlags.prefix, adminFlags.apiKey, adminFlags.timeout)
	if err != nil {
		return err
	}

	resp, err := client.Reset(cmd.Context(), args[0])
	if err != nil {
		return cli.NewCommandError("reset", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Reset %s (%d counters removed)\n", resp.ClientID, resp.Removed)
	return nil
}

// Package main implements the pulse CLI for running analyses and querying
// the releasepulsed HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the releasepulsed HTTP server
	serverURL string
	// configPath is the YAML config file used by local commands
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "CLI for release feedback analysis",
	Long: `pulse runs the feedback analysis pipeline over a review CSV and queries
the releasepulsed HTTP server for backlogs, regressions, and persistent themes.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "releasepulsed server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(regressionsCmd)
	rootCmd.AddCommand(persistentCmd)
	rootCmd.AddCommand(healthCmd)
}

// backlogCmd fetches the ranked priority backlog
var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Show the ranked priority backlog",
	Long: `Show the RICE priority backlog for the latest analyzed release.

Examples:
  # Full backlog
  pulse backlog

  # Top 5 themes only
  pulse backlog --top 5`,
	Args: cobra.NoArgs,
	RunE: runBacklog,
}

var backlogTop int

// regressionsCmd lists regressing themes for a release
var regressionsCmd = &cobra.Command{
	Use:   "regressions <release>",
	Short: "Show themes that regressed at a release",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegressions,
}

// persistentCmd lists chronically painful themes
var persistentCmd = &cobra.Command{
	Use:   "persistent",
	Short: "Show persistently painful themes",
	Args:  cobra.NoArgs,
	RunE:  runPersistent,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check releasepulsed server health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	backlogCmd.Flags().IntVar(&backlogTop, "top", 0, "limit to the top N themes (0 = all)")
}

func runBacklog(cmd *cobra.Command, args []string) error {
	url := serverURL + "/api/v1/backlog"
	if backlogTop > 0 {
		url = fmt.Sprintf("%s?top_n=%d", url, backlogTop)
	}

	var items []struct {
		Rank         int     `json:"rank"`
		Release      string  `json:"release"`
		ThemeID      string  `json:"theme_id"`
		Score        float64 `json:"priority_score"`
		Effort       int     `json:"effort"`
		IsRegression bool    `json:"is_regression"`
		IsPersistent bool    `json:"is_persistent"`
	}
	if err := getJSON(url, &items); err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("Backlog is empty.")
		return nil
	}
	fmt.Printf("Priority backlog for release %s:\n", items[0].Release)
	for _, item := range items {
		fmt.Printf("  %2d. %-12s score=%.4f effort=%d%s%s\n",
			item.Rank, item.ThemeID, item.Score, item.Effort,
			mark(item.IsRegression, " [regression]"),
			mark(item.IsPersistent, " [persistent]"))
	}
	return nil
}

func runRegressions(cmd *cobra.Command, args []string) error {
	var rows []signalRow
	if err := getJSON(serverURL+"/api/v1/releases/"+args[0]+"/regressions", &rows); err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Printf("No regressions at release %s.\n", args[0])
		return nil
	}
	fmt.Printf("Regressions at release %s:\n", args[0])
	for _, row := range rows {
		fmt.Printf("  %-12s delta=%+.4f normalized_signal=%.4f reviews=%d\n",
			row.ThemeID, row.Delta, row.NormalizedSignal, row.ReviewCount)
	}
	return nil
}

func runPersistent(cmd *cobra.Command, args []string) error {
	var rows []signalRow
	if err := getJSON(serverURL+"/api/v1/themes/persistent", &rows); err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No persistently painful themes.")
		return nil
	}
	fmt.Println("Persistently painful themes:")
	for _, row := range rows {
		fmt.Printf("  %-12s normalized_signal=%.4f as of %s\n",
			row.ThemeID, row.NormalizedSignal, row.Release)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var health struct {
		Status string `json:"status"`
	}
	if err := getJSON(serverURL+"/health", &health); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	fmt.Printf("Server status: %s\n", health.Status)
	return nil
}

type signalRow struct {
	Release          string  `json:"release"`
	ThemeID          string  `json:"theme_id"`
	NormalizedSignal float64 `json:"normalized_signal"`
	ReviewCount      int     `json:"review_count"`
	Delta            float64 `json:"delta"`
}

func getJSON(url string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func mark(on bool, label string) string {
	if on {
		return label
	}
	return ""
}

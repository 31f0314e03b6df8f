package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or purge the request cache",
	Long: `The request cache remembers which sources answered (or had nothing) for
each title so later runs skip repeated lookups. Entries never expire; purge
them when a source may have gained a document since the last run.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached entries per source",
	RunE:  runCacheStats,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove cached entries",
	RunE:  runCachePurge,
}

func init() {
	cacheCmd.PersistentFlags().String("cache", "", "request cache database (default .paperfetch/cache.db)")

	cachePurgeCmd.Flags().String("backend", "", "purge only this source (crossref, arxiv, openalex, semantic_scholar)")
	cachePurgeCmd.Flags().Bool("failures-only", false, "purge only cached not-found answers")

	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCacheFromConfig(cmd *cobra.Command) (*cache.Cache, string, error) {
	if err := bindFlags(viper.GetViper(), cmd, map[string]string{"cache.path": "cache"}); err != nil {
		return nil, "", err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, "", err
	}
	c, err := cache.Open(cfg.Cache, nil)
	return c, cfg.Cache.Path, err
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, path, err := openCacheFromConfig(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	stats := c.Stats()
	backends := make([]string, 0, len(stats))
	for b := range stats {
		backends = append(backends, b)
	}
	sort.Strings(backends)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache: %s\n", path)
	for _, b := range backends {
		fmt.Fprintf(out, "  %-10s %d\n", b, stats[b])
	}
	fmt.Fprintf(out, "Total: %d entries\n", c.Len())
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	backend, _ := cmd.Flags().GetString("backend")
	failuresOnly, _ := cmd.Flags().GetBool("failures-only")

	c, _, err := openCacheFromConfig(cmd)
	if err != nil {
		return err
	}
	n, err := c.Purge(backend, failuresOnly)
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries\n", n)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedsift/feedsift/internal/history"
	"github.com/feedsift/feedsift/internal/quota"
	"github.com/feedsift/feedsift/internal/store"
)

func init() {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent classification log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := store.OpenSQLite(dbFlag)
			if err != nil {
				return err
			}
			defer func() { _ = kv.Close() }()

			raw, ok, err := kv.Get(context.Background(), history.StoreKey)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(os.Stdout, "no history recorded")
				return nil
			}
			var entries []history.Entry
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("corrupt history log: %w", err)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				src := "oracle"
				if e.FromCache {
					src = "cache"
				}
				fmt.Fprintf(os.Stdout, "%s  %-8s  %-6s  %s  %q\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Verdict, src, e.Fingerprint, truncate(e.Text, 60))
			}
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Max entries to print")
	rootCmd.AddCommand(historyCmd)

	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Print today's usage quota state",
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := store.OpenSQLite(dbFlag)
			if err != nil {
				return err
			}
			defer func() { _ = kv.Close() }()

			raw, ok, err := kv.Get(context.Background(), quota.StoreKey)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(os.Stdout, "no quota state recorded")
				return nil
			}
			var st quota.State
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("corrupt quota state: %w", err)
			}
			fmt.Fprintf(os.Stdout, "date: %s\nused: %ds of %ds\nlocked: %v\n",
				st.Date, st.UsedSeconds, st.LimitSeconds, st.Locked)
			return nil
		},
	}
	rootCmd.AddCommand(quotaCmd)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

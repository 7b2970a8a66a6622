package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the translation cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached factor tables and overlays",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, closeCache, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()
		if c == nil {
			fmt.Println("cache disabled")
			return nil
		}

		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("driver:        %s\n", cfg.Cache.Driver)
		fmt.Printf("factor tables: %d\n", st.Factors)
		fmt.Printf("overlays:      %d\n", st.Overlays)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached factor table and overlay",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, closeCache, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()
		if c == nil {
			fmt.Println("cache disabled")
			return nil
		}

		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

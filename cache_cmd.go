package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/client"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the server's audio cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and cache status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tts.LoadConfig()
		if err != nil {
			return err
		}

		status, err := client.New(baseURL(cfg)).Status(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached audio unit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tts.LoadConfig()
		if err != nil {
			return err
		}

		if err := client.New(baseURL(cfg)).ClearCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)
	cacheCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "server address (default from config)")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/client"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices the server can speak with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tts.LoadConfig()
		if err != nil {
			return err
		}

		voices, err := client.New(baseURL(cfg)).Voices(cmd.Context())
		if err != nil {
			return err
		}
		for _, v := range voices {
			marker := " "
			if v.ID == tts.DefaultVoice {
				marker = "*"
			}
			fmt.Printf("%s %-14s %s\n", marker, v.ID, v.Language)
		}
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the generation presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tts.LoadConfig()
		if err != nil {
			return err
		}

		presets, err := client.New(baseURL(cfg)).Presets(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range presets {
			marker := " "
			if p.ID == tts.DefaultPreset {
				marker = "*"
			}
			fmt.Printf("%s %-14s %s\n", marker, p.ID, p.Description)
		}
		return nil
	},
}

func init() {
	voicesCmd.Flags().StringVar(&serverAddr, "server", "", "server address (default from config)")
	presetsCmd.Flags().StringVar(&serverAddr, "server", "", "server address (default from config)")
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/audio"
	"github.com/readaloud/readaloud/tts/client"
)

var (
	speakVoice  string
	speakPreset string
	speakVolume float64
	serverAddr  string
)

var speakCmd = &cobra.Command{
	Use:   "speak [FILE]",
	Short: "Read text aloud through the synthesis server",
	Long:  "\nRead a text file (or stdin) aloud. Sentences are synthesized on the server and played as they arrive; playback starts as soon as the first sentence is ready.",
	Example: `readaloud speak chapter1.txt
cat chapter1.txt | readaloud speak
readaloud speak chapter1.txt --voice emma --preset standard`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := tts.LoadConfig()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("volume") {
			speakVolume = cfg.Volume
		}
		if speakVolume < 0 || speakVolume > 1 {
			return tts.ErrInvalidVolume
		}

		text, err := readText(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := client.New(baseURL(cfg))
		stream, err := c.Generate(ctx, text, speakVoice, speakPreset)
		if err != nil {
			return err
		}
		defer stream.Close()
		log.Info("generation started",
			"sentences", stream.SentenceCount(), "request_id", stream.RequestID())

		out := audio.NewOtoOutput()
		defer func() { _ = out.Close() }()

		ctrl, err := audio.NewController(out, speakVolume)
		if err != nil {
			return err
		}
		if err := ctrl.Start(ctx, stream); err != nil {
			return err
		}

		if err := ctrl.Wait(ctx); err != nil {
			_ = ctrl.Stop()
			return err
		}
		return nil
	},
}

func init() {
	speakCmd.Flags().StringVar(&speakVoice, "voice", tts.DefaultVoice, "synthesis voice")
	speakCmd.Flags().StringVar(&speakPreset, "preset", tts.DefaultPreset, "generation preset")
	speakCmd.Flags().Float64Var(&speakVolume, "volume", 1.0, "playback volume (0 to 1)")
	speakCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "server address (default from config)")
}

func readText(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func baseURL(cfg tts.Config) string {
	addr := cfg.ListenAddr
	if serverAddr != "" {
		addr = serverAddr
	}
	return "http://" + addr
}

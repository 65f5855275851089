package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gapless",
	Short: "Gapless audio playback engine",
	Long: `gapless - a gapless, realtime audio-playback engine built on a lock-free
ring buffer, a wait-free active-decoder set, and a PortAudio output device.

Features:
  - Sample-accurate gapless transitions between queued tracks
  - Lock-free SPSC ring buffer addressed by absolute frame index
  - MP3, FLAC, WAV, Opus, and Ogg Vorbis decoding
  - Seek, pause/resume, and output-device reconfiguration without audible gaps
  - Sample rate and format conversion via SoXR

Commands:
  - play:      Queue one or more audio files and play them back gaplessly
  - transform: Convert an audio file to a different sample rate and WAV format

Output device selection, seeking, and queue control are exposed as flags on
play (--device, --seek) rather than as separate subcommands, since a single
process drives one PortAudio stream for the lifetime of the playlist.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

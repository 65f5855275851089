package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/gapless/internal/engine"
	"github.com/drgolem/gapless/pkg/converter"
	"github.com/drgolem/gapless/pkg/decoders"
	"github.com/drgolem/gapless/pkg/device"
	"github.com/drgolem/gapless/pkg/types"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	playDeviceIdx       int
	playBufferFrames    uint64
	playFramesPerBuffer int
	playOutputRate      int
	playOutputChannels  int
	playSeekSeconds     float64
	playVerbose         bool
	playShowVersion     bool
)

// playCmd represents the play command. It plays a whole playlist through
// a single internal/engine.PlayerController queue rather than closing and
// reopening the PortAudio stream for each file, which is what makes
// gapless transitions between tracks possible.
var playCmd = &cobra.Command{
	Use:   "play <audio_file> [audio_file...]",
	Short: "Play one or more audio files back to back with gapless transitions",
	Long: `Play one or more audio files using the gapless engine's lock-free ring
buffer and wait-free active-decoder set. The PortAudio stream is opened once
and stays open across every
track: transitions between queued files never stop or reopen the device.

Examples:
  # Play a single file
  gapless play music.mp3

  # Play several files back to back, gaplessly
  gapless play track1.flac track2.flac track3.flac

  # Use a specific output device
  gapless play -d 0 music.wav

  # Seek 30 seconds into the first track once playback starts
  gapless play --seek 30 music.flac

Supported Formats:
  MP3:  .mp3 (16-bit lossy)
  FLAC: .flac, .fla (lossless, decoded to 16-bit)
  WAV:  .wav (8/16/24/32-bit PCM)
  Opus: .opus
  Vorbis: .ogg

All enqueued files must share the same sample rate, channel count, and bit
depth; a mismatched file is rejected rather than silently resampled.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVarP(&playDeviceIdx, "device", "d", -1, "Audio output device index (-1 for PortAudio default)")
	playCmd.Flags().Uint64VarP(&playBufferFrames, "capacity", "c", 16384, "Ring buffer capacity in frames")
	playCmd.Flags().IntVarP(&playFramesPerBuffer, "frames", "f", 512, "PortAudio frames per buffer")
	playCmd.Flags().IntVar(&playOutputRate, "output-rate", 0, "Output sample rate in Hz (0 = match first file)")
	playCmd.Flags().IntVar(&playOutputChannels, "output-channels", 0, "Output channel count (0 = match first file)")
	playCmd.Flags().Float64Var(&playSeekSeconds, "seek", 0, "Seek this many seconds into the first track once playback starts")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "Verbose output (debug logging)")
	playCmd.Flags().BoolVar(&playShowVersion, "version", false, "Show version information")
}

func runPlay(cmd *cobra.Command, args []string) {
	if playShowVersion {
		fmt.Printf("gapless v%s\n", version)
		fmt.Println("Built with:")
		fmt.Println("  - Lock-free SPSC ring buffer addressed by absolute frame index")
		fmt.Println("  - Wait-free active-decoder set for gapless track transitions")
		fmt.Println("  - SoXR-backed sample rate and format conversion")
		fmt.Println("  - PortAudio for cross-platform audio output")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if playVerbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	for _, f := range args {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			slog.Error("File not found", "path", f)
			os.Exit(1)
		}
	}

	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	dev := device.New()
	if err := dev.Open(playDeviceIdx); err != nil {
		slog.Error("Failed to open output device", "error", err)
		os.Exit(1)
	}
	if err := dev.SetBufferFrameSize(playFramesPerBuffer); err != nil {
		slog.Error("Failed to configure device buffer size", "error", err)
		os.Exit(1)
	}

	config := engine.DefaultConfig()
	config.RingBufferCapacityFrames = playBufferFrames
	config.DeviceIndex = playDeviceIdx

	controller := engine.NewPlayerController(dev, config)
	defer controller.Close()

	decodersOpened := make([]types.AudioDecoder, 0, len(args))
	for i, f := range args {
		d, err := decoders.NewDecoder(f)
		if err != nil {
			slog.Error("Failed to open decoder", "file", f, "error", err)
			continue
		}
		decodersOpened = append(decodersOpened, d)

		if i == 0 {
			rate, channels, bits := d.GetFormat()
			outRate := rate
			if playOutputRate > 0 {
				outRate = playOutputRate
			}
			outChannels := channels
			if playOutputChannels > 0 {
				outChannels = playOutputChannels
			}
			src := types.PCMFormat{SampleRate: rate, Channels: channels, BytesPerSample: bits / 8}
			dst := types.PCMFormat{SampleRate: outRate, Channels: outChannels, BytesPerSample: bits / 8}
			conv, err := converter.New(src, dst)
			if err != nil {
				slog.Error("Failed to build converter", "error", err)
				os.Exit(1)
			}
			controller.SetConverter(conv)
			slog.Info("Audio configuration",
				"device_index", playDeviceIdx,
				"capacity_frames", playBufferFrames,
				"frames_per_buffer", playFramesPerBuffer,
				"input_format", fmt.Sprintf("%dHz:%dch:%dbit", rate, channels, bits),
				"output_format", fmt.Sprintf("%dHz:%dch:%dbit", outRate, outChannels, bits))
		}

		if err := controller.Enqueue(d); err != nil {
			slog.Error("Failed to enqueue file", "file", f, "error", err)
			d.Close()
		}
	}

	if len(decodersOpened) == 0 {
		slog.Error("No files could be opened, nothing to play")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Starting playback", "file_count", len(args))
	if err := controller.Play(); err != nil {
		slog.Error("Failed to start playback", "error", err)
		os.Exit(1)
	}

	if playSeekSeconds > 0 {
		go func() {
			time.Sleep(200 * time.Millisecond)
			if !controller.SeekBySeconds(playSeekSeconds) {
				slog.Warn("Seek request was rejected", "seconds", playSeekSeconds)
			}
		}()
	}

	statusDone := make(chan struct{})
	go monitorPlayback(controller, statusDone)

	done := make(chan struct{})
	go func() {
		controller.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Playback completed successfully")
	case sig := <-sigChan:
		slog.Info("Signal received, stopping playback", "signal", sig)
		if err := controller.Stop(); err != nil {
			slog.Error("Failed to stop controller", "error", err)
		}
	}

	close(statusDone)
	slog.Info("Exiting")
}

// monitorPlayback logs playback status every 2 seconds for any
// PlaybackMonitor.
func monitorPlayback(monitor types.PlaybackMonitor, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := monitor.GetPlaybackStatus()

			playedSeconds := float64(status.PlayedSamples) / float64(status.SampleRate)
			bufferedSeconds := float64(status.BufferedSamples) / float64(status.SampleRate)

			slog.Info("Playback status",
				"file", status.FileName,
				"format", fmt.Sprintf("%dHz:%dbit:%dch", status.SampleRate, status.BitsPerSample, status.Channels),
				"played", fmt.Sprintf("%.3fs", playedSeconds),
				"buffered", fmt.Sprintf("%.3fs", bufferedSeconds),
				"elapsed", status.ElapsedTime.Round(time.Millisecond).String())
		case <-done:
			return
		}
	}
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/gapless/pkg/converter"
	"github.com/drgolem/gapless/pkg/decoders"
	"github.com/drgolem/gapless/pkg/types"

	"github.com/spf13/cobra"
	wav "github.com/youpy/go-wav"
)

// transformChunkFrames is the dst-format frame count requested per
// converter.Resampler.Fill call while draining a file to completion.
const transformChunkFrames = 4096

var transformCmd = &cobra.Command{
	Use:   "transform <input_file>",
	Short: "Transform audio file sample rate and format",
	Long: `Transform audio files to different sample rates and convert to WAV format.
Supports input from MP3, FLAC, and WAV formats with optional mono conversion.
Uses the same SoXR-backed converter.Resampler the playback engine drives in
its realtime render path, run here to completion against an in-memory
output buffer instead of a device callback.

Examples:
  # Transform MP3 to 48kHz WAV
  gapless transform input.mp3 --new-samplerate 48000 --out output.wav

  # Transform FLAC to 44.1kHz mono WAV
  gapless transform input.flac --new-samplerate 44100 --mono --out output.wav

  # Transform WAV with default settings (48kHz)
  gapless transform input.wav

Supported Input Formats:
  - MP3 (.mp3)
  - FLAC (.flac)
  - WAV (.wav)

Output Format:
  - WAV (PCM at the input's bit depth)

Sample Rate Options:
  Common rates: 8000, 16000, 22050, 44100, 48000, 96000, 192000 Hz`,
	Args: cobra.ExactArgs(1),
	Run:  runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().Int("new-samplerate", 48000, "Target sample rate in Hz")
	transformCmd.Flags().String("out", "out_transformed.wav", "Output WAV file path")
	transformCmd.Flags().Bool("mono", false, "Convert output to mono signal (average channels)")
}

func runTransform(cmd *cobra.Command, args []string) {
	inFileName := args[0]

	if _, err := os.Stat(inFileName); os.IsNotExist(err) {
		slog.Error("Input file not found", "path", inFileName)
		os.Exit(1)
	}

	newSampleRate, err := cmd.Flags().GetInt("new-samplerate")
	if err != nil {
		slog.Error("Failed to get new-samplerate flag", "error", err)
		os.Exit(1)
	}

	outFileName, err := cmd.Flags().GetString("out")
	if err != nil {
		slog.Error("Failed to get out flag", "error", err)
		os.Exit(1)
	}

	convertToMono, err := cmd.Flags().GetBool("mono")
	if err != nil {
		slog.Error("Failed to get mono flag", "error", err)
		os.Exit(1)
	}

	if newSampleRate <= 0 || newSampleRate > 384000 {
		slog.Error("Invalid sample rate", "rate", newSampleRate, "valid_range", "1-384000")
		os.Exit(1)
	}

	decoder, err := decoders.NewDecoder(inFileName)
	if err != nil {
		slog.Error("Failed to create decoder", "error", err)
		os.Exit(1)
	}
	defer decoder.Close()

	inSampleRate, channels, bitsPerSample := decoder.GetFormat()

	outChannels := channels
	if convertToMono && channels > 1 {
		outChannels = 1
	}

	slog.Info("Audio transformation starting",
		"input_file", inFileName,
		"input_sample_rate", inSampleRate,
		"input_channels", channels,
		"input_bits_per_sample", bitsPerSample,
		"output_sample_rate", newSampleRate,
		"output_channels", outChannels,
		"output_file", outFileName)

	src := types.PCMFormat{SampleRate: inSampleRate, Channels: channels, BytesPerSample: bitsPerSample / 8}
	dst := types.PCMFormat{SampleRate: newSampleRate, Channels: outChannels, BytesPerSample: bitsPerSample / 8}

	conv, err := converter.New(src, dst)
	if err != nil {
		slog.Error("Failed to build converter", "error", err)
		os.Exit(1)
	}
	defer conv.Dispose()

	slog.Info("Resampling audio", "from_rate", inSampleRate, "to_rate", newSampleRate)

	outputData, outSamples, err := drainConverter(decoder, conv, src, dst)
	if err != nil {
		slog.Error("Failed to resample audio", "error", err)
		os.Exit(1)
	}

	slog.Info("Resampling complete",
		"output_samples", outSamples,
		"output_bytes", len(outputData))

	slog.Info("Writing output WAV file", "path", outFileName)
	if err := writeWAVFile(outFileName, outputData, uint32(outSamples), uint16(outChannels), uint32(newSampleRate), uint16(bitsPerSample)); err != nil {
		slog.Error("Failed to write WAV file", "error", err)
		os.Exit(1)
	}

	slog.Info("Transformation complete",
		"output_samples", outSamples,
		"sample_rate_ratio", fmt.Sprintf("%.3f", float64(newSampleRate)/float64(inSampleRate)))
}

// drainConverter pulls src-format PCM straight from decoder through conv
// in fixed-size chunks until the decoder is exhausted, accumulating the
// dst-format result in memory. decoder.DecodeSamples doubles as the
// converter's InputCallback, the same input-pull contract the engine's
// render path uses against a RingBuffer instead of a decoder directly.
func drainConverter(decoder types.AudioDecoder, conv *converter.Resampler, src, dst types.PCMFormat) ([]byte, int, error) {
	srcBpf := src.BytesPerFrame()
	scratch := make([]byte, transformChunkFrames*srcBpf)

	input := func(maxFrames uint64) ([]byte, uint64) {
		want := int(maxFrames)
		need := want * srcBpf
		if need > len(scratch) {
			scratch = make([]byte, need)
		}
		n, _ := decoder.DecodeSamples(want, scratch)
		if n <= 0 {
			return nil, 0
		}
		return scratch[:n*srcBpf], uint64(n)
	}

	dstBpf := dst.BytesPerFrame()
	chunk := make([]byte, transformChunkFrames*dstBpf)

	var out []byte
	totalFrames := 0
	for {
		n, err := conv.Fill(transformChunkFrames, chunk, input)
		if err != nil {
			return nil, 0, err
		}
		if n > 0 {
			out = append(out, chunk[:n*dstBpf]...)
			totalFrames += n
		}
		if n < transformChunkFrames {
			break
		}
	}

	return out, totalFrames, nil
}

// writeWAVFile writes audio data to a WAV file
func writeWAVFile(fileName string, audioData []byte, numSamples uint32, numChannels uint16, sampleRate uint32, bitsPerSample uint16) error {
	fOut, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer fOut.Close()

	wavWriter := wav.NewWriter(fOut, numSamples, numChannels, sampleRate, bitsPerSample)

	if _, err := wavWriter.Write(audioData); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return nil
}

package decoders

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/drgolem/gapless/pkg/decoders/flac"
	"github.com/drgolem/gapless/pkg/decoders/mp3"
	"github.com/drgolem/gapless/pkg/decoders/opus"
	"github.com/drgolem/gapless/pkg/decoders/vorbis"
	"github.com/drgolem/gapless/pkg/decoders/wav"
	"github.com/drgolem/gapless/pkg/types"
)

// ErrUnsupportedFormat is returned by NewDecoder for an unrecognized
// extension.
var ErrUnsupportedFormat = errors.New("decoders: unsupported file format")

// NewDecoder creates and opens the appropriate decoder based on file extension.
// Supports .mp3, .flac, .fla, .wav, .opus, and .ogg formats.
// Returns an opened decoder ready for use, or an error if the format is unsupported
// or the file cannot be opened.
func NewDecoder(fileName string) (types.AudioDecoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	var decoder types.AudioDecoder

	switch ext {
	case ".mp3":
		decoder = mp3.NewDecoder()
	case ".flac", ".fla":
		decoder = flac.NewDecoder()
	case ".wav":
		decoder = wav.NewDecoder()
	case ".opus":
		decoder = opus.NewDecoder()
	case ".ogg":
		decoder = vorbis.NewDecoder()
	default:
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}

	if err := decoder.Open(fileName); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	return decoder, nil
}

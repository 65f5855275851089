package metadata

import (
	"errors"
	"testing"
)

func TestNopProviderReadTags(t *testing.T) {
	var p Provider = NopProvider{}
	_, err := p.ReadTags("song.flac")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("ReadTags error = %v, want ErrUnsupported", err)
	}
}

func TestNopProviderReplayGain(t *testing.T) {
	var p Provider = NopProvider{}
	_, err := p.ReplayGain("song.flac")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("ReplayGain error = %v, want ErrUnsupported", err)
	}
}

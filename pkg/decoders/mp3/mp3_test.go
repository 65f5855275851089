package mp3

import "testing"

func TestNewDecoder(t *testing.T) {
	decoder := NewDecoder()
	if decoder == nil {
		t.Fatal("NewDecoder returned nil")
	}
}

func TestDecoderGetFormatBeforeOpen(t *testing.T) {
	decoder := NewDecoder()

	rate, channels, bits := decoder.GetFormat()
	if rate != 0 {
		t.Errorf("expected zero rate before Open, got %d", rate)
	}
	if channels != 2 || bits != 16 {
		t.Errorf("GetFormat channels/bits = %d/%d, want 2/16 (go-mp3 always decodes stereo 16-bit)", channels, bits)
	}
}

func TestDecoderCloseWithoutOpen(t *testing.T) {
	decoder := NewDecoder()
	if err := decoder.Close(); err != nil {
		t.Errorf("Close on unopened decoder failed: %v", err)
	}
}

func TestDecodeSamplesWithoutOpen(t *testing.T) {
	decoder := NewDecoder()

	buffer := make([]byte, 1024)
	if _, err := decoder.DecodeSamples(len(buffer)/bytesPerFrame, buffer); err == nil {
		t.Error("expected error when decoding without opening file")
	}
}

func TestSupportsSeekingIsFalse(t *testing.T) {
	decoder := NewDecoder()
	if decoder.SupportsSeeking() {
		t.Error("MP3 decoder reports seek support it does not have")
	}
	if got := decoder.SeekToFrame(5); got != -1 {
		t.Errorf("SeekToFrame = %d, want -1", got)
	}
}

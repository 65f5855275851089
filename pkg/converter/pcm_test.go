package converter

import "testing"

func TestToInt16RoundTrip16Bit(t *testing.T) {
	want := []int16{0, 1, -1, 32767, -32768}
	buf := fromInt16(want, 2)
	got := toInt16(buf, 2, 1)

	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestToInt16RoundTrip24Bit(t *testing.T) {
	want := []int16{0, 1000, -1000, 32767, -32768}
	buf := fromInt16(want, 3)
	got := toInt16(buf, 3, 1)

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestToInt16RoundTrip32Bit(t *testing.T) {
	want := []int16{0, 1000, -1000, 32767, -32768}
	buf := fromInt16(want, 4)
	got := toInt16(buf, 4, 1)

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMixChannelsNoopWhenEqual(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	out := mixChannels(samples, 2, 2)
	if len(out) != len(samples) {
		t.Fatalf("length changed for equal channel counts: %d", len(out))
	}
}

func TestMixChannelsStereoToMonoAverages(t *testing.T) {
	// Two stereo frames: (10, 20) and (-10, 10)
	samples := []int16{10, 20, -10, 10}
	out := mixChannels(samples, 2, 1)

	want := []int16{15, 0}
	if len(out) != len(want) {
		t.Fatalf("length = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("frame %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestMixChannelsMonoToStereoDuplicates(t *testing.T) {
	samples := []int16{42, -7}
	out := mixChannels(samples, 1, 2)

	want := []int16{42, 42, -7, -7}
	if len(out) != len(want) {
		t.Fatalf("length = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}
}

package converter

// toInt16 decodes a little-endian signed PCM buffer of the given bit
// depth into int16 samples, scaling up or down from bytesPerSample as
// needed. 8-bit WAV data is conventionally unsigned, so that width is
// special-cased (subtracting the 128 bias).
func toInt16(buf []byte, bytesPerSample, channels int) []int16 {
	if bytesPerSample <= 0 {
		return nil
	}
	count := len(buf) / bytesPerSample
	out := make([]int16, count)

	switch bytesPerSample {
	case 1:
		for i := 0; i < count; i++ {
			out[i] = int16(int(buf[i])-128) << 8
		}
	case 2:
		for i := 0; i < count; i++ {
			lo := buf[i*2]
			hi := buf[i*2+1]
			out[i] = int16(uint16(lo) | uint16(hi)<<8)
		}
	case 3:
		for i := 0; i < count; i++ {
			b0 := buf[i*3]
			b1 := buf[i*3+1]
			b2 := buf[i*3+2]
			v := int32(b0) | int32(b1)<<8 | int32(b2)<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			out[i] = int16(v >> 8)
		}
	case 4:
		for i := 0; i < count; i++ {
			b0 := buf[i*4]
			b1 := buf[i*4+1]
			b2 := buf[i*4+2]
			b3 := buf[i*4+3]
			v := int32(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24)
			out[i] = int16(v >> 16)
		}
	default:
		// Unrecognized width: treat as 16-bit to stay safe rather than panic.
		return toInt16(buf, 2, channels)
	}

	return out
}

// fromInt16 encodes int16 samples into little-endian PCM of the requested
// bit depth.
func fromInt16(samples []int16, bytesPerSample int) []byte {
	out := make([]byte, len(samples)*bytesPerSample)

	switch bytesPerSample {
	case 1:
		for i, s := range samples {
			out[i] = byte((int(s)>>8)+128) & 0xFF
		}
	case 2:
		for i, s := range samples {
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		}
	case 3:
		for i, s := range samples {
			v := int32(s) << 8
			out[i*3] = byte(v)
			out[i*3+1] = byte(v >> 8)
			out[i*3+2] = byte(v >> 16)
		}
	case 4:
		for i, s := range samples {
			v := int32(s) << 16
			out[i*4] = byte(v)
			out[i*4+1] = byte(v >> 8)
			out[i*4+2] = byte(v >> 16)
			out[i*4+3] = byte(v >> 24)
		}
	default:
		return fromInt16(samples, 2)
	}

	return out
}

func int16ToBytes(samples []int16) []byte {
	return fromInt16(samples, 2)
}

func bytesToInt16(buf []byte) []int16 {
	return toInt16(buf, 2, 1)
}

// mixChannels resamples the channel count of an interleaved int16 stream:
// downmixing averages the source channels into each destination channel,
// upmixing duplicates the source frame across the extra destination
// channels. cmd/transform.go's --mono option reaches this downmix through
// the Resampler.
func mixChannels(samples []int16, srcChannels, dstChannels int) []int16 {
	if srcChannels == dstChannels || srcChannels == 0 || dstChannels == 0 {
		return samples
	}

	frames := len(samples) / srcChannels
	out := make([]int16, frames*dstChannels)

	if dstChannels < srcChannels {
		for f := 0; f < frames; f++ {
			var sum int32
			for ch := 0; ch < srcChannels; ch++ {
				sum += int32(samples[f*srcChannels+ch])
			}
			avg := int16(sum / int32(srcChannels))
			for ch := 0; ch < dstChannels; ch++ {
				out[f*dstChannels+ch] = avg
			}
		}
		return out
	}

	for f := 0; f < frames; f++ {
		for ch := 0; ch < dstChannels; ch++ {
			srcCh := ch
			if srcCh >= srcChannels {
				srcCh = srcChannels - 1
			}
			out[f*dstChannels+ch] = samples[f*srcChannels+srcCh]
		}
	}
	return out
}

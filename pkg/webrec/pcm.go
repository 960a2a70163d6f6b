package webrec

import (
	"encoding/binary"
	"math"
)

// Int16ToBytes converts samples to little-endian s16le bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// BytesToInt16 is the inverse of Int16ToBytes. A trailing odd byte is dropped.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Int16ToInt widens samples for go-audio buffers.
func Int16ToInt(samples []int16) []int {
	out := make([]int, len(samples))
	for i, v := range samples {
		out[i] = int(v)
	}
	return out
}

func CalculateRMS(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, v := range samples {
		f := float64(v) / 32768.0
		sum += f * f
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// SamplesDuration returns the playing time of n interleaved samples.
func SamplesDuration(n int, format StreamFormat) float64 {
	if format.samplesPerSecond() == 0 {
		return 0
	}
	return float64(n) / float64(format.samplesPerSecond())
}

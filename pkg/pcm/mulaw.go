package pcm

import (
	"math"

	"github.com/zaf/g711"
)

// G.711 mu-law, the 8-bit companding used on telephone media streams.

// ULawEncodeSample compresses one linear sample. -32768 has no positive
// counterpart and is encoded as -32767.
func ULawEncodeSample(s int16) byte {
	if s == math.MinInt16 {
		s++
	}
	return g711.EncodeUlawFrame(s)
}

// ULawDecodeSample expands one mu-law byte.
func ULawDecodeSample(u byte) int16 {
	return g711.DecodeUlawFrame(u)
}

// ULawEncode converts PCM16LE bytes to mu-law, one byte per sample. A
// trailing odd byte is ignored.
func ULawEncode(pcm16 []byte) []byte {
	samples := BytesToSamples(pcm16)
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = ULawEncodeSample(s)
	}
	return out
}

// ULawDecode converts mu-law bytes to PCM16LE.
func ULawDecode(ulaw []byte) []byte {
	return g711.DecodeUlaw(ulaw)
}

// Package pcm converts between the float32 samples native to local audio
// devices and the signed 16-bit little-endian PCM required on the wire.
package pcm

import (
	"bytes"
	"math"
	"time"
)

// Float32ToInt16LE converts float samples in [-1, 1] to 16-bit little-endian
// PCM bytes. Negative values scale by 32768 and positive by 32767 so that
// both -1.0 and 1.0 map to the extremes of the int16 range.
func Float32ToInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		out[i*2] = byte(uint16(v))
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// Int16LEToFloat32 converts 16-bit little-endian PCM bytes to float samples
// normalized by 32768. A trailing odd byte is ignored.
func Int16LEToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}

// Duration reports the playback duration of a mono 16-bit PCM byte buffer at
// the given sample rate.
func Duration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 || byteLen <= 0 {
		return 0
	}
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// SampleDuration reports the duration of a float sample buffer at the given
// sample rate.
func SampleDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 || samples <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// RMS computes the root mean square level of a sample buffer, in [0, 1] for
// well-formed input. Used for the playback analysis tap.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// EncodeWAV wraps mono float samples as a 16-bit PCM WAV file for batch
// transcription uploads.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	data := Float32ToInt16LE(samples)
	dataSize := len(data)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)
	writeUint16LE(buf, 1) // PCM
	writeUint16LE(buf, 1) // mono
	writeUint32LE(buf, uint32(sampleRate))
	writeUint32LE(buf, uint32(sampleRate*2))
	writeUint16LE(buf, 2)
	writeUint16LE(buf, 16)

	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))
	buf.Write(data)
	return buf.Bytes()
}

func writeUint16LE(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeUint32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}

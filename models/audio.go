package models

import (
	"bytes"
	"encoding/binary"
)

const (
	// NarrationSampleRate is the sample rate of synthesized narration
	NarrationSampleRate = 24000
	// NarrationChannels is the channel count of synthesized narration
	NarrationChannels = 1
)

// AudioBuffer holds decoded 16-bit PCM audio
type AudioBuffer struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Samples    []int16 `json:"-"`
}

// DecodePCM16 decodes little-endian signed 16-bit mono PCM
func DecodePCM16(data []byte, sampleRate int) *AudioBuffer {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return &AudioBuffer{
		SampleRate: sampleRate,
		Channels:   NarrationChannels,
		Samples:    samples,
	}
}

// Duration returns the playback length in seconds
func (b *AudioBuffer) Duration() float64 {
	if b.SampleRate == 0 || b.Channels == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate*b.Channels)
}

// WAV renders the buffer as a RIFF/WAVE byte stream
func (b *AudioBuffer) WAV() []byte {
	dataSize := len(b.Samples) * 2
	byteRate := b.SampleRate * b.Channels * 2
	blockAlign := b.Channels * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(b.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(b.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(buf, binary.LittleEndian, b.Samples)
	return buf.Bytes()
}

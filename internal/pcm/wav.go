package pcm

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"orpheuscore/internal/telemetry"
)

// WriteWaveFile writes a canonical 44-byte-header little-endian RIFF/WAVE
// file (spec §6), creating parent directories as needed. audio_format is
// 1 (PCM) for 16/24-bit payloads and 3 (IEEE float) for 32-bit.
func WriteWaveFile(path string, sampleRateHz uint32, channels uint16, bitsPerSample uint16, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return telemetry.Wrap(telemetry.StatusIoError, "unable to create render output directory", err)
		}
	}

	bytesPerSample := (bitsPerSample + 7) / 8
	blockAlign := channels * bytesPerSample
	byteRate := sampleRateHz * uint32(blockAlign)
	audioFormat := uint16(1)
	if bitsPerSample == 32 {
		audioFormat = 3
	}
	dataSize := uint32(len(data))

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], audioFormat)
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], sampleRateHz)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	f, err := os.Create(path)
	if err != nil {
		return telemetry.Wrap(telemetry.StatusIoError, "unable to open WAV target", err)
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		return telemetry.Wrap(telemetry.StatusIoError, "failed to write WAV header", err)
	}
	if len(data) > 0 {
		if _, err := f.Write(data); err != nil {
			return telemetry.Wrap(telemetry.StatusIoError, "failed to write WAV payload", err)
		}
	}
	return nil
}

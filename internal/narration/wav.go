package narration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/bobarin/adforge/internal/fsutil"
)

const (
	// SampleRate is the fixed rate of every narration clip.
	SampleRate = 24000
	// SilenceSeconds is the length of a placeholder clip.
	SilenceSeconds = 2.0

	bitsPerSample = 16
	numChannels   = 1
	wavHeaderSize = 44
)

// wavHeader renders a canonical 44-byte PCM header for dataSize bytes of
// samples.
func wavHeader(dataSize, sampleRate int) []byte {
	blockAlign := numChannels * bitsPerSample / 8
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], numChannels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	return h
}

// WritePCM wraps raw mono 16-bit little-endian samples in a WAV container.
func WritePCM(path string, pcm []byte, sampleRate int) error {
	if len(pcm)%2 == 1 {
		pcm = pcm[:len(pcm)-1]
	}
	data := append(wavHeader(len(pcm), sampleRate), pcm...)
	return fsutil.WriteBytes(path, data)
}

// WriteSilence writes a silent mono WAV of the given length.
func WriteSilence(path string, seconds float64, sampleRate int) error {
	samples := int(math.Round(seconds * float64(sampleRate)))
	if err := WritePCM(path, make([]byte, samples*2), sampleRate); err != nil {
		return fmt.Errorf("failed to write silence: %w", err)
	}
	return nil
}

// Duration inspects a PCM WAV header to compute the clip length in seconds.
func Duration(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, err
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, errors.New("not a WAV file")
	}

	var sampleRate uint32
	var bits, channels uint16
	var dataSize uint32

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(file, chunkHeader[:]); err != nil {
			return 0, err
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if chunkID == "data" {
			dataSize = chunkSize
			break
		}
		if chunkID == "fmt " {
			buf := make([]byte, chunkSize)
			if _, err := io.ReadFull(file, buf); err != nil {
				return 0, err
			}
			if len(buf) < 16 {
				return 0, errors.New("invalid fmt chunk")
			}
			channels = binary.LittleEndian.Uint16(buf[2:4])
			sampleRate = binary.LittleEndian.Uint32(buf[4:8])
			bits = binary.LittleEndian.Uint16(buf[14:16])
			if chunkSize%2 == 1 {
				if _, err := file.Seek(1, io.SeekCurrent); err != nil {
					return 0, err
				}
			}
			continue
		}

		skip := int64(chunkSize)
		if skip%2 == 1 {
			skip++
		}
		if _, err := file.Seek(skip, io.SeekCurrent); err != nil {
			return 0, err
		}
	}

	if sampleRate == 0 || channels == 0 || bits == 0 {
		return 0, errors.New("missing audio format information")
	}
	bytesPerFrame := uint32(bits/8) * uint32(channels)
	if bytesPerFrame == 0 {
		return 0, errors.New("invalid bytes per sample")
	}

	// Streaming writers leave 0xFFFFFFFF as the data size.
	if dataSize == math.MaxUint32 {
		if info, err := file.Stat(); err == nil {
			pos, _ := file.Seek(0, io.SeekCurrent)
			dataSize = uint32(info.Size() - pos)
		}
	}

	return float64(dataSize) / float64(bytesPerFrame) / float64(sampleRate), nil
}

// usable reports whether path is a non-empty file larger than a bare header.
func usable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > wavHeaderSize
}

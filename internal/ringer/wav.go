package ringer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// WAV plays a sound file on loop. This is the primary layer; a missing or
// unparsable file fails Start and lets the chain fall through to the
// synthesized tone.
type WAV struct {
	path string

	mu       sync.Mutex
	stopChan chan struct{}
}

func NewWAV(path string) *WAV {
	return &WAV{path: path}
}

func (w *WAV) Name() string { return "wav" }

func (w *WAV) Start(_ context.Context) error {
	if w.path == "" {
		return fmt.Errorf("ringer - WAV.Start: no sound asset configured")
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("ringer - WAV.Start - os.ReadFile: %w", err)
	}

	format, audioData, err := parseWAV(data)
	if err != nil {
		return fmt.Errorf("ringer - WAV.Start - parseWAV: %w", err)
	}
	// The shared context is mono 16-bit; anything else goes to the fallback.
	if format.Channels != 1 || format.BitDepth != 16 || format.SampleRate != toneSampleRate {
		return fmt.Errorf(
			"ringer - WAV.Start: unsupported format %dHz/%dch/%dbit",
			format.SampleRate, format.Channels, format.BitDepth,
		)
	}

	otoCtx, err := initAudioContext()
	if err != nil {
		return fmt.Errorf("ringer - WAV.Start - initAudioContext: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopChan != nil {
		return nil
	}
	stopChan := make(chan struct{})
	w.stopChan = stopChan

	go func() {
		player := otoCtx.NewPlayer(&loopReader{data: audioData})
		player.Play()

		<-stopChan
		_ = player.Close()
	}()

	return nil
}

func (w *WAV) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopChan != nil {
		close(w.stopChan)
		w.stopChan = nil
	}
}

type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func parseWAV(data []byte) (*wavFormat, []byte, error) {
	reader := bytes.NewReader(data)

	riff := make([]byte, 4)
	if _, err := io.ReadFull(reader, riff); err != nil {
		return nil, nil, err
	}
	if string(riff) != "RIFF" {
		return nil, nil, fmt.Errorf("not a RIFF file")
	}

	if _, err := reader.Seek(4, io.SeekCurrent); err != nil {
		return nil, nil, err
	}

	wave := make([]byte, 4)
	if _, err := io.ReadFull(reader, wave); err != nil {
		return nil, nil, err
	}
	if string(wave) != "WAVE" {
		return nil, nil, fmt.Errorf("not a WAVE file")
	}

	format := &wavFormat{}
	var dataStart int64
	var dataSize uint32

	for {
		chunkID := make([]byte, 4)
		if _, err := io.ReadFull(reader, chunkID); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, nil, err
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return nil, nil, err
		}

		switch string(chunkID) {
		case "fmt ":
			var audioFormat, numChannels uint16
			var sampleRate uint32
			_ = binary.Read(reader, binary.LittleEndian, &audioFormat)
			_ = binary.Read(reader, binary.LittleEndian, &numChannels)
			_ = binary.Read(reader, binary.LittleEndian, &sampleRate)
			format.Channels = int(numChannels)
			format.SampleRate = int(sampleRate)

			// Skip byte rate and block align.
			if _, err := reader.Seek(6, io.SeekCurrent); err != nil {
				return nil, nil, err
			}
			var bitsPerSample uint16
			_ = binary.Read(reader, binary.LittleEndian, &bitsPerSample)
			format.BitDepth = int(bitsPerSample)

			if remaining := int64(chunkSize) - 16; remaining > 0 {
				if _, err := reader.Seek(remaining, io.SeekCurrent); err != nil {
					return nil, nil, err
				}
			}
		case "data":
			pos, _ := reader.Seek(0, io.SeekCurrent)
			dataStart = pos
			dataSize = chunkSize
		default:
			if _, err := reader.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, nil, err
			}
		}
		if dataSize != 0 {
			break
		}
	}

	if dataSize == 0 || format.SampleRate == 0 {
		return nil, nil, fmt.Errorf("missing fmt or data chunk")
	}
	if int64(len(data)) < dataStart+int64(dataSize) {
		return nil, nil, fmt.Errorf("truncated data chunk")
	}

	return format, data[dataStart : dataStart+int64(dataSize)], nil
}

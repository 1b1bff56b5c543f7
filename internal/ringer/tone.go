package ringer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	toneSampleRate = 44100
	toneFrequency  = 880.0
)

// Global audio context singleton; oto allows only one per process.
var (
	audioCtx     *oto.Context
	audioCtxOnce sync.Once
	audioCtxErr  error
)

func initAudioContext() (*oto.Context, error) {
	audioCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   toneSampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			audioCtxErr = err
			return
		}

		// Wait for the hardware audio devices to be ready.
		<-readyChan
		audioCtx = ctx
	})
	return audioCtx, audioCtxErr
}

// TonePCM synthesizes one beep-then-gap cycle as signed 16-bit LE mono
// samples. Pure; the cadence of the loop comes from beep+gap.
func TonePCM(sampleRate int, freq float64, beep, gap time.Duration) []byte {
	beepSamples := int(float64(sampleRate) * beep.Seconds())
	gapSamples := int(float64(sampleRate) * gap.Seconds())

	buf := make([]byte, (beepSamples+gapSamples)*2)
	for i := 0; i < beepSamples; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		// Short attack/release ramps keep the loop click-free.
		ramp := 1.0
		const edge = 256
		if i < edge {
			ramp = float64(i) / edge
		} else if left := beepSamples - i; left < edge {
			ramp = float64(left) / edge
		}
		sample := int16(v * ramp * 0.6 * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	// Gap samples stay zero.
	return buf
}

// loopReader repeats a PCM buffer forever.
type loopReader struct {
	data []byte
	pos  int
}

func (r *loopReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		c := copy(p[n:], r.data[r.pos:])
		n += c
		r.pos += c
		if r.pos == len(r.data) {
			r.pos = 0
		}
	}
	return n, nil
}

// Tone is the synthesized fallback: a beep pattern looping at the ring
// cadence, for when the real alarm sound cannot play.
type Tone struct {
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
}

func NewTone(ringInterval time.Duration) *Tone {
	return &Tone{interval: ringInterval}
}

func (t *Tone) Name() string { return "tone" }

const minToneBeep = 100 * time.Millisecond

// toneCadence splits the ring interval into beep and silence. The beep never
// collapses below a floor, so the loop buffer is non-empty even for a
// degenerate interval.
func toneCadence(interval time.Duration) (beep, gap time.Duration) {
	beep = time.Second
	gap = interval - beep
	if gap < 0 {
		beep = interval / 2
		gap = interval - beep
	}
	if beep < minToneBeep {
		beep = minToneBeep
		gap = 0
	}
	return beep, gap
}

func (t *Tone) Start(_ context.Context) error {
	otoCtx, err := initAudioContext()
	if err != nil {
		return fmt.Errorf("ringer - Tone.Start - initAudioContext: %w", err)
	}

	beep, gap := toneCadence(t.interval)
	pcm := TonePCM(toneSampleRate, toneFrequency, beep, gap)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopChan != nil {
		return nil
	}
	stopChan := make(chan struct{})
	t.stopChan = stopChan

	go func() {
		player := otoCtx.NewPlayer(&loopReader{data: pcm})
		player.Play()

		<-stopChan
		_ = player.Close()
	}()

	return nil
}

func (t *Tone) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopChan != nil {
		close(t.stopChan)
		t.stopChan = nil
	}
}

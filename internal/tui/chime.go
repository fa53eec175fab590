package tui

import (
	"math"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(48000)

// Chime plays a short tone when a hook is detected. A nil *Chime is silent.
type Chime struct {
	mu    sync.Mutex
	mixer *beep.Mixer
}

// NewChime opens the default audio device.
func NewChime() (*Chime, error) {
	c := &Chime{mixer: &beep.Mixer{}}
	if err := speaker.Init(sampleRate, sampleRate.N(ChimeDuration/2)); err != nil {
		return nil, err
	}
	speaker.Play(c.mixer)
	return c, nil
}

// Play queues one chime.
func (c *Chime) Play() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	speaker.Lock()
	c.mixer.Add(beep.Take(sampleRate.N(ChimeDuration), newTone(sampleRate, ChimeFrequency)))
	speaker.Unlock()
}

// Close releases the audio device.
func (c *Chime) Close() {
	if c == nil {
		return
	}
	speaker.Lock()
	c.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
}

// tone is a sine wave with exponential decay.
type tone struct {
	sr   beep.SampleRate
	freq float64
	pos  int
}

func newTone(sr beep.SampleRate, freq float64) *tone {
	return &tone{sr: sr, freq: freq}
}

func (t *tone) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		at := float64(t.pos) / float64(t.sr)
		v := math.Sin(2*math.Pi*t.freq*at) * math.Exp(-at*ChimeDecay) * ChimeVolume
		samples[i][0] = v
		samples[i][1] = v
		t.pos++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }

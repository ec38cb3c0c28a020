package playback

import "math"

// Effect-chain parameters for synthesized tutor speech. The chain smooths
// loudness and removes low-frequency rumble; it is a quality-of-life stage,
// with the compressor+gain pair also guarding against clipping.
const (
	highPassCutoffHz = 100.0
	highPassQ        = 0.71

	compThresholdDB = -20.0
	compRatio       = 6.0
	compAttackSec   = 0.003
	compReleaseSec  = 0.25

	masterGain = 0.5
)

// biquad is a direct-form-I second-order filter section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// newHighPass builds a high-pass biquad using the Audio EQ Cookbook
// formulation.
func newHighPass(sampleRate int, cutoffHz, q float64) *biquad {
	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cosW0) / 2 / a0,
		b1: -(1 + cosW0) / a0,
		b2: (1 + cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// compressor is a feed-forward dynamics compressor with a one-pole envelope
// follower and hard knee.
type compressor struct {
	thresholdDB float64
	ratio       float64
	attackCoef  float64
	releaseCoef float64
	envelope    float64
}

func newCompressor(sampleRate int) *compressor {
	rate := float64(sampleRate)
	return &compressor{
		thresholdDB: compThresholdDB,
		ratio:       compRatio,
		attackCoef:  math.Exp(-1 / (rate * compAttackSec)),
		releaseCoef: math.Exp(-1 / (rate * compReleaseSec)),
	}
}

func (c *compressor) process(x float64) float64 {
	level := math.Abs(x)
	if level > c.envelope {
		c.envelope = c.attackCoef*c.envelope + (1-c.attackCoef)*level
	} else {
		c.envelope = c.releaseCoef*c.envelope + (1-c.releaseCoef)*level
	}

	gain := 1.0
	if c.envelope > 0 {
		levelDB := 20 * math.Log10(c.envelope)
		if levelDB > c.thresholdDB {
			reductionDB := (levelDB - c.thresholdDB) * (1 - 1/c.ratio)
			gain = math.Pow(10, -reductionDB/20)
		}
	}
	return x * gain
}

// chain is the fixed per-segment signal chain: high-pass filter → compressor
// → master gain. Each segment gets a fresh chain so filter state never leaks
// across segment boundaries.
type chain struct {
	hp   *biquad
	comp *compressor
}

func newChain(sampleRate int) *chain {
	return &chain{
		hp:   newHighPass(sampleRate, highPassCutoffHz, highPassQ),
		comp: newCompressor(sampleRate),
	}
}

// process runs the chain over the segment in place and returns it.
func (c *chain) process(samples []float32) []float32 {
	for i, s := range samples {
		v := c.hp.process(float64(s))
		v = c.comp.process(v)
		v *= masterGain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = float32(v)
	}
	return samples
}

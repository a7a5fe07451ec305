// Package cadence measures the frame rate actually delivered on a branch.
package cadence

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of the mean FPS. 20 FPS mean is stable below 3 FPS stddev.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of the
	// expected interval. 20 FPS (50ms) is stable below 10ms mean jitter.
	jitterStabilityThreshold = 0.20
)

// Stats summarizes the cadence of a series of frame timestamps.
type Stats struct {
	Frames   int
	Duration time.Duration

	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64

	// Jitter is the deviation from the expected inter-frame interval, in seconds
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64

	IsStable bool
}

// Calculate computes cadence statistics from ordered frame timestamps
// observed over total.
//
// The stream is stable when the instantaneous FPS stddev is below 15% of
// the mean and the mean jitter is below 20% of the expected interval.
func Calculate(frameTimes []time.Time, total time.Duration) Stats {
	n := len(frameTimes)
	if n == 0 || total <= 0 {
		return Stats{Frames: n, Duration: total}
	}

	fpsMean := float64(n) / total.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds(); interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return Stats{Frames: n, Duration: total, FPSMean: fpsMean}
	}

	fpsMin, fpsMax := instantaneous[0], instantaneous[0]
	var sumSquares float64
	for _, fps := range instantaneous {
		fpsMin = math.Min(fpsMin, fps)
		fpsMax = math.Max(fpsMax, fps)
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	expected := 1.0 / fpsMean
	jitters := make([]float64, 0, n-1)
	var jitterSum, jitterMax float64
	for i := 1; i < n; i++ {
		j := math.Abs(frameTimes[i].Sub(frameTimes[i-1]).Seconds() - expected)
		jitters = append(jitters, j)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSquares += diff * diff
	}

	return Stats{
		Frames:       n,
		Duration:     total,
		FPSMean:      fpsMean,
		FPSStdDev:    fpsStdDev,
		FPSMin:       fpsMin,
		FPSMax:       fpsMax,
		JitterMean:   jitterMean,
		JitterStdDev: math.Sqrt(jitterSquares / float64(len(jitters))),
		JitterMax:    jitterMax,
		IsStable: fpsStdDev < fpsMean*fpsStabilityThreshold &&
			jitterMean < expected*jitterStabilityThreshold,
	}
}

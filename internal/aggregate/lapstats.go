package aggregate

import (
	"math"
	"sort"

	"github.com/pitwall-ai/pitwall"
)

// minRepresentativeLapTime filters out in/out laps, safety car crawls and
// recording glitches. Anything at or under a minute is not a flying lap
// on any current circuit.
const minRepresentativeLapTime = 60.0

// cleanLaps drops non-representative laps and sorts by lap number.
func cleanLaps(laps []pitwall.Lap) []pitwall.Lap {
	cleaned := make([]pitwall.Lap, 0, len(laps))
	for _, lap := range laps {
		if lap.Time > minRepresentativeLapTime {
			cleaned = append(cleaned, lap)
		}
	}
	sort.Slice(cleaned, func(i, j int) bool { return cleaned[i].Number < cleaned[j].Number })
	return cleaned
}

// computeLapStats derives per-driver statistics from cleaned laps. The
// average trims the slowest 10% once the sample exceeds ten laps, so a
// single bad lap behind traffic does not skew race pace.
func computeLapStats(driver string, laps []pitwall.Lap) pitwall.LapStats {
	stats := pitwall.LapStats{
		Driver:    driver,
		TotalLaps: len(laps),
	}

	times := make([]float64, len(laps))
	for i, lap := range laps {
		times[i] = lap.Time
		if stats.FastestLap == 0 || lap.Time < stats.FastestLap {
			stats.FastestLap = lap.Time
			stats.FastestLapNumber = lap.Number
		}
	}

	stats.AveragePace = round3(trimmedMean(times))
	stats.Consistency = round3(stddev(times))
	stats.BestSectors = bestSectors(laps)
	return stats
}

// trimmedMean averages the times, excluding the slowest 10% when more
// than ten samples exist.
func trimmedMean(times []float64) float64 {
	if len(times) == 0 {
		return 0
	}
	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	n := len(sorted)
	if n > 10 {
		n -= n / 10
	}
	sum := 0.0
	for _, t := range sorted[:n] {
		sum += t
	}
	return sum / float64(n)
}

// stddev is the population standard deviation of the lap times.
func stddev(times []float64) float64 {
	if len(times) < 2 {
		return 0
	}
	mean := 0.0
	for _, t := range times {
		mean += t
	}
	mean /= float64(len(times))

	variance := 0.0
	for _, t := range times {
		d := t - mean
		variance += d * d
	}
	variance /= float64(len(times))
	return math.Sqrt(variance)
}

func bestSectors(laps []pitwall.Lap) [3]float64 {
	var best [3]float64
	for _, lap := range laps {
		sectors := [3]float64{lap.Sector1, lap.Sector2, lap.Sector3}
		for i, s := range sectors {
			if s <= 0 {
				continue
			}
			if best[i] == 0 || s < best[i] {
				best[i] = s
			}
		}
	}
	return best
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

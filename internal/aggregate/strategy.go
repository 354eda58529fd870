package aggregate

import (
	"sort"

	"github.com/pitwall-ai/pitwall"
)

// minLapsForDegradation is the smallest stint over which a linear fit of
// lap time against lap number says anything about tire wear.
const minLapsForDegradation = 5

// computeStints groups a driver's cleaned laps by stint number and
// summarizes each one. The pit-in lap is the last lap of every stint but
// the final one.
func computeStints(laps []pitwall.Lap) []pitwall.StintSummary {
	byStint := make(map[int][]pitwall.Lap)
	for _, lap := range laps {
		if lap.Stint <= 0 {
			continue
		}
		byStint[lap.Stint] = append(byStint[lap.Stint], lap)
	}
	if len(byStint) == 0 {
		return nil
	}

	numbers := make([]int, 0, len(byStint))
	for n := range byStint {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	summaries := make([]pitwall.StintSummary, 0, len(numbers))
	for i, n := range numbers {
		stintLaps := byStint[n]
		times := make([]float64, len(stintLaps))
		for j, lap := range stintLaps {
			times[j] = lap.Time
		}

		s := pitwall.StintSummary{
			Number:      n,
			Compound:    stintLaps[0].Compound,
			StartLap:    stintLaps[0].Number,
			EndLap:      stintLaps[len(stintLaps)-1].Number,
			Laps:        len(stintLaps),
			AveragePace: round3(trimmedMean(times)),
		}
		if slope, ok := degradationSlope(stintLaps); ok {
			s.DegradationPerLap = slope
		}
		if i < len(numbers)-1 {
			s.PitInLap = s.EndLap
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// degradationSlope fits lap time against lap number by least squares and
// reports the slope in seconds per lap. Only a positive slope over at
// least five laps is reported; a negative slope means track evolution or
// fuel burn dominated, not tire wear.
func degradationSlope(laps []pitwall.Lap) (float64, bool) {
	if len(laps) < minLapsForDegradation {
		return 0, false
	}

	n := float64(len(laps))
	var sumX, sumY, sumXY, sumXX float64
	for _, lap := range laps {
		x := float64(lap.Number)
		y := lap.Time
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	if slope <= 0 {
		return 0, false
	}
	return round3(slope), true
}

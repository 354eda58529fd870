package aggregate

import (
	"sort"
	"strings"

	"github.com/pitwall-ai/pitwall"
)

// row is one record of a tool payload after JSON-style decoding.
type row map[string]interface{}

// classifyPayload routes one successful tool result into the right bucket
// by inspecting its shape. Lap rows carry a lap number and time, stint
// rows carry a compound and lap range, classification rows carry a
// position, and report hits carry a snippet.
func classifyPayload(result pitwall.ToolResult, lapsByDriver map[string][]pitwall.Lap, stintRowsByDriver map[string][]row, analysis *pitwall.AggregatedAnalysis) {
	switch payload := result.Payload.(type) {
	case []map[string]interface{}:
		classifyRows(result, toRowSlice(payload), lapsByDriver, stintRowsByDriver, analysis)
	case []interface{}:
		rows := make([]row, 0, len(payload))
		for _, item := range payload {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, row(m))
			}
		}
		classifyRows(result, rows, lapsByDriver, stintRowsByDriver, analysis)
	case map[string]interface{}:
		// Single-record payloads (driver info, race info) ride along as
		// document context for the generator.
		analysis.Documents = append(analysis.Documents, payload)
	}
}

func toRowSlice(maps []map[string]interface{}) []row {
	rows := make([]row, len(maps))
	for i, m := range maps {
		rows[i] = row(m)
	}
	return rows
}

func classifyRows(result pitwall.ToolResult, rows []row, lapsByDriver map[string][]pitwall.Lap, stintRowsByDriver map[string][]row, analysis *pitwall.AggregatedAnalysis) {
	if len(rows) == 0 {
		return
	}
	first := rows[0]
	switch {
	case first.has("lap") && (first.has("time") || first.has("lap_time")):
		for _, r := range rows {
			driver := r.str("driver")
			if driver == "" {
				driver = driverFromCallID(result.CallID)
			}
			if driver == "" {
				continue
			}
			lapsByDriver[driver] = append(lapsByDriver[driver], lapFromRow(r))
		}
	case first.has("compound") && first.has("start_lap"):
		for _, r := range rows {
			driver := r.str("driver")
			if driver == "" {
				driver = driverFromCallID(result.CallID)
			}
			if driver == "" {
				continue
			}
			stintRowsByDriver[driver] = append(stintRowsByDriver[driver], r)
		}
	case first.has("position"):
		for _, r := range rows {
			analysis.Results = append(analysis.Results, map[string]interface{}(r))
		}
	case first.has("snippet") || first.has("title"):
		for _, r := range rows {
			analysis.Documents = append(analysis.Documents, map[string]interface{}(r))
		}
	default:
		for _, r := range rows {
			analysis.Documents = append(analysis.Documents, map[string]interface{}(r))
		}
	}
}

// driverFromCallID recovers a driver code from ids like "laps_VER". Only
// a trailing token of 2-4 uppercase letters qualifies.
func driverFromCallID(callID string) string {
	idx := strings.LastIndex(callID, "_")
	if idx < 0 || idx == len(callID)-1 {
		return ""
	}
	token := callID[idx+1:]
	if len(token) < 2 || len(token) > 4 {
		return ""
	}
	for _, c := range token {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return token
}

func lapFromRow(r row) pitwall.Lap {
	t := r.num("time")
	if t == 0 {
		t = r.num("lap_time")
	}
	return pitwall.Lap{
		Number:   r.intval("lap"),
		Time:     t,
		Sector1:  r.num("s1"),
		Sector2:  r.num("s2"),
		Sector3:  r.num("s3"),
		Compound: r.str("compound"),
		Stint:    r.intval("stint"),
		Position: r.intval("position"),
	}
}

// mergeDirectStints fills in stint summaries reported directly by a stint
// tool for drivers whose lap data never arrived. Computed stints win when
// both exist, since they carry pace and degradation.
func mergeDirectStints(analysis *pitwall.AggregatedAnalysis, stintRowsByDriver map[string][]row) {
	drivers := make([]string, 0, len(stintRowsByDriver))
	for d := range stintRowsByDriver {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)

	for _, d := range drivers {
		if _, ok := analysis.Stints[d]; ok {
			continue
		}
		rows := stintRowsByDriver[d]
		sort.Slice(rows, func(i, j int) bool { return rows[i].intval("stint") < rows[j].intval("stint") })
		summaries := make([]pitwall.StintSummary, 0, len(rows))
		for i, r := range rows {
			s := pitwall.StintSummary{
				Number:   r.intval("stint"),
				Compound: r.str("compound"),
				StartLap: r.intval("start_lap"),
				EndLap:   r.intval("end_lap"),
			}
			s.Laps = s.EndLap - s.StartLap + 1
			if i < len(rows)-1 {
				s.PitInLap = s.EndLap
			}
			summaries = append(summaries, s)
		}
		if len(summaries) > 0 {
			analysis.Stints[d] = summaries
		}
	}
}

func (r row) has(key string) bool {
	_, ok := r[key]
	return ok
}

func (r row) str(key string) string {
	s, _ := r[key].(string)
	return s
}

// num reads a numeric field tolerant of both float64 (JSON decoding) and
// native int values.
func (r row) num(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (r row) intval(key string) int {
	return int(r.num(key))
}

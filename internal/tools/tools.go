// Package tools wires the retrieval tools the planner can schedule. Each
// tool is a thin adapter over a data backend; parameter coercion and
// validation live here so backends stay plain.
package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/adapters"
)

// TimeseriesStore serves lap-level session data.
type TimeseriesStore interface {
	LapTimes(ctx context.Context, driver string, season int, race string) ([]map[string]interface{}, error)
	TireStints(ctx context.Context, driver string, season int, race string) ([]map[string]interface{}, error)
	SessionResults(ctx context.Context, season int, race string) ([]map[string]interface{}, error)
}

// EntityStore serves driver and event records.
type EntityStore interface {
	DriverInfo(ctx context.Context, driver string) (map[string]interface{}, error)
	RaceInfo(ctx context.Context, season int, race string) (map[string]interface{}, error)
}

// DocumentStore serves free-text race report search.
type DocumentStore interface {
	SearchReports(ctx context.Context, query string, limit int) ([]map[string]interface{}, error)
}

// Registry builds the tool map for the given backends. A nil backend
// leaves its tools unregistered, so deployments without a document index
// simply never plan report searches.
func Registry(timeseries TimeseriesStore, entities EntityStore, documents DocumentStore) map[string]pitwall.Tool {
	registry := make(map[string]pitwall.Tool)

	if timeseries != nil {
		registry["get_lap_times"] = adapters.NewFuncTool(
			"get_lap_times",
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				driver, season, race, err := sessionParams(params, true)
				if err != nil {
					return nil, err
				}
				return timeseries.LapTimes(ctx, driver, season, race)
			},
			adapters.WithDescription("Fetches every recorded lap for a driver in one session: times, sectors, compound, stint."),
			adapters.WithCategory("Timeseries"),
			adapters.WithParameters(map[string]string{
				"driver": "Three-letter driver code (e.g. VER)",
				"season": "Season year (e.g. 2024)",
				"race":   "Race identifier (e.g. monza)",
			}),
			adapters.WithReturns("List of lap records."),
			adapters.WithValidator(validateSessionParams(true)),
		)
		registry["get_tire_stints"] = adapters.NewFuncTool(
			"get_tire_stints",
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				driver, season, race, err := sessionParams(params, true)
				if err != nil {
					return nil, err
				}
				return timeseries.TireStints(ctx, driver, season, race)
			},
			adapters.WithDescription("Fetches a driver's tire stints for one session: compound and lap range per stint."),
			adapters.WithCategory("Timeseries"),
			adapters.WithParameters(map[string]string{
				"driver": "Three-letter driver code",
				"season": "Season year",
				"race":   "Race identifier",
			}),
			adapters.WithReturns("List of stint records."),
			adapters.WithValidator(validateSessionParams(true)),
		)
		registry["get_session_results"] = adapters.NewFuncTool(
			"get_session_results",
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				_, season, race, err := sessionParams(params, false)
				if err != nil {
					return nil, err
				}
				return timeseries.SessionResults(ctx, season, race)
			},
			adapters.WithDescription("Fetches the final classification of one session."),
			adapters.WithCategory("Timeseries"),
			adapters.WithParameters(map[string]string{
				"season": "Season year",
				"race":   "Race identifier",
			}),
			adapters.WithReturns("Ordered classification rows."),
			adapters.WithValidator(validateSessionParams(false)),
		)
	}

	if entities != nil {
		registry["get_driver_info"] = adapters.NewFuncTool(
			"get_driver_info",
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				driver, err := stringParam(params, "driver")
				if err != nil {
					return nil, err
				}
				info, err := entities.DriverInfo(ctx, driver)
				if err != nil {
					return nil, err
				}
				if info == nil {
					return nil, fmt.Errorf("no driver record for '%s'", driver)
				}
				return info, nil
			},
			adapters.WithDescription("Fetches the profile record for a driver code."),
			adapters.WithCategory("Entities"),
			adapters.WithParameters(map[string]string{
				"driver": "Three-letter driver code",
			}),
			adapters.WithReturns("Driver profile record."),
		)
		registry["get_race_info"] = adapters.NewFuncTool(
			"get_race_info",
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				_, season, race, err := sessionParams(params, false)
				if err != nil {
					return nil, err
				}
				info, err := entities.RaceInfo(ctx, season, race)
				if err != nil {
					return nil, err
				}
				if info == nil {
					return nil, fmt.Errorf("no race record for %d %s", season, race)
				}
				return info, nil
			},
			adapters.WithDescription("Fetches the event record for a season and race."),
			adapters.WithCategory("Entities"),
			adapters.WithParameters(map[string]string{
				"season": "Season year",
				"race":   "Race identifier",
			}),
			adapters.WithReturns("Event record."),
		)
	}

	if documents != nil {
		registry["search_race_reports"] = adapters.NewFuncTool(
			"search_race_reports",
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				query, err := stringParam(params, "query")
				if err != nil {
					return nil, err
				}
				limit := 5
				if n, ok := intParam(params, "limit"); ok {
					limit = n
				}
				return documents.SearchReports(ctx, query, limit)
			},
			adapters.WithDescription("Keyword search over race report text for qualitative context."),
			adapters.WithCategory("Documents"),
			adapters.WithParameters(map[string]string{
				"query": "Search terms",
				"limit": "Maximum number of hits (default 5)",
			}),
			adapters.WithReturns("List of report snippets."),
		)
	}

	return registry
}

// sessionParams coerces the common driver/season/race triple. Planner
// output arrives JSON-decoded, so numbers may be float64 and seasons may
// even come back as strings.
func sessionParams(params map[string]interface{}, needDriver bool) (string, int, string, error) {
	var driver string
	if needDriver {
		var err error
		driver, err = stringParam(params, "driver")
		if err != nil {
			return "", 0, "", err
		}
	}
	season, ok := intParam(params, "season")
	if !ok {
		return "", 0, "", fmt.Errorf("missing or invalid 'season' parameter")
	}
	race, err := stringParam(params, "race")
	if err != nil {
		return "", 0, "", err
	}
	return driver, season, strings.ToLower(race), nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing '%s' parameter", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("'%s' must be a non-empty string, got %T", key, v)
	}
	return strings.TrimSpace(s), nil
}

func intParam(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// validateSessionParams rejects malformed calls before they reach the
// store, so failures surface as invalid_params rather than empty data.
func validateSessionParams(needDriver bool) func(map[string]interface{}) error {
	return func(params map[string]interface{}) error {
		if needDriver {
			driver, err := stringParam(params, "driver")
			if err != nil {
				return err
			}
			if len(driver) < 2 || len(driver) > 4 {
				return fmt.Errorf("driver code '%s' must be 2-4 characters", driver)
			}
		}
		season, ok := intParam(params, "season")
		if !ok {
			return fmt.Errorf("missing or invalid 'season' parameter")
		}
		if season < 1950 || season > 2100 {
			return fmt.Errorf("season %d out of range", season)
		}
		if _, err := stringParam(params, "race"); err != nil {
			return err
		}
		return nil
	}
}

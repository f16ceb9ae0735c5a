// Package healthdata provides the analyze_user_health_data tool: queries and
// summarizes a user's fitness activities, diet logs, weight entries, and goals
// from a SQL database.
package healthdata

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/parley-ai/parley"
)

// DataTypes are the queryable categories. "all" expands to every other one.
var DataTypes = []string{"activities", "diet", "weight", "goals", "all"}

// AnalysisTypes select how much detail the analysis carries.
var AnalysisTypes = []string{"trends", "summary", "detailed", "patterns"}

const defaultRangeDays = 30

// Config assembles the tool over an open database handle. The schema is
// expected to match Migrate.
type Config struct {
	DB *sql.DB
	// Now injects the clock for date-range resolution; defaults to time.Now.
	Now func() time.Time
}

// Migrate creates the health tables if they do not exist. Deployments with an
// existing schema can skip it.
func Migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS fitness_activities (
	id              INTEGER PRIMARY KEY,
	user_id         INTEGER NOT NULL,
	activity_type   TEXT NOT NULL,
	duration_min    INTEGER NOT NULL,
	intensity       TEXT NOT NULL,
	calories_burned INTEGER NOT NULL,
	date_time       TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dietary_logs (
	id        INTEGER PRIMARY KEY,
	user_id   INTEGER NOT NULL,
	food_item TEXT NOT NULL,
	calories  INTEGER NOT NULL,
	carbs     REAL NOT NULL,
	proteins  REAL NOT NULL,
	fats      REAL NOT NULL,
	quantity  REAL NOT NULL,
	date_time TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS weight_entries (
	id      INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	weight  REAL NOT NULL,
	date    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS fitness_goals (
	id           INTEGER PRIMARY KEY,
	user_id      INTEGER NOT NULL,
	goal_type    TEXT NOT NULL,
	target_value REAL NOT NULL,
	achieved     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("healthdata: create schema: %w", err)
	}
	return nil
}

// ActivitySummary aggregates fitness activities over the analysis window.
type ActivitySummary struct {
	Count         int            `json:"count"`
	TotalMinutes  int            `json:"total_minutes"`
	TotalCalories int            `json:"total_calories"`
	ByType        map[string]int `json:"by_type,omitempty"`
}

// DietSummary aggregates dietary logs over the analysis window.
type DietSummary struct {
	Entries       int     `json:"entries"`
	TotalCalories int     `json:"total_calories"`
	AvgCaloriesPD float64 `json:"avg_calories_per_day"`
	Proteins      float64 `json:"total_proteins"`
	Carbs         float64 `json:"total_carbs"`
	Fats          float64 `json:"total_fats"`
}

// WeightSummary reports the weight trajectory over the analysis window.
type WeightSummary struct {
	Entries int     `json:"entries"`
	First   float64 `json:"first"`
	Latest  float64 `json:"latest"`
	Change  float64 `json:"change"`
}

// GoalSummary is one goal with its achievement state.
type GoalSummary struct {
	Type     string  `json:"type"`
	Target   float64 `json:"target"`
	Achieved bool    `json:"achieved"`
}

type analysis struct {
	UserID       int              `json:"user_id"`
	AnalysisType string           `json:"analysis_type"`
	From         string           `json:"from"`
	To           string           `json:"to"`
	Activities   *ActivitySummary `json:"activities,omitempty"`
	Diet         *DietSummary     `json:"diet,omitempty"`
	Weight       *WeightSummary   `json:"weight,omitempty"`
	Goals        []GoalSummary    `json:"goals,omitempty"`
	Observations []string         `json:"observations,omitempty"`
}

// New builds the analyze_user_health_data tool.
func New(cfg Config) (parley.Tool, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("healthdata: DB is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	schema := parley.Schema{
		"user_id": {
			Type:        parley.TypeInteger,
			Description: "User ID to query data for",
			Required:    true,
		},
		"data_types": {
			Type:        parley.TypeStringArray,
			Description: "Types of health data to analyze",
			Enum:        DataTypes,
			Required:    true,
		},
		"date_range": {
			Type:        parley.TypeString,
			Description: "Date range in format 'YYYY-MM-DD,YYYY-MM-DD' or relative like 'last_30_days'",
		},
		"analysis_type": {
			Type:        parley.TypeStringEnum,
			Description: "Type of analysis to perform",
			Enum:        AnalysisTypes,
			Default:     "summary",
		},
	}

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		userID := args["user_id"].(int)
		kinds := expandDataTypes(args["data_types"].([]string))
		from, to, err := resolveDateRange(stringArg(args, "date_range"), now())
		if err != nil {
			return nil, err
		}

		out := analysis{
			UserID:       userID,
			AnalysisType: args["analysis_type"].(string),
			From:         from.Format("2006-01-02"),
			To:           to.Format("2006-01-02"),
		}
		if slices.Contains(kinds, "activities") {
			if out.Activities, err = queryActivities(ctx, cfg.DB, userID, from, to); err != nil {
				return nil, err
			}
		}
		if slices.Contains(kinds, "diet") {
			if out.Diet, err = queryDiet(ctx, cfg.DB, userID, from, to); err != nil {
				return nil, err
			}
		}
		if slices.Contains(kinds, "weight") {
			if out.Weight, err = queryWeight(ctx, cfg.DB, userID, from, to); err != nil {
				return nil, err
			}
		}
		if slices.Contains(kinds, "goals") {
			if out.Goals, err = queryGoals(ctx, cfg.DB, userID); err != nil {
				return nil, err
			}
		}
		out.Observations = observe(out)
		return out, nil
	}

	return parley.NewFuncTool(
		"analyze_user_health_data",
		"Query and analyze user's fitness activities, diet logs, weight entries, and goals",
		schema,
		handler,
		parley.WithTimeout(15*time.Second),
		parley.WithTags("database"),
		parley.WithDescriber(func(argsJSON []byte) string {
			args, err := schema.Validate(argsJSON)
			if err != nil {
				return "Analyzing your health data"
			}
			return fmt.Sprintf("Analyzing your %s", strings.Join(args["data_types"].([]string), ", "))
		}),
	)
}

func expandDataTypes(kinds []string) []string {
	if slices.Contains(kinds, "all") {
		return []string{"activities", "diet", "weight", "goals"}
	}
	return kinds
}

// resolveDateRange accepts 'YYYY-MM-DD,YYYY-MM-DD', 'last_N_days', or empty
// (last 30 days). Malformed input is a ClientError so the model can rephrase.
func resolveDateRange(spec string, now time.Time) (time.Time, time.Time, error) {
	if spec == "" {
		return now.AddDate(0, 0, -defaultRangeDays), now, nil
	}
	if days, ok := relativeDays(spec); ok {
		return now.AddDate(0, 0, -days), now, nil
	}
	parts := strings.Split(spec, ",")
	if len(parts) == 2 {
		from, err1 := time.Parse("2006-01-02", strings.TrimSpace(parts[0]))
		to, err2 := time.Parse("2006-01-02", strings.TrimSpace(parts[1]))
		if err1 == nil && err2 == nil && !to.Before(from) {
			// Make the range inclusive of the end date.
			return from, to.AddDate(0, 0, 1), nil
		}
	}
	return time.Time{}, time.Time{}, &parley.ClientError{
		Reason: fmt.Sprintf("date_range %q is not 'YYYY-MM-DD,YYYY-MM-DD' or 'last_N_days'", spec),
	}
}

func relativeDays(spec string) (int, bool) {
	rest, ok := strings.CutPrefix(spec, "last_")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "_days")
	if !ok {
		return 0, false
	}
	var days int
	if _, err := fmt.Sscanf(rest, "%d", &days); err != nil || days < 1 {
		return 0, false
	}
	return days, true
}

func queryActivities(ctx context.Context, db *sql.DB, userID int, from, to time.Time) (*ActivitySummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT activity_type, duration_min, calories_burned FROM fitness_activities
		 WHERE user_id = ? AND date_time >= ? AND date_time < ?`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	sum := &ActivitySummary{ByType: map[string]int{}}
	for rows.Next() {
		var typ string
		var minutes, calories int
		if err := rows.Scan(&typ, &minutes, &calories); err != nil {
			return nil, err
		}
		sum.Count++
		sum.TotalMinutes += minutes
		sum.TotalCalories += calories
		sum.ByType[typ]++
	}
	return sum, rows.Err()
}

func queryDiet(ctx context.Context, db *sql.DB, userID int, from, to time.Time) (*DietSummary, error) {
	row := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(calories), 0), COALESCE(SUM(proteins), 0),
		        COALESCE(SUM(carbs), 0), COALESCE(SUM(fats), 0)
		 FROM dietary_logs WHERE user_id = ? AND date_time >= ? AND date_time < ?`, userID, from, to)
	sum := &DietSummary{}
	if err := row.Scan(&sum.Entries, &sum.TotalCalories, &sum.Proteins, &sum.Carbs, &sum.Fats); err != nil {
		return nil, fmt.Errorf("query diet: %w", err)
	}
	if days := to.Sub(from).Hours() / 24; days >= 1 {
		sum.AvgCaloriesPD = float64(sum.TotalCalories) / days
	}
	return sum, nil
}

func queryWeight(ctx context.Context, db *sql.DB, userID int, from, to time.Time) (*WeightSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT weight FROM weight_entries
		 WHERE user_id = ? AND date >= ? AND date < ? ORDER BY date`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query weight: %w", err)
	}
	defer rows.Close()

	sum := &WeightSummary{}
	for rows.Next() {
		var w float64
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		if sum.Entries == 0 {
			sum.First = w
		}
		sum.Latest = w
		sum.Entries++
	}
	sum.Change = sum.Latest - sum.First
	return sum, rows.Err()
}

func queryGoals(ctx context.Context, db *sql.DB, userID int) ([]GoalSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT goal_type, target_value, achieved FROM fitness_goals
		 WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var out []GoalSummary
	for rows.Next() {
		var g GoalSummary
		if err := rows.Scan(&g.Type, &g.Target, &g.Achieved); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// observe derives short natural-language observations for the model.
func observe(a analysis) []string {
	var out []string
	if a.Activities != nil && a.Activities.Count == 0 {
		out = append(out, "no activities logged in this period")
	}
	if a.Weight != nil && a.Weight.Entries >= 2 {
		switch {
		case a.Weight.Change < 0:
			out = append(out, fmt.Sprintf("weight decreased by %.1f over the period", -a.Weight.Change))
		case a.Weight.Change > 0:
			out = append(out, fmt.Sprintf("weight increased by %.1f over the period", a.Weight.Change))
		}
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Package planner provides the generate_health_plan tool: personalized
// workout/diet plans assembled from user data and research findings.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/parley-ai/parley"
)

const defaultDuration = "4_weeks"

// Args are the model-supplied plan parameters.
type Args struct {
	PlanType     string         `json:"plan_type" enum:"workout,diet,weight_loss,muscle_gain,general_health" description:"Type of plan to generate"`
	UserData     map[string]any `json:"user_data" description:"User's health data and preferences"`
	ResearchData map[string]any `json:"research_data,omitempty" description:"Research findings to incorporate"`
	Duration     string         `json:"duration,omitempty" description:"Plan duration, e.g. 4_weeks"`
}

// Validate rejects plans without user data; the model is expected to gather
// it first (analyze_user_health_data) and pass it along.
func (a Args) Validate() error {
	if len(a.UserData) == 0 {
		return fmt.Errorf("user_data must not be empty; analyze the user's health data first")
	}
	return nil
}

// Plan is the generated output.
type Plan struct {
	PlanType        string   `json:"plan_type"`
	Duration        string   `json:"duration"`
	WeeklySchedule  []string `json:"weekly_schedule"`
	Recommendations []string `json:"recommendations"`
	ResearchBased   bool     `json:"research_based"`
}

// New builds the generate_health_plan tool.
func New() (parley.Tool, error) {
	return parley.NewTool(
		"generate_health_plan",
		"Generate personalized health/fitness plans based on user data and research",
		generate,
		parley.WithTimeout(10*time.Second),
		parley.WithTags("synthesis"),
		parley.WithDescriber(describePlan),
	)
}

func generate(_ context.Context, args Args) (Plan, error) {
	duration := args.Duration
	if duration == "" {
		duration = defaultDuration
	}
	weeks := durationWeeks(duration)

	plan := Plan{
		PlanType:      args.PlanType,
		Duration:      duration,
		ResearchBased: len(args.ResearchData) > 0,
	}
	for week := 1; week <= weeks; week++ {
		plan.WeeklySchedule = append(plan.WeeklySchedule, weekEntry(args.PlanType, week, weeks))
	}
	plan.Recommendations = recommendations(args)
	return plan, nil
}

// durationWeeks parses "N_weeks"; anything else falls back to 4.
func durationWeeks(duration string) int {
	rest, ok := strings.CutSuffix(duration, "_weeks")
	if !ok {
		rest, ok = strings.CutSuffix(duration, "_week")
	}
	if !ok {
		return 4
	}
	var weeks int
	if _, err := fmt.Sscanf(rest, "%d", &weeks); err != nil || weeks < 1 || weeks > 52 {
		return 4
	}
	return weeks
}

func weekEntry(planType string, week, total int) string {
	phase := "build"
	switch {
	case week == 1:
		phase = "baseline"
	case week == total:
		phase = "consolidate"
	}
	switch planType {
	case "workout", "muscle_gain":
		return fmt.Sprintf("week %d (%s): 3 strength sessions, 2 cardio sessions, 2 rest days", week, phase)
	case "diet", "weight_loss":
		return fmt.Sprintf("week %d (%s): calorie target with weekly weigh-in and one flexible day", week, phase)
	default:
		return fmt.Sprintf("week %d (%s): mixed activity, sleep and hydration targets", week, phase)
	}
}

func recommendations(args Args) []string {
	out := []string{"track progress weekly and adjust intensity gradually"}
	switch args.PlanType {
	case "weight_loss":
		out = append(out, "aim for a moderate calorie deficit; prioritize protein at every meal")
	case "muscle_gain":
		out = append(out, "progressive overload on compound lifts; eat in a small surplus")
	case "workout":
		out = append(out, "alternate hard and easy days to protect recovery")
	case "diet":
		out = append(out, "plan meals ahead; keep fiber and protein high to manage hunger")
	case "general_health":
		out = append(out, "consistency beats intensity; protect 7 to 9 hours of sleep")
	}
	if goals, ok := args.UserData["goals"].(string); ok && goals != "" {
		out = append(out, fmt.Sprintf("aligned with stated goals: %s", goals))
	}
	if len(args.ResearchData) > 0 {
		out = append(out, "incorporates the supplied research findings")
	}
	return out
}

func describePlan(argsJSON []byte) string {
	var args Args
	if err := json.Unmarshal(argsJSON, &args); err != nil || args.PlanType == "" {
		return "Creating a health plan for you"
	}
	return fmt.Sprintf("Creating a %s plan for you", args.PlanType)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spec-kit/grievance-portal/internal/lifecycle"
	"github.com/spec-kit/grievance-portal/internal/workhours"
)

// Policy is the business calendar and lifecycle policy. It is read from
// an optional YAML file; POLICY_* environment variables override it, for
// example POLICY_WORKING_HOURS_START=8 or POLICY_WORKING_DAYS=mon,tue,wed.
type Policy struct {
	StartHour           int
	EndHour             int
	WorkingDays         []time.Weekday
	Timezone            string
	ReopenWindowDays    int
	EscalationThreshold int
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// LoadPolicy reads the policy file at path. An empty path or a missing
// file yields the defaults plus any environment overrides.
func LoadPolicy(path string) (Policy, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("POLICY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("working_hours.start", 9)
	v.SetDefault("working_hours.end", 18)
	v.SetDefault("working_days", []string{"mon", "tue", "wed", "thu", "fri"})
	v.SetDefault("timezone", "UTC")
	v.SetDefault("reopen_window_days", 30)
	v.SetDefault("escalation_threshold", lifecycle.DefaultEscalationThreshold)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
			}
		}
	}

	days, err := parseWeekdays(v.GetStringSlice("working_days"))
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		StartHour:           v.GetInt("working_hours.start"),
		EndHour:             v.GetInt("working_hours.end"),
		WorkingDays:         days,
		Timezone:            v.GetString("timezone"),
		ReopenWindowDays:    v.GetInt("reopen_window_days"),
		EscalationThreshold: v.GetInt("escalation_threshold"),
	}
	if _, err := p.Clock(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Clock builds the working-time clock described by the policy.
func (p Policy) Clock() (*workhours.Clock, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("policy timezone %q: %w", p.Timezone, err)
	}
	return workhours.New(workhours.Config{
		StartHour:   p.StartHour,
		EndHour:     p.EndHour,
		WorkingDays: p.WorkingDays,
		Location:    loc,
	})
}

// Lifecycle returns the state machine settings of the policy.
func (p Policy) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		ReopenWindow:        time.Duration(p.ReopenWindowDays) * 24 * time.Hour,
		EscalationThreshold: p.EscalationThreshold,
	}
}

// parseWeekdays accepts short names, also comma-joined as env values are.
func parseWeekdays(raw []string) ([]time.Weekday, error) {
	var (
		out  []time.Weekday
		seen = map[time.Weekday]bool{}
	)
	for _, item := range raw {
		for _, name := range strings.Split(item, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if len(name) > 3 {
				name = name[:3]
			}
			day, ok := weekdays[name]
			if !ok {
				return nil, fmt.Errorf("policy working_days: unknown day %q", name)
			}
			if !seen[day] {
				seen[day] = true
				out = append(out, day)
			}
		}
	}
	return out, nil
}

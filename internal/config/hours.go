package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pizzeria/internal/storehours"
)

// DayConfig is one weekday entry of hours.yaml.
type DayConfig struct {
	Day   string `yaml:"day"`   // "monday"
	Open  string `yaml:"open"`  // "18:00"
	Close string `yaml:"close"` // "23:00", may be earlier than open for overnight hours
}

// HoursDefaults applies to every day not listed explicitly.
type HoursDefaults struct {
	Open    string   `yaml:"open"`
	Close   string   `yaml:"close"`
	DaysOff []string `yaml:"days_off"`
}

// HoursConfig is the root configuration for hours.yaml.
type HoursConfig struct {
	Days     []DayConfig   `yaml:"days"`
	Defaults HoursDefaults `yaml:"defaults"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts an English day name in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", name)
	}
	return d, nil
}

// LoadHours loads and validates the seed weekly schedule.
func LoadHours(path string) (*HoursConfig, error) {
	if path == "" {
		path = "configs/hours.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hours config: %w", err)
	}

	var cfg HoursConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse hours config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate hours config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *HoursConfig) Validate() error {
	seen := make(map[time.Weekday]bool)
	for i, d := range c.Days {
		day, err := ParseWeekday(d.Day)
		if err != nil {
			return fmt.Errorf("days[%d]: %w", i, err)
		}
		if seen[day] {
			return fmt.Errorf("days[%d]: duplicate day %s", i, d.Day)
		}
		seen[day] = true

		if err := validateWindow(d.Open, d.Close, fmt.Sprintf("days[%d]", i)); err != nil {
			return err
		}
	}

	if c.Defaults.Open != "" || c.Defaults.Close != "" {
		if err := validateWindow(c.Defaults.Open, c.Defaults.Close, "defaults"); err != nil {
			return err
		}
	}

	for i, name := range c.Defaults.DaysOff {
		day, err := ParseWeekday(name)
		if err != nil {
			return fmt.Errorf("defaults.days_off[%d]: %w", i, err)
		}
		if seen[day] {
			return fmt.Errorf("defaults.days_off[%d]: %s also listed in days", i, name)
		}
	}

	return nil
}

func validateWindow(open, closeAt, prefix string) error {
	o, err := time.Parse("15:04", open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, open)
	}
	c, err := time.Parse("15:04", closeAt)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, closeAt)
	}
	if o.Equal(c) {
		return fmt.Errorf("%s: open and close must differ", prefix)
	}
	return nil
}

// Schedule converts the file into a weekly schedule. Days that are neither
// listed nor covered by defaults are closed.
func (c *HoursConfig) Schedule() storehours.WeeklySchedule {
	var s storehours.WeeklySchedule

	if c.Defaults.Open != "" && c.Defaults.Close != "" {
		off := make(map[time.Weekday]bool)
		for _, name := range c.Defaults.DaysOff {
			if d, err := ParseWeekday(name); err == nil {
				off[d] = true
			}
		}
		for d := time.Sunday; d <= time.Saturday; d++ {
			if !off[d] {
				s[d] = storehours.DayHours{Enabled: true, Open: c.Defaults.Open, Close: c.Defaults.Close}
			}
		}
	}

	for _, d := range c.Days {
		day, err := ParseWeekday(d.Day)
		if err != nil {
			continue
		}
		s[day] = storehours.DayHours{Enabled: true, Open: d.Open, Close: d.Close}
	}
	return s
}

// String returns a summary of the configuration.
func (c *HoursConfig) String() string {
	open := 0
	for _, d := range c.Schedule() {
		if d.Enabled {
			open++
		}
	}
	return fmt.Sprintf("HoursConfig: %d explicit days, open %d days a week", len(c.Days), open)
}

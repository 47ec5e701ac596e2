package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzeria/internal/storehours"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PIZZERIA_TEST_KEY", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
app:
  environment: development
http:
  admin_api_key: ${PIZZERIA_TEST_KEY}
  allowed_origins: ["order.pizzeria.test", "*.pizzeria.test"]
database:
  path: `+filepath.Join(dir, "db", "store.db")+`
store:
  timezone: Europe/Rome
telegram:
  manager_chat_ids: [1, 2]
  retry_delays: [1s, 5s]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "s3cret", cfg.HTTP.AdminAPIKey)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"order.pizzeria.test", "*.pizzeria.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.ManagerChatIDs)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, cfg.Telegram.RetryDelays)
	assert.Equal(t, 24*time.Hour, cfg.MaxSleep())
	assert.Equal(t, time.Minute, cfg.RetryDelay())
	assert.Equal(t, time.Duration(0), cfg.CacheTTL())
	assert.DirExists(t, filepath.Join(dir, "db"))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", loc.String())
}

func TestLoad_InvalidTimezone(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "store.db")+`
store:
  timezone: Mars/Olympus
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "store.timezone")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadHours(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hours.yaml", `
defaults:
  open: "11:00"
  close: "22:00"
  days_off: [monday]
days:
  - day: Friday
    open: "18:00"
    close: "02:00"
  - day: saturday
    open: "12:00"
    close: "01:00"
`)

	cfg, err := LoadHours(path)
	require.NoError(t, err)

	s := cfg.Schedule()
	assert.Equal(t, storehours.DayHours{}, s[time.Monday])
	assert.Equal(t, storehours.DayHours{Enabled: true, Open: "11:00", Close: "22:00"}, s[time.Tuesday])
	assert.Equal(t, storehours.DayHours{Enabled: true, Open: "18:00", Close: "02:00"}, s[time.Friday])
	assert.Equal(t, storehours.DayHours{Enabled: true, Open: "12:00", Close: "01:00"}, s[time.Saturday])
	assert.Contains(t, cfg.String(), "open 6 days a week")
}

func TestHoursConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HoursConfig
		wantErr string
	}{
		{"unknown day", HoursConfig{Days: []DayConfig{{Day: "funday", Open: "10:00", Close: "11:00"}}}, "unknown day"},
		{"duplicate", HoursConfig{Days: []DayConfig{
			{Day: "monday", Open: "10:00", Close: "11:00"},
			{Day: "Monday", Open: "12:00", Close: "13:00"},
		}}, "duplicate day"},
		{"bad open", HoursConfig{Days: []DayConfig{{Day: "monday", Open: "25:00", Close: "11:00"}}}, "days[0].open"},
		{"bad close", HoursConfig{Days: []DayConfig{{Day: "monday", Open: "10:00", Close: "11"}}}, "days[0].close"},
		{"zero width", HoursConfig{Days: []DayConfig{{Day: "monday", Open: "10:00", Close: "10:00"}}}, "must differ"},
		{"bad defaults", HoursConfig{Defaults: HoursDefaults{Open: "10:00"}}, "defaults.close"},
		{"day off listed", HoursConfig{
			Days:     []DayConfig{{Day: "monday", Open: "10:00", Close: "11:00"}},
			Defaults: HoursDefaults{Open: "10:00", Close: "22:00", DaysOff: []string{"monday"}},
		}, "also listed"},
		{"empty is fine", HoursConfig{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWatchHours(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hours.yaml", "days:\n  - day: monday\n    open: \"10:00\"\n    close: \"20:00\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var updates []*HoursConfig
	var errs []error
	err := WatchHours(ctx, path, 10*time.Millisecond,
		func(c *HoursConfig) {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, c)
		},
		func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, updates, 1)
	mu.Unlock()

	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("days:\n  - day: monday\n    open: \"09:00\"\n    close: \"20:00\"\n"), 0o600))
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 2 && updates[1].Days[0].Open == "09:00"
	}, 2*time.Second, 10*time.Millisecond)

	evenLater := later.Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("days: [oops"), 0o600))
	require.NoError(t, os.Chtimes(path, evenLater, evenLater))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchHours_InitialLoadFails(t *testing.T) {
	err := WatchHours(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), time.Second, nil, nil)
	assert.Error(t, err)
}

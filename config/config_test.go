package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile points the loader at a file that does not exist.
func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	noEnvFile(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 5*time.Minute, cfg.Attendance.PassValidity)
	assert.Equal(t, 8, cfg.Attendance.PassCodeLength)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	noEnvFile(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ATTENDANCE_PASS_VALIDITY", "90s")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "kleo")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 90*time.Second, cfg.Attendance.PassValidity)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, "postgres://kleo:secret@db:5432/postgres?sslmode=disable", cfg.Database.URL)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=from-file\n"), 0o600))
	t.Setenv("APP_ENV_FILE", path)
	// godotenv does not override variables that are already set
	t.Setenv("APP_NAME", "")
	require.NoError(t, os.Unsetenv("APP_NAME"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.App.Name)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	noEnvFile(t)
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("ATTENDANCE_PASS_VALIDITY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Attendance.PassValidity)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Environment: EnvDevelopment},
			HTTP:     HTTPConfig{Port: 8080},
			Database: DatabaseConfig{ConnectAttempts: 1},
			Attendance: AttendanceConfig{
				PassValidity:   time.Minute,
				PassCodeLength: 8,
				PassLockTTL:    time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "production needs database",
			mutate:  func(c *Config) { c.App.Environment = EnvProduction },
			wantErr: "DATABASE_URL is required in production",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.App.Environment = "qa" },
			wantErr: "APP_ENV",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.HTTP.Port = 70000 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "non-positive validity",
			mutate:  func(c *Config) { c.Attendance.PassValidity = 0 },
			wantErr: "ATTENDANCE_PASS_VALIDITY",
		},
		{
			name:    "code too short",
			mutate:  func(c *Config) { c.Attendance.PassCodeLength = 2 },
			wantErr: "ATTENDANCE_PASS_CODE_LENGTH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

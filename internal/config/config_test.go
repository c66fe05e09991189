package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.TZOffsetHours != 8 {
					t.Errorf("expected TZ offset 8, got %d", cfg.TZOffsetHours)
				}
				if cfg.OnlineWindow != 60*time.Second {
					t.Errorf("expected OnlineWindow 60s, got %v", cfg.OnlineWindow)
				}
				if cfg.StaleReportAge != 10*time.Minute {
					t.Errorf("expected StaleReportAge 10m, got %v", cfg.StaleReportAge)
				}
				if cfg.CrossoverGrace != 30*time.Second {
					t.Errorf("expected CrossoverGrace 30s, got %v", cfg.CrossoverGrace)
				}
				if cfg.LongPollWait != 30*time.Second {
					t.Errorf("expected LongPollWait 30s, got %v", cfg.LongPollWait)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":             "9000",
				"LOG_LEVEL":        "debug",
				"TZ_OFFSET_HOURS":  "0",
				"ONLINE_WINDOW":    "120",
				"STALE_REPORT_AGE": "300",
				"ALLOWED_ORIGINS":  "http://example.com,http://test.com",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.TZOffsetHours != 0 {
					t.Errorf("expected TZ offset 0, got %d", cfg.TZOffsetHours)
				}
				if cfg.OnlineWindow != 2*time.Minute {
					t.Errorf("expected OnlineWindow 2m, got %v", cfg.OnlineWindow)
				}
				if cfg.StaleReportAge != 5*time.Minute {
					t.Errorf("expected StaleReportAge 5m, got %v", cfg.StaleReportAge)
				}
				if len(cfg.AllowedOrigins) != 2 {
					t.Errorf("expected 2 allowed origins, got %d", len(cfg.AllowedOrigins))
				}
			},
		},
		{
			name: "invalid TZ_OFFSET_HOURS",
			env: map[string]string{
				"TZ_OFFSET_HOURS": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid ONLINE_WINDOW",
			env: map[string]string{
				"ONLINE_WINDOW": "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Load config
			cfg, err := Load()

			// Check error
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Run custom checks
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	loc := cfg.Location()
	utc := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	local := utc.In(loc)
	if local.Hour() != 4 || local.Day() != 2 {
		t.Errorf("expected 04:00 next day in UTC+8, got %v", local)
	}
}

func TestWebSocketConstants(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", cfg.PongWait, cfg.WSReadTimeout)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", cfg.WriteWait, cfg.WSWriteTimeout)
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize should be positive, got %d", cfg.MaxMessageSize)
	}
}

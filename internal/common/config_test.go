package common

import (
	"testing"
	"time"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_RedisEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_MAX_CONNECTIONS", "25")
	t.Setenv("REDIS_SOCKET_CONNECT_TIMEOUT", "10")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Redis.Host != "redis.internal" {
		t.Errorf("Redis.Host = %q, want redis.internal", cfg.Redis.Host)
	}
	if cfg.Redis.Port != 6380 {
		t.Errorf("Redis.Port = %d, want 6380", cfg.Redis.Port)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("Redis.DB = %d, want 3", cfg.Redis.DB)
	}
	if cfg.Redis.MaxConnections != 25 {
		t.Errorf("Redis.MaxConnections = %d, want 25", cfg.Redis.MaxConnections)
	}
	if got := cfg.Redis.GetConnectTimeout(); got != 10*time.Second {
		t.Errorf("GetConnectTimeout = %v, want 10s", got)
	}
}

func TestConfig_ProviderEnvOverrides(t *testing.T) {
	t.Setenv("REALTIME_DATA_PROVIDER", "Sina")
	t.Setenv("REALTIME_AUTO_SWITCH", "false")
	t.Setenv("REALTIME_UPDATE_INTERVAL", "5")
	t.Setenv("TUSHARE_TOKEN", "tok-123")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Providers.Realtime != "sina" {
		t.Errorf("Providers.Realtime = %q, want sina", cfg.Providers.Realtime)
	}
	if cfg.Providers.AutoSwitch {
		t.Error("Providers.AutoSwitch = true, want false")
	}
	if got := cfg.Scheduler.GetRealtimeUpdateInterval(); got != 5*time.Minute {
		t.Errorf("GetRealtimeUpdateInterval = %v, want 5m", got)
	}
	if cfg.Providers.Tushare.Token != "tok-123" {
		t.Errorf("Tushare.Token = %q, want tok-123", cfg.Providers.Tushare.Token)
	}
}

func TestParseInitMode_LegacyAliases(t *testing.T) {
	cases := map[string]InitMode{
		"skip":       InitModeSkip,
		"none":       InitModeSkip,
		"tasks_only": InitModeTasksOnly,
		"only_tasks": InitModeTasksOnly,
		"full_init":  InitModeFullInit,
		"clear_all":  InitModeFullInit,
		"etf_only":   InitModeETFOnly,
		"garbage":    InitModeTasksOnly,
		"":           InitModeTasksOnly,
	}
	for in, want := range cases {
		if got := ParseInitMode(in); got != want {
			t.Errorf("ParseInitMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfig_GetMaxWorkers_SingleThreaded(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scheduler.UseMultithreading = false
	if got := cfg.Scheduler.GetMaxWorkers(); got != 1 {
		t.Errorf("GetMaxWorkers = %d with multithreading off, want 1", got)
	}
}

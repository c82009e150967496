package config

import (
	"os"
	"strconv"
	"time"
)

// AppConfig carries every runtime tunable. All values come from environment
// variables with working defaults, so a local stack runs with no setup.
type AppConfig struct {
	HTTPPort    string
	PostgresDSN string
	RedisURL    string
	ResultsDir  string

	WorkerRegistryFile string
	SeverityMapFile    string

	SchedulerConcurrency int
	TaskDeadline         time.Duration

	// Circuit breaker.
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	LivenessTTL             time.Duration

	// Dispatcher connection retries.
	DispatchMaxAttempts int
	DispatchBackoffBase time.Duration
	ConnectTimeout      time.Duration

	// Sweeper.
	StuckRunningTimeout time.Duration
	StalePendingTimeout time.Duration
	SweepGracePeriod    time.Duration
	SweepInterval       time.Duration
	StuckRetryBudget    int

	// Execution leases.
	LeaseTTL           time.Duration
	LeaseRenewInterval time.Duration

	// Result aggregation.
	SideDocThresholdBytes int

	// Recurring schedules.
	ScheduleTickInterval time.Duration
	ScheduleTimezone     string
}

// Load reads the configuration from the environment.
func Load() AppConfig {
	return AppConfig{
		HTTPPort:    getString("HTTP_PORT", "8080"),
		PostgresDSN: getString("DATABASE_URL", "host=localhost port=5432 user=analyzer dbname=analysis_core sslmode=disable"),
		RedisURL:    getString("REDIS_URL", "redis://localhost:6379"),
		ResultsDir:  getString("RESULTS_DIR", "results"),

		WorkerRegistryFile: getString("WORKER_REGISTRY_FILE", "workers.yaml"),
		SeverityMapFile:    getString("SEVERITY_MAP_FILE", "severity_map.yaml"),

		SchedulerConcurrency: getInt("SCHEDULER_CONCURRENCY", 4),
		TaskDeadline:         getDuration("TASK_DEADLINE", 30*time.Minute),

		BreakerFailureThreshold: getInt("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerCooldown:         getDuration("BREAKER_COOLDOWN", 5*time.Minute),
		LivenessTTL:             getDuration("LIVENESS_TTL", 30*time.Second),

		DispatchMaxAttempts: getInt("DISPATCH_MAX_ATTEMPTS", 4),
		DispatchBackoffBase: getDuration("DISPATCH_BACKOFF_BASE", 2*time.Second),
		ConnectTimeout:      getDuration("CONNECT_TIMEOUT", 5*time.Second),

		StuckRunningTimeout: getDuration("STUCK_RUNNING_TIMEOUT", 2*time.Hour),
		StalePendingTimeout: getDuration("STALE_PENDING_TIMEOUT", 24*time.Hour),
		SweepGracePeriod:    getDuration("SWEEP_GRACE_PERIOD", 5*time.Minute),
		SweepInterval:       getDuration("SWEEP_INTERVAL", time.Minute),
		StuckRetryBudget:    getInt("STUCK_RETRY_BUDGET", 3),

		LeaseTTL:           getDuration("LEASE_TTL", 30*time.Second),
		LeaseRenewInterval: getDuration("LEASE_RENEW_INTERVAL", 10*time.Second),

		SideDocThresholdBytes: getInt("SIDE_DOC_THRESHOLD_BYTES", 32*1024),

		ScheduleTickInterval: getDuration("SCHEDULE_TICK_INTERVAL", 30*time.Second),
		ScheduleTimezone:     getString("SCHEDULE_TIMEZONE", "UTC"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

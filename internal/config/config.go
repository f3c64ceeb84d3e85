// Package config loads service settings from RETAILGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"retailgate.org/internal/access"
)

const envPrefix = "RETAILGATE_"

// Config holds every setting the service reads at startup.
type Config struct {
	Access  access.Config
	Session struct {
		Timeout         time.Duration
		MaxConcurrent   int
		CleanupInterval time.Duration
	}
	RateLimit struct {
		Window    time.Duration
		Limit     int
		PerOp     map[access.Operation]int
		RedisAddr string
		RedisPass string
		RedisDB   int
	}
	HTTP struct {
		Addr            string
		GRPCAddr        string
		AllowedOrigins  []string
		MaxBodyBytes    int64
		ClientRPS       float64
		ClientBurst     int
		ShutdownTimeout time.Duration
	}
	Auth struct {
		Secret string
		Issuer string
	}
	Database struct {
		DSN string
	}
	BranchesFile string
	Log          struct {
		Level  string
		Format string
	}
}

// Load reads the environment, filling defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.Access = access.DefaultConfig()
	cfg.Access.EnforceDataIsolation = getBool("ENFORCE_DATA_ISOLATION", cfg.Access.EnforceDataIsolation, &errs)
	cfg.Access.AllowCrossBranchAccess = getBool("ALLOW_CROSS_BRANCH_ACCESS", cfg.Access.AllowCrossBranchAccess, &errs)
	cfg.Access.RequireApprovalForSensitiveOperations = getBool("REQUIRE_APPROVAL_FOR_SENSITIVE_OPERATIONS", cfg.Access.RequireApprovalForSensitiveOperations, &errs)
	cfg.Access.AuditAllOperations = getBool("AUDIT_ALL_OPERATIONS", cfg.Access.AuditAllOperations, &errs)

	cfg.Session.Timeout = time.Duration(getInt("SESSION_TIMEOUT_MINUTES", 30, &errs)) * time.Minute
	cfg.Session.MaxConcurrent = getInt("MAX_CONCURRENT_SESSIONS", 0, &errs)
	cfg.Session.CleanupInterval = getDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute, &errs)

	cfg.RateLimit.Window = getDuration("RATE_LIMIT_WINDOW", time.Minute, &errs)
	cfg.RateLimit.Limit = getInt("RATE_LIMIT_MAX_REQUESTS", 100, &errs)
	cfg.RateLimit.PerOp = parseOpLimits(getEnv("RATE_LIMIT_OPERATION_LIMITS", ""), &errs)
	cfg.RateLimit.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RateLimit.RedisPass = getEnv("REDIS_PASSWORD", "")
	cfg.RateLimit.RedisDB = getInt("REDIS_DB", 0, &errs)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.GRPCAddr = getEnv("GRPC_ADDR", ":9090")
	cfg.HTTP.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", ""))
	cfg.HTTP.MaxBodyBytes = int64(getInt("MAX_BODY_BYTES", 1<<20, &errs))
	cfg.HTTP.ClientRPS = getFloat("CLIENT_RPS", 50, &errs)
	cfg.HTTP.ClientBurst = getInt("CLIENT_BURST", 100, &errs)
	cfg.HTTP.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)

	cfg.Auth.Secret = getEnv("AUTH_SECRET", "")
	cfg.Auth.Issuer = getEnv("AUTH_ISSUER", "retailgate")

	cfg.Database.DSN = getEnv("PG_DSN", "")
	cfg.BranchesFile = getEnv("BRANCHES_FILE", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.Session.Timeout <= 0 {
		errs = append(errs, errors.New("session timeout must be positive"))
	}
	if c.Session.MaxConcurrent < 0 {
		errs = append(errs, errors.New("max concurrent sessions must not be negative"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("rate limit window and limit must be positive"))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, fmt.Errorf("%sAUTH_SECRET is required", envPrefix))
	}
	if c.Database.DSN == "" && c.BranchesFile == "" {
		errs = append(errs, fmt.Errorf("one of %sPG_DSN or %sBRANCHES_FILE is required", envPrefix, envPrefix))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}

// parseOpLimits reads "delete=5,transfer=2".
func parseOpLimits(raw string, errs *[]error) map[access.Operation]int {
	out := make(map[access.Operation]int)
	for _, pair := range splitList(raw) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			*errs = append(*errs, fmt.Errorf("%sRATE_LIMIT_OPERATION_LIMITS: malformed entry %q", envPrefix, pair))
			continue
		}
		op, err := access.ParseOperation(name)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			*errs = append(*errs, fmt.Errorf("%sRATE_LIMIT_OPERATION_LIMITS: bad limit for %s", envPrefix, op))
			continue
		}
		out[op] = n
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

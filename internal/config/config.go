package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/motswedi/deductions/internal/interchange"
)

type Config struct {
	Port           string
	DBPath         string
	WorkerLimit    int
	TenantCacheTTL time.Duration
	LapseGraceDays int
	Remittance     interchange.RemittanceLayout
}

// Load reads configuration from the environment, with an optional .env file.
func Load() *Config {
	// Missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "deductions.db"),
		WorkerLimit:    getEnvInt("WORKER_LIMIT", 8),
		TenantCacheTTL: getEnvDuration("TENANT_CACHE_TTL", 5*time.Minute),
		LapseGraceDays: getEnvInt("LAPSE_GRACE_DAYS", 60),
		Remittance:     loadRemittanceLayout(),
	}
}

// loadRemittanceLayout reads the authority's remittance column positions.
// Defaults mirror our own outbound file; deployments facing an authority
// with a different file shape override per column, -1 marking a column the
// file does not carry.
func loadRemittanceLayout() interchange.RemittanceLayout {
	def := interchange.DefaultLayout()
	return interchange.RemittanceLayout{
		EmployeeNumber: getEnvColumn("REMIT_COL_EMPLOYEE_NO", def.EmployeeNumber),
		NationalID:     getEnvColumn("REMIT_COL_NATIONAL_ID", def.NationalID),
		MemberNumber:   getEnvColumn("REMIT_COL_MEMBER_NO", def.MemberNumber),
		Amount:         getEnvColumn("REMIT_COL_AMOUNT", def.Amount),
		Status:         getEnvColumn("REMIT_COL_STATUS", def.Status),
		Reason:         getEnvColumn("REMIT_COL_REASON", def.Reason),
		HasHeader:      getEnvBool("REMIT_HAS_HEADER", def.HasHeader),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// getEnvColumn differs from getEnvInt in that -1 is a valid value.
func getEnvColumn(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= -1 {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

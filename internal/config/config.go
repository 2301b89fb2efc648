package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every tunable the backend reads from the environment.
// Values come from a .env file (if present) overlaid by real env vars.
type Config struct {
	ListenAddr string

	// Primary DHIS2 instance credentials
	Dhis2BaseURL  string
	Dhis2Username string
	Dhis2Password string

	// Document store
	Namespace       string
	BackupNamespace string

	// Assessment list cache
	ListCacheTTL     time.Duration
	ListIndexTimeout time.Duration
	ListScanTimeout  time.Duration

	// Sharing defaults applied by the metadata factory. DHIS2 access
	// strings, e.g. "r-------" (metadata read, no data access).
	SharingPublicAccess   string
	SharingExternalAccess bool
}

// Load reads configuration. A missing .env file is not an error.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	return &Config{
		ListenAddr:            getEnv("LISTEN_ADDR", ":8080"),
		Dhis2BaseURL:          getEnv("DHIS2_BASE_URL", "https://play.dhis2.org/40.0.0"),
		Dhis2Username:         getEnv("DHIS2_USERNAME", "admin"),
		Dhis2Password:         getEnv("DHIS2_PASSWORD", "district"),
		Namespace:             getEnv("DATASTORE_NAMESPACE", "dqa360"),
		BackupNamespace:       getEnv("BACKUP_NAMESPACE", "dqa360-backups"),
		ListCacheTTL:          getEnvDuration("LIST_CACHE_TTL", 30*time.Second),
		ListIndexTimeout:      getEnvDuration("LIST_INDEX_TIMEOUT", 8*time.Second),
		ListScanTimeout:       getEnvDuration("LIST_SCAN_TIMEOUT", 15*time.Second),
		SharingPublicAccess:   getEnv("SHARING_PUBLIC_ACCESS", "r-------"),
		SharingExternalAccess: getEnvBool("SHARING_EXTERNAL_ACCESS", false),
	}
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultValue
}

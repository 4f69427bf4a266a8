// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Every variable carries the QM_ prefix.
//
// # Configuration Structure
//
// Database settings:
//
//	QM_DB_DRIVER="postgres"  # postgres or sqlite3
//	QM_DB_URL="postgres://localhost/quartermaster?sslmode=disable"
//	QM_DB_REPLICA_URLS="postgres://replica-1/quartermaster,postgres://replica-2/quartermaster"
//	QM_DB_MAX_CONNS="20"
//
// Decision cache settings:
//
//	QM_CACHE_MODE="redis"  # none, memory, redis
//	QM_CACHE_TTL="30s"
//	QM_CACHE_SIZE="10000"
//	QM_REDIS_URL="redis://localhost:6379/0"
//
// Policy settings:
//
//	QM_POLICY_FILE="/etc/quartermaster/policy.yaml"
//	QM_POLICY_WATCH="true"
//
// Observability settings:
//
//	QM_LOG_LEVEL="info"  # debug, info, warn, error
//	QM_OPS_PORT="9090"
//	QM_OTEL_ENABLED="true"
//	QM_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Database: %s\n", cfg.Database.Dialect)
package config

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// One gorm pool per schema. The basic store belongs to the ERP bridge and
// is never written to from here.
var (
	orderDB       *gorm.DB
	procurementDB *gorm.DB
	basicDB       *gorm.DB
	inventoryDB   *gorm.DB
	wacDB         *gorm.DB
)

func GetOrderDB() *gorm.DB       { return orderDB }
func GetProcurementDB() *gorm.DB { return procurementDB }
func GetBasicDB() *gorm.DB       { return basicDB }
func GetInventoryDB() *gorm.DB   { return inventoryDB }
func GetWacDB() *gorm.DB         { return wacDB }

func init() {
	// Load env from .env
	godotenv.Load()
	// IMPORTANT (Cloud Run):
	// Do NOT block startup in init() waiting for DB.
	// Cloud Run requires the container to start listening on $PORT quickly.
}

// storeEnv resolves a per-store setting (e.g. ORDER_DB_HOST) falling back to
// the shared DB_* value so single-host deployments only set one block.
func storeEnv(prefix, key, shared string) string {
	if v := os.Getenv(prefix + "_DB_" + key); v != "" {
		return v
	}
	return os.Getenv(shared)
}

func storeDSN(prefix string) string {
	user := storeEnv(prefix, "USER", "DB_USER")
	password := storeEnv(prefix, "PASSWORD", "DB_PASSWORD")
	host := storeEnv(prefix, "HOST", "DB_HOST")
	port := storeEnv(prefix, "PORT", "DB_PORT")
	name := os.Getenv(prefix + "_DB_NAME")

	network := "tcp"
	address := fmt.Sprintf("%s:%s", host, port)

	// Cloud Run + Cloud SQL: when the host is "/cloudsql/<CONNECTION_NAME>",
	// connect using a Unix domain socket provided by Cloud SQL Auth Proxy.
	if strings.HasPrefix(host, "/cloudsql/") {
		network = "unix"
		address = host
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		user,
		password,
		network,
		address,
		name,
	)
}

// ConnectDatabasesWithRetry connects every store pool and sets the globals.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabasesWithRetry() {
	orderDB = connectWithRetry("ORDER")
	procurementDB = connectWithRetry("PROCUREMENT")
	basicDB = connectWithRetry("BASIC")
	inventoryDB = connectWithRetry("INVENTORY")
	wacDB = connectWithRetry("WAC")
}

func connectWithRetry(prefix string) *gorm.DB {
	dsn := storeDSN(prefix)

	var attempt int
	for {
		attempt++
		db, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err == nil {
			// Tune database/sql pool for Cloud SQL / production.
			// Env overrides (optional):
			// - DB_MAX_OPEN_CONNS (default 25)
			// - DB_MAX_IDLE_CONNS (default 10)
			// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
			// - DB_CONN_MAX_IDLE_TIME_SECONDS (default 60)
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 25)
				maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 10)
				connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
				connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

				if maxOpen > 0 {
					sqlDB.SetMaxOpenConns(maxOpen)
				}
				if maxIdle >= 0 {
					sqlDB.SetMaxIdleConns(maxIdle)
				}
				if connMaxLife > 0 {
					sqlDB.SetConnMaxLifetime(connMaxLife)
				}
				if connMaxIdle > 0 {
					sqlDB.SetConnMaxIdleTime(connMaxIdle)
				}
			}
			log.Printf("connected to %s database (attempt=%d)", strings.ToLower(prefix), attempt)
			return db
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect %s database (attempt=%d): %v; retrying in %s", strings.ToLower(prefix), attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

// InitLog Connection Log Configuration
func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

// InitNamingStrategy Init NamingStrategy
func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

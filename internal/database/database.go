package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xelth-com/eckwmsfield/internal/config"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/models"
)

var (
	// ErrStore wraps every failure of the local store.
	ErrStore = errors.New("local store failure")
	// ErrRecordNotFound is returned when a record does not exist locally.
	ErrRecordNotFound = errors.New("record not found")
)

const embeddedPort = 5433

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
	log      logging.Logger
}

// Open connects to the local store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig, log logging.Logger) (*DB, error) {
	if log == nil {
		log = logging.Discard()
	}
	ctx := context.Background()

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	switch cfg.Driver {
	case "", "sqlite":
		return openSQLite(ctx, cfg, gormCfg, log)
	case "postgres":
		return openPostgres(ctx, cfg, gormCfg, log)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrStore, cfg.Driver)
	}
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig, gormCfg *gorm.Config, log logging.Logger) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", ErrStore, err)
		}
	}
	dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStore, err)
	}

	// a single writer avoids SQLITE_BUSY between the engine and the API
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info(ctx, "local store opened", "driver", "sqlite", "path", cfg.Path)
	return &DB{DB: db, log: log}, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, gormCfg *gorm.Config, log logging.Logger) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres

	// Embedded mode: localhost and no password
	isEmbedded := cfg.Host == "localhost" && cfg.Password == ""

	password := cfg.Password
	if isEmbedded {
		dataPath := filepath.Join(filepath.Dir(cfg.Path), "pg_data")
		log.Info(ctx, "starting embedded postgres", "data", dataPath, "port", embeddedPort)

		cleanupStaleEmbeddedPostgres(ctx, dataPath, log)

		if isPortInUse(embeddedPort) {
			log.Warn(ctx, "embedded postgres port still in use, waiting", "port", embeddedPort)
			for i := 0; i < 6; i++ {
				time.Sleep(500 * time.Millisecond)
				if !isPortInUse(embeddedPort) {
					break
				}
			}
			if isPortInUse(embeddedPort) {
				return nil, fmt.Errorf("%w: port %d is still in use by another process", ErrStore, embeddedPort)
			}
		}

		embeddedCfg := embeddedpostgres.DefaultConfig().
			DataPath(dataPath).
			Port(uint32(embeddedPort)).
			Database(cfg.Database).
			Username(cfg.Username).
			Password("postgres")

		embedded = embeddedpostgres.NewDatabase(embeddedCfg)
		if err := embedded.Start(); err != nil {
			return nil, fmt.Errorf("%w: start embedded postgres: %v", ErrStore, err)
		}

		cfg.Port = strconv.Itoa(embeddedPort)
		password = "postgres"
	} else {
		log.Info(ctx, "connecting to postgres", "host", cfg.Host, "port", cfg.Port)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("%w: connect to postgres: %v", ErrStore, err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info(ctx, "local store opened", "driver", "postgres", "embedded", isEmbedded)
	return &DB{DB: db, embedded: embedded, log: log}, nil
}

// cleanupStaleEmbeddedPostgres cleans up leftover processes from a previous crash
func cleanupStaleEmbeddedPostgres(ctx context.Context, dataPath string, log logging.Logger) {
	pidFile := filepath.Join(dataPath, "postmaster.pid")

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}

	// PID is the first line of postmaster.pid
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		log.Warn(ctx, "could not parse postmaster.pid", "err", err)
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		_ = os.Remove(pidFile)
		return
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	if err := process.Signal(syscall.Signal(0)); err != nil {
		log.Info(ctx, "removing stale postmaster.pid", "pid", pid)
		_ = os.Remove(pidFile)
		return
	}

	log.Warn(ctx, "stopping orphaned postgres process", "pid", pid)
	_ = process.Signal(syscall.SIGTERM)
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if err := process.Signal(syscall.Signal(0)); err != nil {
			_ = os.Remove(pidFile)
			return
		}
	}

	_ = process.Kill()
	time.Sleep(500 * time.Millisecond)
	_ = os.Remove(pidFile)
}

// isPortInUse checks if a port is already in use
func isPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Close ensures the database connection and embedded process are shut down
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		db.log.Info(context.Background(), "stopping embedded postgres")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}

// Migrate creates or updates the tables of every synchronized kind plus the
// bookkeeping tables.
func (db *DB) Migrate() error {
	err := db.DB.AutoMigrate(
		&models.Supplier{},
		&models.Customer{},
		&models.Vehicle{},
		&models.Product{},
		&models.StockLevel{},
		&models.Shipment{},
		&models.SyncMetadata{},
		&models.SyncCycle{},
		&models.Credential{},
	)
	if err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrStore, err)
	}
	return nil
}

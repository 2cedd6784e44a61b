package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// MySQLCache is a MySQL implementation of the SnapshotRepository interface
type MySQLCache struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
	now         func() time.Time
}

// NewMySQLCache creates a new MySQL snapshot cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq, retention time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	cache, err := NewMySQLCacheFromDB(db, logger, cleanupFreq, retention)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

// NewMySQLCacheFromDB creates the cache on an already opened connection pool
func NewMySQLCacheFromDB(db *sql.DB, logger *zap.Logger, cleanupFreq, retention time.Duration) (*MySQLCache, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lifecycle_snapshots (
			cache_key VARCHAR(255) PRIMARY KEY,
			payload LONGTEXT NOT NULL,
			computed_at VARCHAR(40) NOT NULL,
			purge_after BIGINT NOT NULL,
			INDEX idx_snapshots_purge_after (purge_after)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	cache := &MySQLCache{
		db:          db,
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache, nil
}

// Get retrieves the snapshot stored under key
func (c *MySQLCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, `
		SELECT payload FROM lifecycle_snapshots WHERE cache_key = ?
	`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return decodeEntry([]byte(payload))
}

// Set stores a snapshot, replacing the previous one
func (c *MySQLCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO lifecycle_snapshots (cache_key, payload, computed_at, purge_after)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			payload = VALUES(payload),
			computed_at = VALUES(computed_at),
			purge_after = VALUES(purge_after)
	`, entry.Key, string(payload), entry.ComputedAt.UTC().Format(time.RFC3339Nano), purgeAfter(entry, c.retention).Unix())
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Delete removes a snapshot
func (c *MySQLCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM lifecycle_snapshots WHERE cache_key = ?
	`, key)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Cleanup removes snapshots past their retention
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM lifecycle_snapshots WHERE purge_after <= ?
	`, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired snapshots: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired snapshots", zap.Int64("purged_count", rowsAffected))
	}
	return nil
}

func (c *MySQLCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up snapshots", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (c *MySQLCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/kindfund/campaignsync/internal/platform/storage/sqlitemigrate"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 50

// Store provides SQLite-backed persistence for the event journal.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates a journal SQLite store.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append records one event and returns its sequence number.
func (s *Store) Append(ctx context.Context, entry storage.Entry) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	entry.CampaignID = strings.TrimSpace(entry.CampaignID)
	if entry.CampaignID == "" {
		return 0, fmt.Errorf("campaign id is required")
	}
	entry.Event = strings.TrimSpace(entry.Event)
	if entry.Event == "" {
		return 0, fmt.Errorf("event name is required")
	}
	if entry.Status == "" {
		return 0, fmt.Errorf("event status is required")
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	payload := []byte(entry.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sync_events (campaign_id, event, status, outcome, reason, payload_json, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.CampaignID,
		entry.Event,
		string(entry.Status),
		entry.Outcome,
		entry.Reason,
		payload,
		timeToUnixMillis(entry.ReceivedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("append sync event: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read sync event seq: %w", err)
	}
	return seq, nil
}

// Recent lists up to limit events for a campaign, newest first.
func (s *Store) Recent(ctx context.Context, campaignID string, limit int) ([]storage.Entry, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, campaign_id, event, status, outcome, reason, payload_json, received_at
		 FROM sync_events
		 WHERE campaign_id = ?
		 ORDER BY seq DESC
		 LIMIT ?`,
		campaignID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]storage.Entry, 0)
	for rows.Next() {
		var entry storage.Entry
		var status string
		var payload []byte
		var receivedAt int64
		if err := rows.Scan(
			&entry.Seq,
			&entry.CampaignID,
			&entry.Event,
			&status,
			&entry.Outcome,
			&entry.Reason,
			&payload,
			&receivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync event: %w", err)
		}
		entry.Status = storage.Status(status)
		entry.Payload = payload
		entry.ReceivedAt = unixMillisToTime(receivedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync events: %w", err)
	}
	return entries, nil
}

// CountByStatus returns how many events of a campaign ended in each status.
func (s *Store) CountByStatus(ctx context.Context, campaignID string) (map[storage.Status]int64, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT status, COUNT(*) FROM sync_events WHERE campaign_id = ? GROUP BY status`,
		strings.TrimSpace(campaignID),
	)
	if err != nil {
		return nil, fmt.Errorf("count sync events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[storage.Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan sync event count: %w", err)
		}
		counts[storage.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync event counts: %w", err)
	}
	return counts, nil
}

func timeToUnixMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func unixMillisToTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

var _ storage.Journal = (*Store)(nil)

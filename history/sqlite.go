package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/mediagrab/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore persists history in a SQLite database through gorm.
type SQLiteStore struct {
	db       *gorm.DB
	max      int
	eviction Eviction
	now      func() time.Time
}

// historyRow adds the insertion sequence used for oldest-inserted eviction.
type historyRow struct {
	models.HistoryEntry
	Seq int64 `gorm:"index"`
}

func (historyRow) TableName() string { return "history" }

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, max int, eviction Eviction) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.AutoMigrate(&historyRow{}); err != nil {
		return nil, fmt.Errorf("history: migrate database: %w", err)
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if eviction == "" {
		eviction = EvictOldestInserted
	}
	return &SQLiteStore{db: db, max: max, eviction: eviction, now: time.Now}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, r Record) (models.HistoryEntry, error) {
	var out models.HistoryEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		var existing historyRow
		err := tx.Where("url = ?", r.URL).First(&existing).Error
		switch {
		case err == nil:
			updates := map[string]any{
				"media_count": r.MediaCount,
				"title":       r.Title,
				"timestamp":   now,
			}
			if s.eviction == EvictLeastRecentlyUpdated {
				seq, err := nextSeq(tx)
				if err != nil {
					return err
				}
				updates["seq"] = seq
			}
			if err := tx.Model(&historyRow{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			out = existing.HistoryEntry
			out.MediaCount, out.Title, out.Timestamp = r.MediaCount, r.Title, now
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := s.evict(tx); err != nil {
			return err
		}
		seq, err := nextSeq(tx)
		if err != nil {
			return err
		}
		row := historyRow{
			HistoryEntry: models.HistoryEntry{
				ID:         uuid.NewString(),
				URL:        r.URL,
				MediaCount: r.MediaCount,
				Title:      r.Title,
				Timestamp:  now,
			},
			Seq: seq,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		out = row.HistoryEntry
		return nil
	})
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("history: record %q: %w", r.URL, err)
	}
	return out, nil
}

// evict drops the lowest-sequence rows until there is room for one more.
func (s *SQLiteStore) evict(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&historyRow{}).Count(&count).Error; err != nil {
		return err
	}
	excess := int(count) - s.max + 1
	if excess <= 0 {
		return nil
	}
	var ids []string
	if err := tx.Model(&historyRow{}).Order("seq ASC").Limit(excess).Pluck("id", &ids).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&historyRow{}).Error
}

func nextSeq(tx *gorm.DB) (int64, error) {
	var last int64
	if err := tx.Model(&historyRow{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.HistoryEntry, error) {
	var rows []historyRow
	if err := s.db.WithContext(ctx).Order("timestamp DESC, seq DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	out := make([]models.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.HistoryEntry
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&historyRow{})
	if res.Error != nil {
		return fmt.Errorf("history: delete %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

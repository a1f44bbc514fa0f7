package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/spigell/peermatch/internal/profile"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type profileRow struct {
	PersonID    int64 `gorm:"primaryKey;autoIncrement:false"`
	DisplayName string
	Affiliation string
	Stage       string
	Skills      datatypes.JSONSlice[string]
	Interests   datatypes.JSONSlice[string]
	Goals       string
	Embedding   []byte
	IsBlocked   bool   `gorm:"not null;index"`
	Language    string `gorm:"not null"`
	LastUpdated time.Time
}

func (profileRow) TableName() string { return "profiles" }

type rateLimitRow struct {
	PersonID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Action     string `gorm:"primaryKey"`
	LastUsedAt time.Time
}

func (rateLimitRow) TableName() string { return "rate_limits" }

type languageRow struct {
	PersonID int64  `gorm:"primaryKey;autoIncrement:false"`
	Code     string `gorm:"not null"`
}

func (languageRow) TableName() string { return "languages" }

// GormStore implements Store and Ledger on top of a SQL database.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open connects to the database described by driver and dsn.
func Open(driver, dsn string, logger *zap.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		if dsn == "" {
			dsn = "peermatch.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("postgres dsn is required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	return NewGormStore(db, logger), nil
}

// NewGormStore wraps an already opened connection.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, logger: logger, now: time.Now}
}

// Migrate creates or updates the tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&profileRow{}, &rateLimitRow{}, &languageRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.logger.Debug("database schema migrated")
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Get(ctx context.Context, personID int64) (*profile.Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("person_id = ?", personID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile %d: %w", personID, err)
	}
	return s.fromRow(&row), nil
}

func (s *GormStore) Put(ctx context.Context, p *profile.Profile) error {
	if p == nil {
		return errors.New("profile is required")
	}
	row := toRow(p)
	row.LastUpdated = s.now().UTC()

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "person_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("put profile %d: %w", p.PersonID, err)
	}

	p.LastUpdated = row.LastUpdated
	return nil
}

// Delete removes the profile, the language preference and all rate limit rows of the person.
func (s *GormStore) Delete(ctx context.Context, personID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("person_id = ?", personID).Delete(&profileRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("person_id = ?", personID).Delete(&languageRow{}).Error; err != nil {
			return err
		}
		return tx.Where("person_id = ?", personID).Delete(&rateLimitRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete profile %d: %w", personID, err)
	}
	return nil
}

func (s *GormStore) ListExcept(ctx context.Context, personID int64, excludeBlocked bool) ([]*profile.Profile, error) {
	q := s.db.WithContext(ctx).Where("person_id <> ?", personID)
	if excludeBlocked {
		q = q.Where("is_blocked = ?", false)
	}

	var rows []profileRow
	if err := q.Order("person_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return s.fromRows(rows), nil
}

func (s *GormStore) ListMissingEmbedding(ctx context.Context) ([]*profile.Profile, error) {
	var rows []profileRow
	err := s.db.WithContext(ctx).
		Where("embedding IS NULL OR length(embedding) = 0").
		Order("person_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list profiles without embedding: %w", err)
	}
	return s.fromRows(rows), nil
}

func (s *GormStore) SetEmbedding(ctx context.Context, personID int64, vector []float32, seen time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&profileRow{}).
		Where("person_id = ? AND last_updated = ?", personID, seen).
		UpdateColumn("embedding", profile.EncodeEmbedding(vector))
	if res.Error != nil {
		return false, fmt.Errorf("set embedding for %d: %w", personID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Block(ctx context.Context, personID int64) error {
	res := s.db.WithContext(ctx).
		Model(&profileRow{}).
		Where("person_id = ?", personID).
		UpdateColumn("is_blocked", true)
	if res.Error != nil {
		return fmt.Errorf("block profile %d: %w", personID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetLanguage(ctx context.Context, personID int64, code string) error {
	code = profile.NormalizeLanguage(code)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "person_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"code"}),
		}).Create(&languageRow{PersonID: personID, Code: code}).Error
		if err != nil {
			return err
		}
		return tx.Model(&profileRow{}).
			Where("person_id = ?", personID).
			UpdateColumn("language", code).Error
	})
	if err != nil {
		return fmt.Errorf("set language for %d: %w", personID, err)
	}
	return nil
}

func (s *GormStore) GetLanguage(ctx context.Context, personID int64) (string, error) {
	var row languageRow
	err := s.db.WithContext(ctx).Where("person_id = ?", personID).First(&row).Error
	if err == nil {
		return profile.NormalizeLanguage(row.Code), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("get language for %d: %w", personID, err)
	}

	p, err := s.Get(ctx, personID)
	if errors.Is(err, ErrNotFound) {
		return profile.DefaultLanguage, nil
	}
	if err != nil {
		return "", err
	}
	return profile.NormalizeLanguage(p.Language), nil
}

func (s *GormStore) Stats(ctx context.Context) (*Stats, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&profileRow{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}

	var rows []profileRow
	if err := s.db.WithContext(ctx).Select("person_id", "skills").Order("person_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	lists := make([][]string, 0, len(rows))
	for _, row := range rows {
		lists = append(lists, []string(row.Skills))
	}

	return &Stats{TotalUsers: int(total), TopSkill: TopSkill(lists)}, nil
}

func (s *GormStore) LastUsed(ctx context.Context, personID int64, action string) (time.Time, bool, error) {
	var row rateLimitRow
	err := s.db.WithContext(ctx).Where("person_id = ? AND action = ?", personID, action).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("get last use of %q for %d: %w", action, personID, err)
	}
	return row.LastUsedAt, true, nil
}

func (s *GormStore) SetLastUsed(ctx context.Context, personID int64, action string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "person_id"}, {Name: "action"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_used_at"}),
		}).
		Create(&rateLimitRow{PersonID: personID, Action: action, LastUsedAt: at.UTC()}).Error
	if err != nil {
		return fmt.Errorf("set last use of %q for %d: %w", action, personID, err)
	}
	return nil
}

func (s *GormStore) Forget(ctx context.Context, personID int64) error {
	if err := s.db.WithContext(ctx).Where("person_id = ?", personID).Delete(&rateLimitRow{}).Error; err != nil {
		return fmt.Errorf("forget rate limits for %d: %w", personID, err)
	}
	return nil
}

func toRow(p *profile.Profile) profileRow {
	lang := p.Language
	if lang == "" {
		lang = profile.DefaultLanguage
	}
	return profileRow{
		PersonID:    p.PersonID,
		DisplayName: p.DisplayName,
		Affiliation: p.Affiliation,
		Stage:       p.Stage,
		Skills:      datatypes.NewJSONSlice(nonNil(p.Skills)),
		Interests:   datatypes.NewJSONSlice(nonNil(p.Interests)),
		Goals:       p.Goals,
		Embedding:   profile.EncodeEmbedding(p.Embedding),
		IsBlocked:   p.IsBlocked,
		Language:    lang,
	}
}

func (s *GormStore) fromRows(rows []profileRow) []*profile.Profile {
	out := make([]*profile.Profile, 0, len(rows))
	for i := range rows {
		out = append(out, s.fromRow(&rows[i]))
	}
	return out
}

func (s *GormStore) fromRow(row *profileRow) *profile.Profile {
	embedding, err := profile.DecodeEmbedding(row.Embedding)
	if err != nil {
		s.logger.Warn("dropping malformed embedding",
			zap.Int64("person_id", row.PersonID),
			zap.Error(err),
		)
		embedding = nil
	}

	return &profile.Profile{
		PersonID:    row.PersonID,
		DisplayName: row.DisplayName,
		Fields: profile.Fields{
			Affiliation: row.Affiliation,
			Stage:       row.Stage,
			Skills:      nonNil([]string(row.Skills)),
			Interests:   nonNil([]string(row.Interests)),
			Goals:       row.Goals,
		},
		Embedding:   embedding,
		IsBlocked:   row.IsBlocked,
		Language:    profile.NormalizeLanguage(row.Language),
		LastUpdated: row.LastUpdated,
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

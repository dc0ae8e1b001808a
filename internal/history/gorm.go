package history

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string // Database file path.
	JournalMode string // "wal" by default.
}

// PostgresConfig holds PostgreSQL connection and pool settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int           // Default: 25.
	MaxIdleConns    int           // Default: 5.
	ConnMaxLifetime time.Duration // Default: 30m.
}

// sessionModel is the GORM row for a session. All GORM usage is confined to
// this package — domain types remain ORM-free.
type sessionModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID  string    `gorm:"index"`
	Prompt    string
	State     string
	Code      string
	CreatedAt time.Time `gorm:"index"`

	Attempts []attemptModel `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (sessionModel) TableName() string { return "sessions" }

type attemptModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID uuid.UUID `gorm:"type:uuid;index"`
	Seq       int
	Code      string
	Outcome   string
	Stdout    string
	Stderr    string
	ExitCode  int
	ElapsedMS int64
	CreatedAt time.Time
}

func (attemptModel) TableName() string { return "attempts" }

// GormStore implements Store backed by SQLite or PostgreSQL.
type GormStore struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// OpenSQLite creates a SQLite-backed Store. Uses modernc.org/sqlite (pure
// Go, no CGO) through the glebarez/sqlite GORM driver, with WAL enabled by
// default.
func OpenSQLite(cfg SQLiteConfig, slogger *slog.Logger) (*GormStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	slogger.Info("sqlite history store opened",
		slog.String("path", cfg.Path),
		slog.String("journal_mode", journalMode),
	)
	return &GormStore{db: db, driver: DriverSQLite, logger: slogger}, nil
}

// OpenPostgres creates a PostgreSQL-backed Store with a configured
// connection pool.
func OpenPostgres(cfg PostgresConfig, slogger *slog.Logger) (*GormStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 25))
	sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 5))
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	slogger.Info("postgres history store opened")
	return &GormStore{db: db, driver: DriverPostgres, logger: slogger}, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func gormConfig(slogger *slog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			slogAdapter{slogger},
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate runs GORM AutoMigrate to create/update tables.
func (s *GormStore) Migrate(_ context.Context) error {
	return s.db.AutoMigrate(&sessionModel{}, &attemptModel{})
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the storage driver name.
func (s *GormStore) Driver() string { return s.driver }

// SaveSession writes the session and all its attempts in one transaction.
func (s *GormStore) SaveSession(ctx context.Context, session *Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	model := sessionModel{
		ID:        session.ID,
		ClientID:  session.ClientID,
		Prompt:    session.Prompt,
		State:     session.State,
		Code:      session.Code,
		CreatedAt: session.CreatedAt,
	}
	for _, a := range session.Attempts {
		model.Attempts = append(model.Attempts, attemptModel{
			SessionID: session.ID,
			Seq:       a.Seq,
			Code:      a.Code,
			Outcome:   a.Outcome,
			Stdout:    a.Stdout,
			Stderr:    a.Stderr,
			ExitCode:  a.ExitCode,
			ElapsedMS: a.Elapsed.Milliseconds(),
			CreatedAt: session.CreatedAt,
		})
	}

	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession loads a session and its attempts, ordered by sequence.
func (s *GormStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var model sessionModel
	err := s.db.WithContext(ctx).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return toSession(&model), nil
}

// ListSessions returns the most recent sessions for a client, newest first.
// Attempt bodies are not loaded.
func (s *GormStore) ListSessions(ctx context.Context, clientID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []sessionModel
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, toSession(&models[i]))
	}
	return sessions, nil
}

func toSession(m *sessionModel) *Session {
	session := &Session{
		ID:        m.ID,
		ClientID:  m.ClientID,
		Prompt:    m.Prompt,
		State:     m.State,
		Code:      m.Code,
		CreatedAt: m.CreatedAt,
	}
	for _, a := range m.Attempts {
		session.Attempts = append(session.Attempts, Attempt{
			Seq:       a.Seq,
			Code:      a.Code,
			Outcome:   a.Outcome,
			Stdout:    a.Stdout,
			Stderr:    a.Stderr,
			ExitCode:  a.ExitCode,
			Elapsed:   time.Duration(a.ElapsedMS) * time.Millisecond,
			CreatedAt: a.CreatedAt,
		})
	}
	return session
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ Store = (*GormStore)(nil)

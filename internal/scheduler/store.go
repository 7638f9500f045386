package scheduler

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler/entities"
)

// Store wraps the GORM handle onto scheduler.sqlite, grounded on the
// teacher's internal/datastore.SQLiteStore.Open: create the containing
// directory, open with a quiet logger, enable the WAL pragmas, then
// AutoMigrate every table this package owns.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (creating if necessary) the scheduler database at
// path and migrates its schema.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating scheduler database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening scheduler database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&entities.SettingEntity{}, &entities.QuietTimeEntity{}, &entities.JobEntity{}); err != nil {
		return nil, fmt.Errorf("migrating scheduler schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemoryStore opens an in-memory SQLite database, for tests.
func OpenMemoryStore() (*Store, error) {
	return OpenStore(":memory:")
}

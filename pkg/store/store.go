// Package store persists drive parameters in a SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/glog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/robotalks/drivelink/pkg/comm"
)

// ParameterValue is the saved value of a parameter of a drive.
type ParameterValue struct {
	Drive     string `gorm:"primaryKey;size:64"`
	ParamID   uint8  `gorm:"primaryKey;autoIncrement:false"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM.
func (ParameterValue) TableName() string {
	return "parameter_values"
}

// Config holds database configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string
}

// Store saves and loads the writable parameters of registries.
type Store struct {
	db *gorm.DB
}

type glogWriter struct{}

func (glogWriter) Printf(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}

// Open opens or creates the database.
func Open(config Config) (*Store, error) {
	gormLog := logger.New(glogWriter{}, logger.Config{
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.AutoMigrate(&ParameterValue{}); err != nil {
		sqlDB.Close()
		return nil, err
	}
	glog.V(2).Infof("parameter store: %s", config.Path)
	return &Store{db: db}, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save writes the current value of every writable parameter.
func (s *Store) Save(drive string, reg *comm.Registry) error {
	now := time.Now()
	var values []ParameterValue
	for _, p := range reg.Parameters {
		if !p.Writable() {
			continue
		}
		v := make([]byte, p.Size())
		p.Value.Load(v)
		values = append(values, ParameterValue{Drive: drive, ParamID: p.ID, Value: v, UpdatedAt: now})
	}
	if len(values) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&values).Error
}

// Load restores saved values into writable parameters and returns how
// many were applied. Restored values are range checked and trigger
// OnUpdate. Saved values whose size no longer matches are skipped.
func (s *Store) Load(drive string, reg *comm.Registry) (int, error) {
	var values []ParameterValue
	if err := s.db.Where("drive = ?", drive).Find(&values).Error; err != nil {
		return 0, err
	}
	applied := 0
	for _, v := range values {
		p := reg.Parameter(v.ParamID)
		if p == nil || !p.Writable() {
			continue
		}
		if len(v.Value) != p.Size() {
			glog.Warningf("parameter 0x%02x: saved %d bytes, expect %d", v.ParamID, len(v.Value), p.Size())
			continue
		}
		p.Value.Store(v.Value)
		p.RangeCheck()
		if p.OnUpdate != nil {
			p.OnUpdate()
		}
		applied++
	}
	return applied, nil
}

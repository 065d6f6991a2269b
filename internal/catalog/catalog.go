// Package catalog is the read-mostly lookup of projects, case sets and cases.
//
// Every query is an explicit, ordered call; relations are never traversed lazily.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"apitask/internal/task/model"
	logx "apitask/pkg/logx"
)

// ErrProjectNotFound has the not_found kind, so callers surface it as a missing resource.
var ErrProjectNotFound = model.ErrProjectNotFound

// Config configures the catalog database.
type Config struct {
	DSN         string
	AutoMigrate bool
	Debug       bool
}

// Open connects to the catalog database.
func Open(cfg Config, log logx.Logger) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("catalog dsn is required")
	}
	gl := logger.Default.LogMode(logger.Silent)
	if cfg.Debug {
		gl = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("catalog open: %w", err)
	}
	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	if !log.IsZero() {
		log.Debug("catalog opened", logx.Bool("auto_migrate", cfg.AutoMigrate))
	}
	return db, nil
}

// Migrate creates the catalog tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Project{}, &CaseSet{}, &Case{}); err != nil {
		return fmt.Errorf("catalog migrate: %w", err)
	}
	return nil
}

// Repository answers the lookups the resolver needs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindProjectByName returns ErrProjectNotFound when no project has that name.
func (r *Repository) FindProjectByName(ctx context.Context, name string) (Project, error) {
	var p Project
	err := r.db.WithContext(ctx).Where("name = ?", name).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Project{}, fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}
	return p, err
}

// ListCaseSetsByProject returns a project's case sets by ascending num.
func (r *Repository) ListCaseSetsByProject(ctx context.Context, projectID int64) ([]CaseSet, error) {
	var sets []CaseSet
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("num asc").Order("id asc").
		Find(&sets).Error
	return sets, err
}

// ListCasesByCaseSet returns a case set's members by ascending num.
func (r *Repository) ListCasesByCaseSet(ctx context.Context, setID int64) ([]Case, error) {
	var cases []Case
	err := r.db.WithContext(ctx).
		Where("case_set_id = ?", setID).
		Order("num asc").Order("id asc").
		Find(&cases).Error
	return cases, err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

// ErrNotFound is returned by repository lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned for unique-constraint violations surfaced as a
// typed error rather than a raw driver error.
var ErrConflict = errors.New("store: conflict")

const websiteColumns = `id, name, base_url, status, config, default_cron, created_at, updated_at`

// WebsiteRepository persists crawl templates.
type WebsiteRepository struct {
	db *sqlx.DB
}

func NewWebsiteRepository(db *sqlx.DB) *WebsiteRepository {
	return &WebsiteRepository{db: db}
}

func (r *WebsiteRepository) Create(ctx context.Context, w *domain.Website) error {
	query := `INSERT INTO website (name, base_url, status, config, default_cron)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, w.Name, w.BaseURL, w.Status, w.Config, w.DefaultCron).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: website name %q already exists", ErrConflict, w.Name)
		}
		return fmt.Errorf("store: create website: %w", err)
	}
	return nil
}

func (r *WebsiteRepository) GetByID(ctx context.Context, id string) (*domain.Website, error) {
	var w domain.Website
	query := `SELECT ` + websiteColumns + ` FROM website WHERE id = $1`
	if err := r.db.GetContext(ctx, &w, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: website %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get website: %w", err)
	}
	return &w, nil
}

func (r *WebsiteRepository) GetByName(ctx context.Context, name string) (*domain.Website, error) {
	var w domain.Website
	query := `SELECT ` + websiteColumns + ` FROM website WHERE name = $1`
	if err := r.db.GetContext(ctx, &w, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: website %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("store: get website by name: %w", err)
	}
	return &w, nil
}

func (r *WebsiteRepository) List(ctx context.Context, limit, offset int) ([]*domain.Website, error) {
	var sites []*domain.Website
	query := `SELECT ` + websiteColumns + ` FROM website ORDER BY name LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &sites, query, limit, offset); err != nil {
		return nil, fmt.Errorf("store: list websites: %w", err)
	}
	if sites == nil {
		sites = []*domain.Website{}
	}
	return sites, nil
}

func (r *WebsiteRepository) Update(ctx context.Context, w *domain.Website) error {
	query := `UPDATE website
		SET name = $1, base_url = $2, status = $3, config = $4, default_cron = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, w.Name, w.BaseURL, w.Status, w.Config, w.DefaultCron, w.ID).Scan(&w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: website %s", ErrNotFound, w.ID)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: website name %q already exists", ErrConflict, w.Name)
		}
		return fmt.Errorf("store: update website: %w", err)
	}
	return nil
}

func (r *WebsiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM website WHERE id = $1`, id)
	return execRequireRows(result, err, fmt.Errorf("%w: website %s", ErrNotFound, id))
}

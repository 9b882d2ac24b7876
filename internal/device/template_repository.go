package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TemplateRepository persists configuration templates.
type TemplateRepository interface {
	// GetByID retrieves a template by its unique identifier.
	// Returns ErrTemplateNotFound if the template does not exist.
	GetByID(ctx context.Context, id string) (*Template, error)

	// ListByOrganization retrieves all templates for an organization,
	// ordered by priority descending then name ascending.
	ListByOrganization(ctx context.Context, orgID string) ([]Template, error)

	// ListMatching retrieves org templates whose scope matches the given
	// manufacturer and model. A template with an empty scope field matches
	// any value. Ordered by priority descending then name ascending.
	ListMatching(ctx context.Context, orgID, manufacturer, model string) ([]Template, error)

	// Create inserts a new template.
	// Returns ErrTemplateExists on an (organization, name) collision.
	Create(ctx context.Context, tpl *Template) error

	// Update modifies an existing template.
	// Returns ErrTemplateNotFound if the template does not exist.
	Update(ctx context.Context, tpl *Template) error

	// Delete removes a template by ID.
	// Returns ErrTemplateNotFound if the template does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteTemplateRepository implements TemplateRepository using SQLite.
type SQLiteTemplateRepository struct {
	db *sql.DB
}

// NewSQLiteTemplateRepository creates a new SQLite-backed template repository.
func NewSQLiteTemplateRepository(db *sql.DB) *SQLiteTemplateRepository {
	return &SQLiteTemplateRepository{db: db}
}

const templateColumns = `id, organization_id, name, manufacturer, model,
		priority, defaults, created_at, updated_at`

// GetByID retrieves a template by its unique identifier.
func (r *SQLiteTemplateRepository) GetByID(ctx context.Context, id string) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM device_templates WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("querying template by id: %w", err)
	}
	return tpl, nil
}

// ListByOrganization retrieves all templates for an organization.
func (r *SQLiteTemplateRepository) ListByOrganization(ctx context.Context, orgID string) ([]Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM device_templates
		WHERE organization_id = ?
		ORDER BY priority DESC, name ASC`

	return r.queryTemplates(ctx, query, orgID)
}

// ListMatching retrieves org templates whose scope matches manufacturer and model.
func (r *SQLiteTemplateRepository) ListMatching(ctx context.Context, orgID, manufacturer, model string) ([]Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM device_templates
		WHERE organization_id = ?
		  AND (manufacturer IS NULL OR manufacturer = ?)
		  AND (model IS NULL OR model = ?)
		ORDER BY priority DESC, name ASC`

	return r.queryTemplates(ctx, query, orgID, manufacturer, model)
}

// Create inserts a new template.
func (r *SQLiteTemplateRepository) Create(ctx context.Context, tpl *Template) error {
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}

	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}

	defaultsJSON, err := json.Marshal(tpl.Defaults)
	if err != nil {
		return fmt.Errorf("marshalling defaults: %w", err)
	}
	if tpl.Defaults == nil {
		defaultsJSON = []byte("{}")
	}

	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	query := `
		INSERT INTO device_templates (
			id, organization_id, name, manufacturer, model,
			priority, defaults, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		tpl.ID,
		tpl.OrganizationID,
		tpl.Name,
		nullableString(tpl.Manufacturer),
		nullableString(tpl.Model),
		tpl.Priority,
		string(defaultsJSON),
		tpl.CreatedAt.Format(time.RFC3339),
		tpl.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTemplateExists
		}
		return fmt.Errorf("inserting template: %w", err)
	}

	return nil
}

// Update modifies an existing template.
func (r *SQLiteTemplateRepository) Update(ctx context.Context, tpl *Template) error {
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}

	defaultsJSON, err := json.Marshal(tpl.Defaults)
	if err != nil {
		return fmt.Errorf("marshalling defaults: %w", err)
	}
	if tpl.Defaults == nil {
		defaultsJSON = []byte("{}")
	}

	tpl.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE device_templates SET
			name = ?, manufacturer = ?, model = ?,
			priority = ?, defaults = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		tpl.Name,
		nullableString(tpl.Manufacturer),
		nullableString(tpl.Model),
		tpl.Priority,
		string(defaultsJSON),
		tpl.UpdatedAt.Format(time.RFC3339),
		tpl.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTemplateExists
		}
		return fmt.Errorf("updating template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTemplateNotFound
	}

	return nil
}

// Delete removes a template by ID.
func (r *SQLiteTemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTemplateNotFound
	}

	return nil
}

// queryTemplates executes a query and returns a slice of templates.
func (r *SQLiteTemplateRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]Template, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		templates = append(templates, *tpl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating templates: %w", err)
	}

	return templates, nil
}

// scanTemplate scans a row or rows result into a Template.
func scanTemplate(scanner rowScanner) (*Template, error) {
	var t Template
	var manufacturer, model sql.NullString
	var defaultsJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Name,
		&manufacturer,
		&model,
		&t.Priority,
		&defaultsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if manufacturer.Valid {
		t.Manufacturer = &manufacturer.String
	}
	if model.Valid {
		t.Model = &model.String
	}

	if defaultsJSON != "" {
		if err := json.Unmarshal([]byte(defaultsJSON), &t.Defaults); err != nil {
			return nil, fmt.Errorf("unmarshalling defaults: %w", err)
		}
	}

	var parseErr error
	t.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	t.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &t, nil
}

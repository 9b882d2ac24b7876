package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Directory resolves the set of employees a device should hold.
type Directory interface {
	// ResolveDesiredSet returns the active employees selected by the scope,
	// with their active credentials attached. Inactive employees and
	// inactive credentials never appear in the result.
	// Returns ErrEmptyScope when the scope selects nothing.
	ResolveDesiredSet(ctx context.Context, scope Scope) ([]Employee, error)

	// GetEmployee returns a single active employee with credentials.
	// Returns ErrEmployeeNotFound if the employee does not exist or is inactive.
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

// SQLiteDirectory implements Directory against the employee tables.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a directory backed by the given connection.
func NewSQLiteDirectory(db *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{db: db}
}

const employeeColumns = `id, organization_id, department_id, branch_id, name, is_active`

// ResolveDesiredSet returns the active employees selected by the scope.
func (d *SQLiteDirectory) ResolveDesiredSet(ctx context.Context, scope Scope) ([]Employee, error) {
	if scope.IsEmpty() {
		return nil, ErrEmptyScope
	}
	if scope.CredentialType != "" && !validCredentialType(scope.CredentialType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCredentialType, scope.CredentialType)
	}

	query, args := buildScopeQuery(scope)

	employees, err := d.queryEmployees(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 {
		return employees, nil
	}

	if err := d.attachCredentials(ctx, employees, scope.CredentialType); err != nil {
		return nil, err
	}

	// A credential type filter drops employees without a matching active
	// credential, not just the credentials themselves.
	if scope.CredentialType != "" {
		filtered := employees[:0]
		for _, e := range employees {
			if len(e.Credentials) > 0 {
				filtered = append(filtered, e)
			}
		}
		employees = filtered
	}

	return employees, nil
}

// GetEmployee returns a single active employee with credentials.
func (d *SQLiteDirectory) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = ? AND is_active = 1`

	row := d.db.QueryRowContext(ctx, query, id)
	emp, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("querying employee: %w", err)
	}

	employees := []Employee{*emp}
	if err := d.attachCredentials(ctx, employees, ""); err != nil {
		return nil, err
	}
	return &employees[0], nil
}

// buildScopeQuery produces the SELECT for the first selector set on the scope.
func buildScopeQuery(scope Scope) (string, []any) {
	base := `SELECT ` + employeeColumns + ` FROM employees WHERE is_active = 1`

	switch {
	case len(scope.EmployeeIDs) > 0:
		placeholders := strings.Repeat("?, ", len(scope.EmployeeIDs))
		placeholders = placeholders[:len(placeholders)-2]
		args := make([]any, len(scope.EmployeeIDs))
		for i, id := range scope.EmployeeIDs {
			args[i] = id
		}
		return base + ` AND id IN (` + placeholders + `) ORDER BY name`, args
	case scope.DepartmentID != "":
		return base + ` AND department_id = ? ORDER BY name`, []any{scope.DepartmentID}
	case scope.BranchID != "":
		return base + ` AND branch_id = ? ORDER BY name`, []any{scope.BranchID}
	default:
		return base + ` AND organization_id = ? ORDER BY name`, []any{scope.OrganizationID}
	}
}

// attachCredentials loads active credentials for the given employees in one
// query, optionally restricted to a single type.
func (d *SQLiteDirectory) attachCredentials(ctx context.Context, employees []Employee, credType CredentialType) error {
	index := make(map[string]*Employee, len(employees))
	placeholders := make([]string, 0, len(employees))
	args := make([]any, 0, len(employees)+1)
	for i := range employees {
		index[employees[i].ID] = &employees[i]
		placeholders = append(placeholders, "?")
		args = append(args, employees[i].ID)
	}

	query := `
		SELECT id, employee_id, type, value, is_active
		FROM employee_credentials
		WHERE is_active = 1 AND employee_id IN (` + strings.Join(placeholders, ", ") + `)`
	if credType != "" {
		query += ` AND type = ?`
		args = append(args, string(credType))
	}
	query += ` ORDER BY employee_id, type`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Credential
		var credTypeStr string
		var isActive int
		if err := rows.Scan(&c.ID, &c.EmployeeID, &credTypeStr, &c.Value, &isActive); err != nil {
			return fmt.Errorf("scanning credential: %w", err)
		}
		c.Type = CredentialType(credTypeStr)
		c.Active = isActive != 0
		if emp, ok := index[c.EmployeeID]; ok {
			emp.Credentials = append(emp.Credentials, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating credentials: %w", err)
	}
	return nil
}

// queryEmployees executes a query and returns a slice of employees.
func (d *SQLiteDirectory) queryEmployees(ctx context.Context, query string, args ...any) ([]Employee, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying employees: %w", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning employee: %w", err)
		}
		employees = append(employees, *emp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating employees: %w", err)
	}

	return employees, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEmployee scans a row or rows result into an Employee.
func scanEmployee(scanner rowScanner) (*Employee, error) {
	var e Employee
	var department, branch sql.NullString
	var isActive int

	err := scanner.Scan(
		&e.ID,
		&e.OrganizationID,
		&department,
		&branch,
		&e.Name,
		&isActive,
	)
	if err != nil {
		return nil, err
	}

	e.Active = isActive != 0
	if department.Valid {
		e.DepartmentID = &department.String
	}
	if branch.Valid {
		e.BranchID = &branch.String
	}

	return &e, nil
}

func validCredentialType(t CredentialType) bool {
	for _, known := range AllCredentialTypes() {
		if t == known {
			return true
		}
	}
	return false
}

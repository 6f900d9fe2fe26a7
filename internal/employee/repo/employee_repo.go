package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
)

const uniqueViolation = "23505"

// EmployeeRepo stores employees in PostgreSQL. Nested documents live in JSONB columns.
type EmployeeRepo struct {
	db *sqlx.DB
}

func NewEmployeeRepo(db *sqlx.DB) *EmployeeRepo { return &EmployeeRepo{db: db} }

// employeeRow mirrors the employees table. JSONB columns travel as text; lib/pq
// would encode []byte as bytea.
type employeeRow struct {
	ID            string         `db:"id"`
	EmailAddress  string         `db:"email_address"`
	FullName      string         `db:"full_name"`
	SecretHash    string         `db:"secret_hash"`
	Employment    string         `db:"employment"`
	LastLogin     sql.NullTime   `db:"last_login"`
	LastLogout    sql.NullTime   `db:"last_logout"`
	IsActive      bool           `db:"is_active"`
	AvatarURL     sql.NullString `db:"avatar_url"`
	Relations     string         `db:"relations"`
	Conversations string         `db:"conversations"`
	Version       int64          `db:"version"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

const selectColumns = `id, email_address, full_name, secret_hash, employment, last_login, last_logout,
	is_active, avatar_url, relations, conversations, version, created_at, updated_at`

func (r *EmployeeRepo) Create(ctx context.Context, e *entity.Employee) error {
	row, err := fromEntity(e)
	if err != nil {
		return err
	}
	const q = `INSERT INTO employees (` + selectColumns + `)
		VALUES (:id, :email_address, :full_name, :secret_hash, :employment, :last_login, :last_logout,
			:is_active, :avatar_url, :relations, :conversations, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		return translateError(err)
	}
	return nil
}

func (r *EmployeeRepo) GetByID(ctx context.Context, id string) (*entity.Employee, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM employees WHERE id=$1`, id)
}

// GetByEmail is an exact, case-sensitive match.
func (r *EmployeeRepo) GetByEmail(ctx context.Context, email string) (*entity.Employee, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM employees WHERE email_address=$1`, email)
}

func (r *EmployeeRepo) getOne(ctx context.Context, q string, arg any) (*entity.Employee, error) {
	var row employeeRow
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity()
}

// Update replaces the row only if it still carries expectedVersion. The whole
// record is written in one statement so a cancelled call leaves either the old
// or the new state.
func (r *EmployeeRepo) Update(ctx context.Context, e *entity.Employee, expectedVersion int64) error {
	row, err := fromEntity(e)
	if err != nil {
		return err
	}
	const q = `UPDATE employees SET email_address=$2, full_name=$3, secret_hash=$4, employment=$5,
		last_login=$6, last_logout=$7, is_active=$8, avatar_url=$9, relations=$10, conversations=$11,
		version=$12, updated_at=$13
		WHERE id=$1 AND version=$14`
	res, err := r.db.ExecContext(ctx, q, row.ID, row.EmailAddress, row.FullName, row.SecretHash, row.Employment,
		row.LastLogin, row.LastLogout, row.IsActive, row.AvatarURL, row.Relations, row.Conversations,
		row.Version, row.UpdatedAt, expectedVersion)
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrConflict(ctx, e.ID)
	}
	return nil
}

func (r *EmployeeRepo) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := r.db.GetContext(ctx, &one, `SELECT 1 FROM employees WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

func (r *EmployeeRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *EmployeeRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, pqErr.Constraint)
	}
	return err
}

func fromEntity(e *entity.Employee) (employeeRow, error) {
	employment, err := json.Marshal(e.Employment)
	if err != nil {
		return employeeRow{}, fmt.Errorf("encode employment: %w", err)
	}
	relations, err := json.Marshal(e.Relations)
	if err != nil {
		return employeeRow{}, fmt.Errorf("encode relations: %w", err)
	}
	conversations := e.Conversations
	if conversations == nil {
		conversations = []entity.Conversation{}
	}
	convJSON, err := json.Marshal(conversations)
	if err != nil {
		return employeeRow{}, fmt.Errorf("encode conversations: %w", err)
	}

	row := employeeRow{
		ID:            e.ID,
		EmailAddress:  e.EmailAddress,
		FullName:      e.FullName,
		SecretHash:    e.Secret,
		Employment:    string(employment),
		IsActive:      e.IsActive,
		AvatarURL:     sql.NullString{String: e.AvatarURL, Valid: e.AvatarURL != ""},
		Relations:     string(relations),
		Conversations: string(convJSON),
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.LastLogin != nil {
		row.LastLogin = sql.NullTime{Time: *e.LastLogin, Valid: true}
	}
	if e.LastLogout != nil {
		row.LastLogout = sql.NullTime{Time: *e.LastLogout, Valid: true}
	}
	return row, nil
}

func (row employeeRow) toEntity() (*entity.Employee, error) {
	e := &entity.Employee{
		ID:           row.ID,
		EmailAddress: row.EmailAddress,
		FullName:     row.FullName,
		Secret:       row.SecretHash,
		IsActive:     row.IsActive,
		AvatarURL:    row.AvatarURL.String,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.LastLogin.Valid {
		t := row.LastLogin.Time
		e.LastLogin = &t
	}
	if row.LastLogout.Valid {
		t := row.LastLogout.Time
		e.LastLogout = &t
	}
	if row.Employment != "" {
		if err := json.Unmarshal([]byte(row.Employment), &e.Employment); err != nil {
			return nil, fmt.Errorf("decode employment: %w", err)
		}
	}
	if row.Relations != "" {
		if err := json.Unmarshal([]byte(row.Relations), &e.Relations); err != nil {
			return nil, fmt.Errorf("decode relations: %w", err)
		}
	}
	if row.Conversations != "" {
		if err := json.Unmarshal([]byte(row.Conversations), &e.Conversations); err != nil {
			return nil, fmt.Errorf("decode conversations: %w", err)
		}
	}
	return e, nil
}

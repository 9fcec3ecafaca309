package person

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/mfigueiredo/person-registry/app/observability/metrics"
	"github.com/mfigueiredo/person-registry/internal/api"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on active CPFs. It is the authoritative uniqueness check; the
// service-level lookup before insert is advisory only.
const uniqueViolation = "23505"

var _ PersonRepo = (*PostgresPersonRepo)(nil)

// PGXPool is the subset of pgxpool.Pool used by the repository. Declared as
// an interface so tests can substitute pgxmock.
type PGXPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PersonRepo defines the contract for person persistence.
type PersonRepo interface {
	// GetPersonByID retrieves an active person. Returns api.ErrNotFound when
	// the id is unknown or the record is soft-deleted.
	GetPersonByID(ctx context.Context, id int64) (*Person, error)
	// GetPersonByCPF retrieves an active person by normalized CPF.
	GetPersonByCPF(ctx context.Context, cpf string) (*Person, error)
	// ListPersons returns the page of active persons matching the filter.
	ListPersons(ctx context.Context, filter *Filter) ([]Person, error)
	// CreatePerson inserts a new record and fills in its assigned id and
	// audit timestamps. Returns api.ErrConflict on a CPF collision.
	CreatePerson(ctx context.Context, p *Person) error
	// UpdatePerson overwrites only the non-nil params on an active person.
	UpdatePerson(ctx context.Context, id int64, params *UpdateParams) error
	// SoftDeletePerson stamps deleted_at on an active person.
	SoftDeletePerson(ctx context.Context, id int64) error
}

type PostgresPersonRepo struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewPostgresPersonRepo(pgpool PGXPool, logger *slog.Logger) *PostgresPersonRepo {
	return &PostgresPersonRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

const personColumns = `id, name, gender, email, birth_date, nationality, place_of_birth, cpf, password_hash, created_at, updated_at`

// observeQuery records the query latency histogram; call deferred with the
// operation start time.
func observeQuery(ctx context.Context, operation string, start time.Time) {
	metrics.Get().DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("db.operation", operation)))
}

// recordQueryError marks the span failed and bumps the db error counter.
// Expected misses (no rows) are not counted here.
func recordQueryError(ctx context.Context, span trace.Span, operation string, err error) {
	span.RecordError(err)
	metrics.Get().DbQueryErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("db.operation", operation)))
}

func scanPerson(row pgx.Row) (*Person, error) {
	var p Person
	var birthDate time.Time
	err := row.Scan(&p.ID, &p.Name, &p.Gender, &p.Email, &birthDate,
		&p.Nationality, &p.PlaceOfBirth, &p.CPF, &p.PasswordHash,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.BirthDate = Date{birthDate}
	return &p, nil
}

func (r *PostgresPersonRepo) GetPersonByID(ctx context.Context, id int64) (*Person, error) {
	ctx, span := otel.Tracer("PersonRepo").Start(ctx, "GetPersonByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "persons"),
		attribute.Int64("person.id", id),
	))
	defer span.End()
	defer observeQuery(ctx, "SELECT", time.Now())

	query := fmt.Sprintf(`SELECT %s FROM persons WHERE id = $1 AND deleted_at IS NULL`, personColumns)
	p, err := scanPerson(r.pgpool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "person not found")
			return nil, api.ErrNotFound
		}
		recordQueryError(ctx, span, "SELECT", err)
		return nil, fmt.Errorf("get person by id: query failed: %w", err)
	}
	return p, nil
}

func (r *PostgresPersonRepo) GetPersonByCPF(ctx context.Context, cpf string) (*Person, error) {
	ctx, span := otel.Tracer("PersonRepo").Start(ctx, "GetPersonByCPF", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "persons"),
	))
	defer span.End()
	defer observeQuery(ctx, "SELECT", time.Now())

	query := fmt.Sprintf(`SELECT %s FROM persons WHERE cpf = $1 AND deleted_at IS NULL`, personColumns)
	p, err := scanPerson(r.pgpool.QueryRow(ctx, query, cpf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "person not found")
			return nil, api.ErrNotFound
		}
		recordQueryError(ctx, span, "SELECT", err)
		return nil, fmt.Errorf("get person by cpf: query failed: %w", err)
	}
	return p, nil
}

// ListPersons builds the WHERE clause dynamically from the supplied filters.
// Text filters are case-sensitive substring matches, the birth-date filter
// covers the whole calendar day, and results are ordered by id so pages stay
// stable under concurrent writes.
func (r *PostgresPersonRepo) ListPersons(ctx context.Context, filter *Filter) ([]Person, error) {
	ctx, span := otel.Tracer("PersonRepo").Start(ctx, "ListPersons", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "persons"),
	))
	defer span.End()
	defer observeQuery(ctx, "SELECT", time.Now())

	filter.Normalize()

	whereClauses := []string{"deleted_at IS NULL"}
	var args []interface{}
	argID := 1

	addContains := func(column, value string) {
		if value == "" {
			return
		}
		whereClauses = append(whereClauses, fmt.Sprintf("%s LIKE '%%' || $%d || '%%'", column, argID))
		args = append(args, value)
		argID++
	}

	addContains("name", filter.Name)
	addContains("gender", filter.Gender)
	addContains("email", filter.Email)
	addContains("nationality", filter.Nationality)
	addContains("place_of_birth", filter.PlaceOfBirth)
	addContains("cpf", filter.CPF)

	if filter.BirthDate != nil {
		day := time.Date(filter.BirthDate.Year(), filter.BirthDate.Month(), filter.BirthDate.Day(), 0, 0, 0, 0, time.UTC)
		whereClauses = append(whereClauses, fmt.Sprintf("birth_date >= $%d AND birth_date < $%d", argID, argID+1))
		args = append(args, day, day.AddDate(0, 0, 1))
		argID += 2
	}

	query := fmt.Sprintf(`SELECT %s FROM persons WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		personColumns, strings.Join(whereClauses, " AND "), argID, argID+1)
	args = append(args, filter.PageSize, filter.Offset())

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		recordQueryError(ctx, span, "SELECT", err)
		return nil, fmt.Errorf("list persons: query failed: %w", err)
	}
	defer rows.Close()

	persons := []Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			recordQueryError(ctx, span, "SELECT", err)
			return nil, fmt.Errorf("list persons: scan failed: %w", err)
		}
		persons = append(persons, *p)
	}
	if err := rows.Err(); err != nil {
		recordQueryError(ctx, span, "SELECT", err)
		return nil, fmt.Errorf("list persons: rows iteration failed: %w", err)
	}

	span.SetAttributes(attribute.Int("result.count", len(persons)))
	return persons, nil
}

func (r *PostgresPersonRepo) CreatePerson(ctx context.Context, p *Person) error {
	ctx, span := otel.Tracer("PersonRepo").Start(ctx, "CreatePerson", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "persons"),
	))
	defer span.End()
	defer observeQuery(ctx, "INSERT", time.Now())

	now := time.Now()
	query := `
		INSERT INTO persons (name, gender, email, birth_date, nationality, place_of_birth, cpf, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	err := r.pgpool.QueryRow(ctx, query,
		p.Name, p.Gender, p.Email, p.BirthDate.Time, p.Nationality,
		p.PlaceOfBirth, p.CPF, p.PasswordHash, now, now).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			span.SetStatus(codes.Ok, "cpf already in use")
			return fmt.Errorf("cpf already in use: %w", api.ErrConflict)
		}
		recordQueryError(ctx, span, "INSERT", err)
		return fmt.Errorf("create person: insert failed: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// UpdatePerson writes only the supplied fields, always bumping updated_at.
func (r *PostgresPersonRepo) UpdatePerson(ctx context.Context, id int64, params *UpdateParams) error {
	ctx, span := otel.Tracer("PersonRepo").Start(ctx, "UpdatePerson", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "persons"),
		attribute.Int64("person.id", id),
	))
	defer span.End()
	defer observeQuery(ctx, "UPDATE", time.Now())

	l := r.logger.With(slog.String("method", "UpdatePerson"), slog.Int64("personID", id))

	var setClauses []string
	var args []interface{}
	argID := 1

	addSet := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argID))
		args = append(args, value)
		argID++
		span.SetAttributes(attribute.Bool("update."+column, true))
	}

	if params.Name != nil {
		addSet("name", *params.Name)
	}
	if params.Gender != nil {
		addSet("gender", *params.Gender)
	}
	if params.Email != nil {
		addSet("email", *params.Email)
	}
	if params.BirthDate != nil {
		addSet("birth_date", *params.BirthDate)
	}
	if params.Nationality != nil {
		addSet("nationality", *params.Nationality)
	}
	if params.PlaceOfBirth != nil {
		addSet("place_of_birth", *params.PlaceOfBirth)
	}
	if params.CPF != nil {
		addSet("cpf", *params.CPF)
	}

	if len(setClauses) == 0 {
		l.WarnContext(ctx, "UpdatePerson called with no fields to update")
		span.SetStatus(codes.Ok, "No update fields provided")
		return nil
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE persons SET %s WHERE id = $%d AND deleted_at IS NULL",
		strings.Join(setClauses, ", "), argID)

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("cpf already in use: %w", api.ErrConflict)
		}
		recordQueryError(ctx, span, "UPDATE", err)
		return fmt.Errorf("update person: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

// SoftDeletePerson marks the record deleted; the row stays in storage and is
// excluded from every read from then on.
func (r *PostgresPersonRepo) SoftDeletePerson(ctx context.Context, id int64) error {
	ctx, span := otel.Tracer("PersonRepo").Start(ctx, "SoftDeletePerson", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "persons"),
		attribute.Int64("person.id", id),
	))
	defer span.End()
	defer observeQuery(ctx, "UPDATE", time.Now())

	now := time.Now()
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE persons SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		now, id)
	if err != nil {
		recordQueryError(ctx, span, "UPDATE", err)
		return fmt.Errorf("soft delete person: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

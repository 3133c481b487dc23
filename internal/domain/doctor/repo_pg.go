package doctor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/scheduler/internal/platform/db"
)

const emailConstraint = "doctors_email_key"

type repoPG struct{ pool db.Pool }

func NewRepo(pool db.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const doctorCols = `id, name, specialty, email, phone, password_hash, available_times, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone, &d.PasswordHash,
		&d.AvailableTimes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if d.AvailableTimes == nil {
		d.AvailableTimes = []string{}
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (name, specialty, email, phone, password_hash, available_times)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		d.Name, d.Specialty, d.Email, d.Phone, d.PasswordHash, d.AvailableTimes,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE email = $1`, email))
}

func (r *repoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET name = $2, specialty = $3, email = $4, phone = $5,
			password_hash = $6, available_times = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.Specialty, d.Email, d.Phone, d.PasswordHash, d.AvailableTimes,
	).Scan(&d.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err, emailConstraint):
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List pages through doctors matching q, ordered by name. Slot labels are
// stored canonical, so comparing the start part as text orders by time.
func (r *repoPG) List(ctx context.Context, q Query, limit, offset int) ([]*Doctor, int, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Name != "" {
		add("name ILIKE $%d", db.ContainsPattern(q.Name))
	}
	if q.Specialty != "" {
		add("LOWER(specialty) = LOWER($%d)", q.Specialty)
	}
	switch q.Period {
	case PeriodAM:
		add("EXISTS (SELECT 1 FROM unnest(available_times) AS t WHERE split_part(t, '-', 1) < $%d)", Noon)
	case PeriodPM:
		add("EXISTS (SELECT 1 FROM unnest(available_times) AS t WHERE split_part(t, '-', 1) >= $%d)", Noon)
	}

	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM doctors%s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		doctorCols, filter, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

package circle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecircle/carecircle/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type circleRepoPG struct{ pool *pgxpool.Pool }

func NewCircleRepoPG(pool *pgxpool.Pool) CircleRepository {
	return &circleRepoPG{pool: pool}
}

func (r *circleRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *circleRepoPG) Create(ctx context.Context, c *Circle) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_circle (id, display_name)
		VALUES ($1, $2)`,
		c.ID, c.DisplayName)
	return err
}

func (r *circleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Circle, error) {
	var c Circle
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, display_name, created_at, updated_at
		FROM patient_circle WHERE id = $1`, id).
		Scan(&c.ID, &c.DisplayName, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *circleRepoPG) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_circle SET display_name = $2, updated_at = NOW()
		WHERE id = $1`, id, displayName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *circleRepoPG) AddMember(ctx context.Context, m *Member) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO circle_member (id, patient_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.ID, m.PatientID, m.UserID, string(m.Role))
	return err
}

func (r *circleRepoPG) RemoveMember(ctx context.Context, patientID uuid.UUID, userID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM circle_member WHERE patient_id = $1 AND user_id = $2`,
		patientID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *circleRepoPG) GetMember(ctx context.Context, patientID uuid.UUID, userID string) (*Member, error) {
	var m Member
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, user_id, role, created_at
		FROM circle_member WHERE patient_id = $1 AND user_id = $2`,
		patientID, userID).
		Scan(&m.ID, &m.PatientID, &m.UserID, &m.Role, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *circleRepoPG) ListMembers(ctx context.Context, patientID uuid.UUID) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, user_id, role, created_at
		FROM circle_member WHERE patient_id = $1 ORDER BY created_at`,
		patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.PatientID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (r *circleRepoPG) CountControllers(ctx context.Context, patientID uuid.UUID) (int, error) {
	roles := make([]string, 0, len(controllerRoles))
	for role := range controllerRoles {
		roles = append(roles, string(role))
	}

	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM circle_member
		WHERE patient_id = $1 AND role = ANY($2)`,
		patientID, roles).Scan(&count)
	return count, err
}

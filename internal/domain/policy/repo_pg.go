package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecircle/carecircle/internal/domain/circle"
	"github.com/carecircle/carecircle/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type policyRepoPG struct{ pool *pgxpool.Pool }

func NewPolicyRepoPG(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepoPG{pool: pool}
}

func (r *policyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *policyRepoPG) UpsertRoleDefault(ctx context.Context, d *RoleDefault) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO role_default (patient_id, role, feature_key, allowed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, role, feature_key)
		DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = NOW()`,
		d.PatientID, string(d.Role), d.FeatureKey, d.Allowed)
	return err
}

func (r *policyRepoPG) GetRoleDefault(ctx context.Context, patientID uuid.UUID, role circle.Role, featureKey string) (*RoleDefault, error) {
	var d RoleDefault
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, role, feature_key, allowed, updated_at
		FROM role_default
		WHERE patient_id = $1 AND role = $2 AND feature_key = $3`,
		patientID, string(role), featureKey).
		Scan(&d.PatientID, &d.Role, &d.FeatureKey, &d.Allowed, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *policyRepoPG) ListRoleDefaults(ctx context.Context, patientID uuid.UUID, role circle.Role) ([]*RoleDefault, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, role, feature_key, allowed, updated_at
		FROM role_default
		WHERE patient_id = $1 AND role = $2`,
		patientID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defaults []*RoleDefault
	for rows.Next() {
		var d RoleDefault
		if err := rows.Scan(&d.PatientID, &d.Role, &d.FeatureKey, &d.Allowed, &d.UpdatedAt); err != nil {
			return nil, err
		}
		defaults = append(defaults, &d)
	}
	return defaults, rows.Err()
}

func (r *policyRepoPG) UpsertMemberOverride(ctx context.Context, o *MemberOverride) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO member_override (patient_id, user_id, feature_key, allowed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, user_id, feature_key)
		DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = NOW()`,
		o.PatientID, o.UserID, o.FeatureKey, o.Allowed)
	return err
}

func (r *policyRepoPG) DeleteMemberOverride(ctx context.Context, patientID uuid.UUID, userID, featureKey string) error {
	// Deleting an absent override is a no-op, not an error.
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM member_override
		WHERE patient_id = $1 AND user_id = $2 AND feature_key = $3`,
		patientID, userID, featureKey)
	return err
}

func (r *policyRepoPG) GetMemberOverride(ctx context.Context, patientID uuid.UUID, userID, featureKey string) (*MemberOverride, error) {
	var o MemberOverride
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, user_id, feature_key, allowed, updated_at
		FROM member_override
		WHERE patient_id = $1 AND user_id = $2 AND feature_key = $3`,
		patientID, userID, featureKey).
		Scan(&o.PatientID, &o.UserID, &o.FeatureKey, &o.Allowed, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *policyRepoPG) ListMemberOverrides(ctx context.Context, patientID uuid.UUID, userID string) ([]*MemberOverride, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, user_id, feature_key, allowed, updated_at
		FROM member_override
		WHERE patient_id = $1 AND user_id = $2`,
		patientID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []*MemberOverride
	for rows.Next() {
		var o MemberOverride
		if err := rows.Scan(&o.PatientID, &o.UserID, &o.FeatureKey, &o.Allowed, &o.UpdatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, &o)
	}
	return overrides, rows.Err()
}

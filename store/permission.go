package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/caio-sobreiro/dicomarchive/model"
)

// Grant allows role to perform action on a study. Granting twice is a no-op.
func (s *Store) Grant(ctx context.Context, studyIUID, role, action string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO study_permission (study_iuid, role, action)
		VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, studyIUID, role, action)
	if err != nil {
		return fmt.Errorf("grant %s %s on %s: %w", role, action, studyIUID, err)
	}
	return nil
}

// Revoke removes a grant. It reports whether a grant existed.
func (s *Store) Revoke(ctx context.Context, studyIUID, role, action string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM study_permission
		WHERE study_iuid = ? AND role = ? AND action = ?`, studyIUID, role, action)
	if err != nil {
		return false, fmt.Errorf("revoke %s %s on %s: %w", role, action, studyIUID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Check reports whether any of roles may perform action on the study.
func (s *Store) Check(ctx context.Context, studyIUID string, roles []string, action string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM study_permission
		WHERE study_iuid = ? AND action = ? AND role IN (?)`, studyIUID, action, roles)
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return n > 0, nil
}

// Permissions lists the grants of a study.
func (s *Store) Permissions(ctx context.Context, studyIUID string) ([]model.StudyPermission, error) {
	var perms []model.StudyPermission
	err := s.db.SelectContext(ctx, &perms, `SELECT study_iuid, role, action FROM study_permission
		WHERE study_iuid = ? ORDER BY role, action`, studyIUID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

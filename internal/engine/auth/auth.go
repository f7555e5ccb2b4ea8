package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates the actor's project role is too weak for the
// attempted operation.
type ForbiddenError struct {
	Role string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s or stronger required", e.Role)
}

// roleRank orders project roles; higher grants more.
var roleRank = map[string]int{
	"viewer":  1,
	"analyst": 2,
	"manager": 3,
	"owner":   4,
}

// Service provides project membership checks backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) MemberRole(ctx context.Context, tx *sql.Tx, projectID, actorID string) (string, error) {
	row := tx.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND actor_id=? LIMIT 1`,
		projectID, actorID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// RequireRole fails with ForbiddenError unless the actor holds minRole or
// stronger on the project.
func (s Service) RequireRole(ctx context.Context, tx *sql.Tx, projectID, actorID, minRole string) error {
	role, err := s.MemberRole(ctx, tx, projectID, actorID)
	if err != nil {
		return err
	}
	if roleRank[role] < roleRank[minRole] {
		return ForbiddenError{Role: minRole}
	}
	return nil
}

// Stronger reports whether role a grants at least role b.
func Stronger(a, b string) bool {
	return roleRank[a] >= roleRank[b]
}

package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsmith/metering/pkg/pg"
)

// PgDirectory reads organization and team membership from the identity
// tables. Missing rows resolve to a bare user context rather than an
// error: a user without an organization is still billable.
type PgDirectory struct {
	db *pgxpool.Pool
}

// NewPgDirectory returns a Directory backed by db.
func NewPgDirectory(db *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{db: db}
}

// Resolve implements Directory. Team attribution uses the user's oldest
// membership; users on several teams are charged to the first one they
// joined.
func (d *PgDirectory) Resolve(ctx context.Context, userID uuid.UUID) (Context, error) {
	bc := Context{UserID: userID}

	var orgID uuid.UUID
	err := d.db.QueryRow(ctx,
		`SELECT organization_id FROM user_profiles WHERE user_id = $1 AND organization_id IS NOT NULL`,
		userID,
	).Scan(&orgID)
	switch {
	case err == nil:
		bc.OrganizationID = &orgID
	case !pg.IsNotFound(err):
		return bc, err
	}

	var teamID uuid.UUID
	err = d.db.QueryRow(ctx,
		`SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY created_at ASC LIMIT 1`,
		userID,
	).Scan(&teamID)
	switch {
	case err == nil:
		bc.TeamID = &teamID
	case !pg.IsNotFound(err):
		return bc, err
	}

	return bc, nil
}

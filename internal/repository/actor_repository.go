package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// ActorRepo mirrors identity-provider principals into the actors table.
type ActorRepo struct{ DB *sql.DB }

func NewActorRepo(db *sql.DB) *ActorRepo { return &ActorRepo{DB: db} }

// GetActor fetches an actor by id.
func (r *ActorRepo) GetActor(ctx context.Context, id uint64) (model.Actor, error) {
	var a model.Actor
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,role,created_at FROM actors WHERE id=? LIMIT 1",
		id).Scan(&a.ID, &a.Email, &a.Role, &a.CreatedAt)
	if err != nil {
		return model.Actor{}, notFound(err, "get actor")
	}
	return a, nil
}

// UpsertActor inserts the actor or refreshes email and role from the
// latest claims.
func (r *ActorRepo) UpsertActor(ctx context.Context, a model.Actor) error {
	email := strings.ToLower(strings.TrimSpace(a.Email))
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO actors (id, email, role) VALUES (?,?,?) ON DUPLICATE KEY UPDATE email=VALUES(email), role=VALUES(role)",
		a.ID, email, string(a.Role))
	return errors.Wrap(err, "upsert actor")
}

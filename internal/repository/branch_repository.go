package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlasedu/academy-api/internal/models"
)

// BranchRepository handles persistence of branches.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository constructs the repository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// List returns all branches ordered by name.
func (r *BranchRepository) List(ctx context.Context) ([]models.Branch, error) {
	const query = `SELECT id, name, created_at, updated_at FROM branches ORDER BY name ASC`
	var branches []models.Branch
	if err := r.db.SelectContext(ctx, &branches, query); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// FindByID returns a branch by its ID.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	const query = `SELECT id, name, created_at, updated_at FROM branches WHERE id = $1`
	var branch models.Branch
	if err := r.db.GetContext(ctx, &branch, query, id); err != nil {
		return nil, err
	}
	return &branch, nil
}

// Exists reports whether the branch exists.
func (r *BranchRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM branches WHERE id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check branch: %w", err)
	}
	return true, nil
}

// NameExists checks whether another branch already uses the name.
func (r *BranchRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT 1 FROM branches WHERE LOWER(name) = LOWER($1)`
	args := []interface{}{name}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += ` LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check branch name: %w", err)
	}
	return true, nil
}

// Create persists a new branch.
func (r *BranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	branch.CreatedAt = now
	branch.UpdatedAt = now
	const query = `INSERT INTO branches (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// Update persists branch field changes.
func (r *BranchRepository) Update(ctx context.Context, branch *models.Branch) error {
	branch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE branches SET name = :name, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	return nil
}

// Delete removes a branch.
func (r *BranchRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM branches WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AnatolyKozmin/Shend/internal/models"
)

const interviewerColumns = `id, external_key, full_name, tags, telegram_id, active, created_at, updated_at`

// InterviewerRepository reads the interviewer roster.
type InterviewerRepository struct {
	db *sqlx.DB
}

// NewInterviewerRepository constructs the repository.
func NewInterviewerRepository(db *sqlx.DB) *InterviewerRepository {
	return &InterviewerRepository{db: db}
}

// ListByKeys returns active interviewers whose correlation keys are in keys.
func (r *InterviewerRepository) ListByKeys(ctx context.Context, keys []string) ([]models.Interviewer, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := `SELECT ` + interviewerColumns + ` FROM interviewers WHERE active AND external_key = ANY($1) ORDER BY external_key`
	var items []models.Interviewer
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("list interviewers by keys: %w", err)
	}
	return items, nil
}

// FindByID returns an interviewer regardless of the active flag so
// historical bookings still resolve.
func (r *InterviewerRepository) FindByID(ctx context.Context, id string) (*models.Interviewer, error) {
	query := `SELECT ` + interviewerColumns + ` FROM interviewers WHERE id = $1`
	var item models.Interviewer
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, fmt.Errorf("get interviewer: %w", err)
	}
	return &item, nil
}

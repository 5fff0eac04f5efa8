package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/sage/internal/model"
)

// PostgresIntakeRepo はPostgreSQLを使用したインテークリポジトリ。
type PostgresIntakeRepo struct {
	db *sql.DB
}

// NewPostgresIntakeRepo はPostgresIntakeRepoを生成する。
func NewPostgresIntakeRepo(db *sql.DB) *PostgresIntakeRepo {
	return &PostgresIntakeRepo{db: db}
}

// CreateAndCompleteSession はインテークの保存とセッションの完了を
// 同一トランザクションで行う。完了済みセッションにインテークが
// 存在しない状態を作らないための境界。
func (r *PostgresIntakeRepo) CreateAndCompleteSession(ctx context.Context, intake *model.Intake) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO intake_results
		 (id, user_id, chat_session_id, primary_concern, contextual_background,
		  emotional_intensity, life_impact_areas, support_goals, availability,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		intake.ID, intake.UserID, intake.ChatSessionID,
		intake.PrimaryConcern, intake.ContextualBackground,
		intake.EmotionalIntensity, pq.Array(intake.LifeImpactAreas),
		intake.SupportGoals, intake.Availability,
		intake.CreatedAt, intake.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert intake: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET completed = TRUE, updated_at = now() WHERE id = $1`,
		intake.ChatSessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark chat session completed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("chat session not found: %s", intake.ChatSessionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SetGroup はインテークに割り当て先グループを記録する。
func (r *PostgresIntakeRepo) SetGroup(ctx context.Context, intakeID, groupID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE intake_results SET group_id = $1, updated_at = now() WHERE id = $2`,
		groupID, intakeID,
	)
	if err != nil {
		return fmt.Errorf("failed to set intake group: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("intake not found: %s", intakeID)
	}
	return nil
}

// FindLatestByUserID はユーザーの最新のインテークを取得する。見つからない場合はnilを返す。
func (r *PostgresIntakeRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.Intake, error) {
	return r.findOne(ctx,
		`SELECT id, user_id, chat_session_id, primary_concern, contextual_background,
		        emotional_intensity, life_impact_areas, support_goals, availability,
		        group_id, created_at, updated_at
		 FROM intake_results
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userID,
	)
}

// FindByChatSessionID はセッションに紐づくインテークを取得する。見つからない場合はnilを返す。
func (r *PostgresIntakeRepo) FindByChatSessionID(ctx context.Context, sessionID string) (*model.Intake, error) {
	return r.findOne(ctx,
		`SELECT id, user_id, chat_session_id, primary_concern, contextual_background,
		        emotional_intensity, life_impact_areas, support_goals, availability,
		        group_id, created_at, updated_at
		 FROM intake_results
		 WHERE chat_session_id = $1
		 LIMIT 1`,
		sessionID,
	)
}

func (r *PostgresIntakeRepo) findOne(ctx context.Context, query string, arg interface{}) (*model.Intake, error) {
	intake := &model.Intake{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&intake.ID, &intake.UserID, &intake.ChatSessionID,
		&intake.PrimaryConcern, &intake.ContextualBackground,
		&intake.EmotionalIntensity, pq.Array(&intake.LifeImpactAreas),
		&intake.SupportGoals, &intake.Availability,
		&intake.GroupID, &intake.CreatedAt, &intake.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find intake: %w", err)
	}

	return intake, nil
}

// compile-time interface check
var _ IntakeRepository = (*PostgresIntakeRepo)(nil)

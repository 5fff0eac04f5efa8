package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sage/internal/model"
)

// PostgresChatSessionRepo はPostgreSQLを使用したチャットセッションリポジトリ。
type PostgresChatSessionRepo struct {
	db *sql.DB
}

// NewPostgresChatSessionRepo はPostgresChatSessionRepoを生成する。
func NewPostgresChatSessionRepo(db *sql.DB) *PostgresChatSessionRepo {
	return &PostgresChatSessionRepo{db: db}
}

// FindLatestByUserID はユーザーの最新のチャットセッションを取得する。
// 完了状態は問わない。見つからない場合はnilを返す。
func (r *PostgresChatSessionRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.ChatSession, error) {
	session := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, completed, created_at, updated_at
		 FROM chat_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&session.ID, &session.UserID, &session.Completed, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest chat session: %w", err)
	}

	return session, nil
}

// FindLatestCompletedByUserID はユーザーの最新の完了済みセッションを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresChatSessionRepo) FindLatestCompletedByUserID(ctx context.Context, userID string) (*model.ChatSession, error) {
	session := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, completed, created_at, updated_at
		 FROM chat_sessions
		 WHERE user_id = $1 AND completed = TRUE
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&session.ID, &session.UserID, &session.Completed, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest completed chat session: %w", err)
	}

	return session, nil
}

// Create はチャットセッションを作成する。
func (r *PostgresChatSessionRepo) Create(ctx context.Context, session *model.ChatSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, session.Completed, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

// MarkCompleted はセッションを完了状態にする。
func (r *PostgresChatSessionRepo) MarkCompleted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET completed = TRUE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark chat session completed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("chat session not found: %s", id)
	}
	return nil
}

// ResetCompleted はセッションを未完了に戻し、関連するターン・インテーク・
// アクティブなメンバーシップを同一トランザクションで消去する。
func (r *PostgresChatSessionRepo) ResetCompleted(ctx context.Context, sessionID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// このセッションの割り当てに紐づくアクティブなメンバーシップを脱退させる
	_, err = tx.ExecContext(ctx,
		`UPDATE group_members SET status = $1
		 WHERE user_id = $2
		   AND status = $3
		   AND group_id IN (
		       SELECT group_id FROM intake_results
		       WHERE chat_session_id = $4 AND group_id IS NOT NULL
		   )`,
		model.MembershipStatusWithdrawn, userID, model.MembershipStatusActive, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to withdraw membership: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM intake_results WHERE chat_session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete intake: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM chat_turns WHERE chat_session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chat turns: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET completed = FALSE, updated_at = now() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset chat session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("chat session not found: %s", sessionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ ChatSessionRepository = (*PostgresChatSessionRepo)(nil)

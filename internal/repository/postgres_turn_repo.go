package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sage/internal/model"
)

// PostgresTurnRepo はPostgreSQLを使用した会話ターンリポジトリ。
type PostgresTurnRepo struct {
	db *sql.DB
}

// NewPostgresTurnRepo はPostgresTurnRepoを生成する。
func NewPostgresTurnRepo(db *sql.DB) *PostgresTurnRepo {
	return &PostgresTurnRepo{db: db}
}

// ListBySessionID はセッションの全ターンをcreated_at昇順で取得する。
func (r *PostgresTurnRepo) ListBySessionID(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_session_id, role, content, created_at
		 FROM chat_turns
		 WHERE chat_session_id = $1
		 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat turns: %w", err)
	}
	defer rows.Close()

	turns := []model.ChatTurn{}
	for rows.Next() {
		var t model.ChatTurn
		if err := rows.Scan(&t.ID, &t.ChatSessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat turns: %w", err)
	}

	return turns, nil
}

// CreatePair はユーザー発言とアシスタント応答を同一トランザクションで記録する。
// 片方だけが残った会話は抽出の入力を歪めるため許容しない。
func (r *PostgresTurnRepo) CreatePair(ctx context.Context, userTurn, assistantTurn *model.ChatTurn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, turn := range []*model.ChatTurn{userTurn, assistantTurn} {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chat_turns (id, chat_session_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			turn.ID, turn.ChatSessionID, turn.Role, turn.Content, turn.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ TurnRepository = (*PostgresTurnRepo)(nil)

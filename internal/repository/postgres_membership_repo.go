package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/sage/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// PostgresMembershipRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// ReplaceActive は既存のアクティブなメンバーシップを脱退させ、
// 新しいアクティブなメンバーシップを同一トランザクションで作成する。
// 同一ユーザーへの同時割り当てが部分一意インデックスに衝突した場合は
// 一度だけやり直す。アクティブはいかなる経路でもちょうど1件に収束する。
func (r *PostgresMembershipRepo) ReplaceActive(ctx context.Context, membership *model.Membership) error {
	err := r.replaceActiveOnce(ctx, membership)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return r.replaceActiveOnce(ctx, membership)
	}
	return err
}

func (r *PostgresMembershipRepo) replaceActiveOnce(ctx context.Context, membership *model.Membership) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE group_members SET status = $1
		 WHERE user_id = $2 AND status = $3`,
		model.MembershipStatusWithdrawn, membership.UserID, model.MembershipStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to withdraw active membership: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (id, group_id, user_id, status, match_reason, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		membership.ID, membership.GroupID, membership.UserID,
		membership.Status, membership.MatchReason, membership.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindActiveByUserID はユーザーのアクティブなメンバーシップを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Membership, error) {
	m := &model.Membership{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, status, COALESCE(match_reason, ''), joined_at
		 FROM group_members
		 WHERE user_id = $1 AND status = $2
		 LIMIT 1`,
		userID, model.MembershipStatusActive,
	).Scan(&m.ID, &m.GroupID, &m.UserID, &m.Status, &m.MatchReason, &m.JoinedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active membership: %w", err)
	}

	return m, nil
}

// ListActiveByGroupID はグループのアクティブメンバー一覧をjoined_at昇順で取得する。
func (r *PostgresMembershipRepo) ListActiveByGroupID(ctx context.Context, groupID string) ([]model.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, user_id, status, COALESCE(match_reason, ''), joined_at
		 FROM group_members
		 WHERE group_id = $1 AND status = $2
		 ORDER BY joined_at ASC`,
		groupID, model.MembershipStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active memberships: %w", err)
	}
	defer rows.Close()

	members := []model.Membership{}
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Status, &m.MatchReason, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return members, nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sage/internal/model"
)

// PostgresGroupRepo はPostgreSQLを使用したグループカタログリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// EnsureDefaults は既定のグループカタログをfocusキーで冪等に作成する。
// 既存のグループは名前を含めて変更しない。
func (r *PostgresGroupRepo) EnsureDefaults(ctx context.Context, groups []model.Group) error {
	for _, g := range groups {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO groups (id, name, focus, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (focus) DO NOTHING`,
			g.ID, g.Name, g.Focus, g.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to ensure group %s: %w", g.Focus, err)
		}
	}
	return nil
}

// ListAll は全グループをname昇順で取得する。
func (r *PostgresGroupRepo) ListAll(ctx context.Context) ([]model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, focus, created_at FROM groups ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Focus, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	return r.findOne(ctx, `SELECT id, name, focus, created_at FROM groups WHERE id = $1`, id)
}

// FindByFocus はfocusキーでグループを検索する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByFocus(ctx context.Context, focus string) (*model.Group, error) {
	return r.findOne(ctx, `SELECT id, name, focus, created_at FROM groups WHERE focus = $1`, focus)
}

// FindFirst はカタログの先頭のグループを取得する。空の場合はnilを返す。
func (r *PostgresGroupRepo) FindFirst(ctx context.Context) (*model.Group, error) {
	g := &model.Group{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, focus, created_at FROM groups ORDER BY name ASC LIMIT 1`,
	).Scan(&g.ID, &g.Name, &g.Focus, &g.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find first group: %w", err)
	}

	return g, nil
}

// ListWithActiveCounts は全グループをアクティブメンバー数付きで取得する。
func (r *PostgresGroupRepo) ListWithActiveCounts(ctx context.Context) ([]GroupWithCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.focus, g.created_at,
		        COUNT(m.id) FILTER (WHERE m.status = 'active') AS active_members
		 FROM groups g
		 LEFT JOIN group_members m ON m.group_id = g.id
		 GROUP BY g.id, g.name, g.focus, g.created_at
		 ORDER BY g.name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups with counts: %w", err)
	}
	defer rows.Close()

	groups := []GroupWithCount{}
	for rows.Next() {
		var g GroupWithCount
		if err := rows.Scan(&g.ID, &g.Name, &g.Focus, &g.CreatedAt, &g.ActiveMemberCount); err != nil {
			return nil, fmt.Errorf("failed to scan group with count: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups with counts: %w", err)
	}

	return groups, nil
}

func (r *PostgresGroupRepo) findOne(ctx context.Context, query string, arg interface{}) (*model.Group, error) {
	g := &model.Group{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&g.ID, &g.Name, &g.Focus, &g.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group: %w", err)
	}

	return g, nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)

// Package matching はインテークからフォーカスグループへの割り当てを行う。
package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sage/internal/model"
)

// フォーカスグループの固定キー。
const (
	FocusAnxietyStress    = "anxiety_stress_management"
	FocusGriefLoss        = "grief_loss"
	FocusPostpartum       = "postpartum_parenting"
	FocusRelationship     = "relationship_interpersonal"
	FocusWorkplaceBurnout = "workplace_burnout"
	FocusGeneral          = "general"
)

// defaultCatalog は既定のグループカタログ。表示名とfocusキーの組。
var defaultCatalog = []struct {
	name  string
	focus string
}{
	{"Anxiety & Stress Management", FocusAnxietyStress},
	{"Grief & Loss Support", FocusGriefLoss},
	{"Postpartum & Parenting Stress", FocusPostpartum},
	{"Relationship & Interpersonal Challenges", FocusRelationship},
	{"Workplace Burnout & Career Transitions", FocusWorkplaceBurnout},
	{"General emotional support", FocusGeneral},
}

// DefaultGroups は既定カタログのGroup群を生成する。
// IDは新規生成されるが、挿入はfocusキーで冪等に行われるため
// 既存カタログと衝突しても重複は生まれない。
func DefaultGroups() []model.Group {
	now := time.Now()
	groups := make([]model.Group, 0, len(defaultCatalog))
	for _, c := range defaultCatalog {
		groups = append(groups, model.Group{
			ID:        uuid.NewString(),
			Name:      c.name,
			Focus:     c.focus,
			CreatedAt: now,
		})
	}
	return groups
}

package matching

import (
	"fmt"
	"strings"

	"github.com/hitoshi/sage/internal/extraction"
)

// fallbackRule はキーワード分類の1規則。先頭から順に評価し、最初の一致で確定する。
// 並び順そのものが優先順位のため、規則の追加・入れ替えは慎重に行うこと。
type fallbackRule struct {
	focus   string
	matches func(concern, text string) bool
}

// fallbackRules はキーワード分類の優先順位付き規則列。
// TODO: postpartumの規則はexhaustionの複合条件の境界が緩く、
// "exhaustion"+"child"のような組でも一致する。対象カテゴリの境界を
// 整理する際に見直す。
var fallbackRules = []fallbackRule{
	{FocusGriefLoss, func(concern, text string) bool {
		return strings.Contains(text, "grief") ||
			strings.Contains(text, "bereavement") ||
			strings.Contains(concern, "loss") ||
			strings.Contains(text, "mourn")
	}},
	{FocusPostpartum, func(concern, text string) bool {
		return strings.Contains(text, "postpartum") ||
			strings.Contains(text, "parenting") ||
			strings.Contains(text, "new parent") ||
			strings.Contains(text, "baby") ||
			(strings.Contains(text, "exhaustion") &&
				(strings.Contains(text, "parent") || strings.Contains(text, "child")))
	}},
	{FocusRelationship, func(concern, text string) bool {
		return strings.Contains(text, "relationship") ||
			strings.Contains(text, "communication") ||
			strings.Contains(text, "boundary") ||
			strings.Contains(text, "conflict") ||
			strings.Contains(text, "interpersonal")
	}},
	{FocusWorkplaceBurnout, func(concern, text string) bool {
		return strings.Contains(text, "burnout") ||
			strings.Contains(text, "career") ||
			strings.Contains(text, "professional") ||
			strings.Contains(text, "imposter") ||
			strings.Contains(text, "workplace") ||
			strings.Contains(text, "job")
	}},
	{FocusAnxietyStress, func(concern, text string) bool {
		return strings.Contains(text, "anxiety") ||
			strings.Contains(text, "anxious") ||
			strings.Contains(text, "stress") ||
			strings.Contains(text, "overwhelm") ||
			strings.Contains(text, "panic") ||
			strings.Contains(text, "racing")
	}},
}

// MatchFallback はキーワード分類でfocusキーとマッチ理由を決定する。
// どの規則にも一致しない場合はgeneralに落ちる。
func MatchFallback(profile extraction.Extraction) (string, string) {
	concern := strings.ToLower(deref(profile.PrimaryConcern))
	text := matchingText(profile)

	for _, rule := range fallbackRules {
		if rule.matches(concern, text) {
			if rule.focus == FocusAnxietyStress {
				return rule.focus, fmt.Sprintf("Primary concern: %s; emotional intensity %s; life impact: %s.",
					primaryLabel(profile), intensityLabel(profile), areasLabel(profile))
			}
			return rule.focus, fmt.Sprintf("Primary concern: %s; life impact: %s.",
				primaryLabel(profile), areasLabel(profile))
		}
	}

	return FocusGeneral, fmt.Sprintf("Primary concern: %s; life impact: %s.",
		primaryLabel(profile), areasLabel(profile))
}

// matchingText はキーワード照合用にインテークの内容を1つの小文字文字列にまとめる。
func matchingText(profile extraction.Extraction) string {
	parts := []string{
		deref(profile.PrimaryConcern),
		deref(profile.ContextualBackground),
		deref(profile.SupportGoals),
		strings.Join(profile.LifeImpactAreas, " "),
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func primaryLabel(profile extraction.Extraction) string {
	if p := deref(profile.PrimaryConcern); p != "" {
		return p
	}
	return "your concerns"
}

func intensityLabel(profile extraction.Extraction) string {
	if profile.EmotionalIntensity != nil {
		return fmt.Sprintf("%d", *profile.EmotionalIntensity)
	}
	return "N/A"
}

func areasLabel(profile extraction.Extraction) string {
	if len(profile.LifeImpactAreas) == 0 {
		return "general"
	}
	return strings.Join(profile.LifeImpactAreas, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

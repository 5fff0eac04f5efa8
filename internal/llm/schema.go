package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema は型TからJSONスキーマを生成する。
// 抽出・マッチングのプロンプトに埋め込み、期待する出力形状をモデルに明示する。
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	return m
}

// mustMarshalIndent はスキーマをプロンプト埋め込み用に整形する。
func mustMarshalIndent(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b)
}

// intakeSchemaDoc は抽出出力の期待形状。スキーマ生成専用で、
// 実際のデコードには型揺れに寛容なIntakeExtractionを使う。
type intakeSchemaDoc struct {
	PrimaryConcern       *string  `json:"primary_concern" jsonschema_description:"Main focus e.g. Anxiety, Stress, Grief / loss. Null if not stated."`
	ContextualBackground *string  `json:"contextual_background" jsonschema_description:"Brief context they shared (work, relationships, events). Null if not stated."`
	EmotionalIntensity   *int     `json:"emotional_intensity" jsonschema:"minimum=1,maximum=5" jsonschema_description:"How much it affects day-to-day, 1=a little to 5=a lot. Null if not stated."`
	LifeImpactAreas      []string `json:"life_impact_areas" jsonschema_description:"Affected life areas e.g. work, sleep, relationships. Empty array if not stated."`
	SupportGoals         *string  `json:"support_goals" jsonschema_description:"What they want from the group. Null if not stated."`
	Availability         *string  `json:"availability" jsonschema_description:"e.g. Weekday evenings, Weekends, Flexible. Null if not stated."`
}

// groupChoiceSchemaDoc はマッチング出力の期待形状。
type groupChoiceSchemaDoc struct {
	Focus       string `json:"focus" jsonschema_description:"The exact focus key of the chosen group. Must be one of the provided focus keys."`
	MatchReason string `json:"match_reason" jsonschema_description:"1-2 warm, clear sentences explaining why this group fits, addressed to the user."`
}

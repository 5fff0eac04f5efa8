package crisis

import (
	"fmt"
	"regexp"
	"strings"
)

// 自傷・希死念慮の表現パターン。大文字小文字を区別せず、単語境界で照合する。
// 空白の揺れ（kill myself / killmyself など）も許容する。
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsuicide\b`),
	regexp.MustCompile(`(?i)\bkill\s*(?:my)?self\b`),
	regexp.MustCompile(`(?i)\bend\s*my\s*life\b`),
	regexp.MustCompile(`(?i)\bself\s*harm\b`),
	regexp.MustCompile(`(?i)\bself-harm\b`),
	regexp.MustCompile(`(?i)\bwant\s*to\s*die\b`),
	regexp.MustCompile(`(?i)\bwanting\s*to\s*die\b`),
	regexp.MustCompile(`(?i)\bhurt\s*my\s*self\b`),
	regexp.MustCompile(`(?i)\bhurt\s*myself\b`),
	regexp.MustCompile(`(?i)\btake\s*my\s*life\b`),
}

// Detector は受信メッセージの危機表現を検査する。
// 検出時は固定の応答文を返し、推論サービスには一切問い合わせない。
type Detector struct {
	line string
}

// NewDetector は相談窓口の案内文を保持するDetectorを生成する。
func NewDetector(crisisLine string) *Detector {
	return &Detector{line: crisisLine}
}

// Check はメッセージに危機表現が含まれるかを判定する。
func (d *Detector) Check(message string) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// Response は危機検出時の固定応答文を返す。内容は設定の窓口案内のみに依存する。
func (d *Detector) Response() string {
	return fmt.Sprintf("Thank you for sharing. It's really important to talk to someone who can help. %s I'm not able to give advice in this situation.", d.line)
}

package security

import "testing"

func TestMessageSanitizer_Sanitize(t *testing.T) {
	s := NewMessageSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "I feel anxious about work", "I feel anxious about work"},
		{"strips script tag", `hello <script>alert("x")</script>world`, "helloworld"},
		{"strips formatting tags", "<b>bold</b> feelings", "bold feelings"},
		{"strips img", `look <img src="http://evil.test/x.png">here`, "look here"},
		{"trims whitespace", "   padded   ", "padded"},
		{"preserves ampersand", "stress & sleep", "stress & sleep"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して常に同一出力となることを検証（冪等性）
func TestMessageSanitizer_Idempotent(t *testing.T) {
	s := NewMessageSanitizer()
	input := `worried <script>x</script> about my baby & sleep`

	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize not idempotent: %q != %q", once, twice)
	}
}

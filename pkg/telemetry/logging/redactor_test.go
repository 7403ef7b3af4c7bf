package logging

import (
	"log/slog"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"openai key", "key is sk-proj1234567890", "key is sk-***"},
		{"gateway key", "sl-0123456789abcdef", "sl-***"},
		{"bearer", "Authorization: Bearer sk-proj1234567890", "Authorization: Bearer ***"},
		{"password", "password=hunter22", "password: ***"},
		{"short prefix untouched", "sk-abc", "sk-abc"},
		{"plain", "model gpt-4o remapped", "model gpt-4o remapped"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r := NewRedactor()
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"sensitive key", slog.String("backend_credential", "abcdefghijkl"), "abcd***"},
		{"sensitive short", slog.String("token", "abc"), "***"},
		{"sensitive non-string", slog.Int("secret", 42), "***"},
		{"pattern in value", slog.String("note", "uses sk-0123456789"), "uses sk-***"},
		{"ordinary", slog.String("policy", "RemapModel"), "RemapModel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactAttr(tt.attr).Value.String(); got != tt.want {
				t.Errorf("RedactAttr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactGroup(t *testing.T) {
	r := NewRedactor()
	a := r.RedactAttr(slog.Group("request", slog.String("authorization", "Bearer abcdefgh"), slog.String("model", "gpt-4o")))
	group := a.Value.Group()
	if len(group) != 2 {
		t.Fatalf("group size = %d", len(group))
	}
	if group[0].Value.String() != "Bear***" {
		t.Errorf("authorization = %q", group[0].Value.String())
	}
	if group[1].Value.String() != "gpt-4o" {
		t.Errorf("model = %q", group[1].Value.String())
	}
}

func TestRedactAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                    "",
		"short":               "***",
		"sl-0123456789abcdef": "sl-0***",
	}
	for in, want := range tests {
		if got := RedactAPIKey(in); got != want {
			t.Errorf("RedactAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

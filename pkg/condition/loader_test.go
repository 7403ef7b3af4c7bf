package condition

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLoader_RoundTrip(t *testing.T) {
	docs := map[string]string{
		"equals":                `{"type":"equals","left":{"type":"path","path":"request.payload.model"},"right":{"type":"static","value":"gpt-4"}}`,
		"not_equals":            `{"type":"not_equals","left":{"type":"path","path":"data.caller_team"},"right":{"type":"static","value":null}}`,
		"contains":              `{"type":"contains","left":{"type":"path","path":"request.payload.tags"},"right":{"type":"static","value":"beta"}}`,
		"less_than":             `{"type":"less_than","left":{"type":"path","path":"request.payload.max_tokens"},"right":{"type":"static","value":4096}}`,
		"less_than_or_equal":    `{"type":"less_than_or_equal","left":{"type":"static","value":1},"right":{"type":"static","value":2.5}}`,
		"greater_than":          `{"type":"greater_than","left":{"type":"path","path":"request.payload.temperature"},"right":{"type":"static","value":0.5}}`,
		"greater_than_or_equal": `{"type":"greater_than_or_equal","left":{"type":"static","value":"b"},"right":{"type":"static","value":"a"}}`,
		"regex_match":           `{"type":"regex_match","left":{"type":"path","path":"request.payload.model"},"right":{"type":"static","value":"^gpt-"}}`,
		"all":                   `{"type":"all","conditions":[{"type":"equals","left":{"type":"static","value":{"a":[1,2]}},"right":{"type":"static","value":{"a":[1,2]}}},{"type":"any","conditions":[]}]}`,
		"any":                   `{"type":"any","conditions":[{"type":"not","cond":{"type":"all","conditions":[]}}]}`,
		"not":                   `{"type":"not","cond":{"type":"contains","left":{"type":"path","path":"request.headers"},"right":{"type":"static","value":"X-Team"}}}`,
	}

	l := NewLoader(nil)
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			c, err := l.LoadJSON([]byte(doc))
			if err != nil {
				t.Fatalf("LoadJSON() error = %v", err)
			}
			if c.Kind().String() != name {
				t.Errorf("Kind() = %s, want %s", c.Kind(), name)
			}

			first := c.Document()
			again, err := l.Load(first)
			if err != nil {
				t.Fatalf("Load(Document()) error = %v", err)
			}
			if !reflect.DeepEqual(again.Document(), first) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", again.Document(), first)
			}
		})
	}
}

func TestLoader_YAMLMatchesJSON(t *testing.T) {
	l := NewLoader(nil)
	fromJSON, err := l.LoadJSON([]byte(`{"type":"less_than","left":{"type":"path","path":"request.payload.max_tokens"},"right":{"type":"static","value":4096}}`))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	fromYAML, err := l.LoadYAML([]byte(`
type: less_than
left:
  type: path
  path: request.payload.max_tokens
right:
  type: static
  value: 4096
`))
	if err != nil {
		t.Fatalf("LoadYAML() error = %v", err)
	}
	if !reflect.DeepEqual(fromJSON.Document(), fromYAML.Document()) {
		t.Errorf("YAML document %#v differs from JSON %#v", fromYAML.Document(), fromJSON.Document())
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantPath string
		wantMsg  string
	}{
		{name: "not an object", doc: `[1]`, wantMsg: "must be an object"},
		{name: "missing type", doc: `{"left":{}}`, wantMsg: `missing "type"`},
		{name: "non-string type", doc: `{"type":3}`, wantPath: "type", wantMsg: "must be a string"},
		{name: "unknown type", doc: `{"type":"between"}`, wantPath: "type", wantMsg: `unknown condition type "between"`},
		{name: "missing operand", doc: `{"type":"equals","left":{"type":"static","value":1}}`, wantMsg: `missing "right"`},
		{name: "unknown resolver", doc: `{"type":"equals","left":{"type":"env","name":"X"},"right":{"type":"static","value":1}}`, wantPath: "left.type", wantMsg: "unknown resolver type"},
		{name: "malformed path", doc: `{"type":"equals","left":{"type":"path","path":"body.model"},"right":{"type":"static","value":1}}`, wantPath: "left.path", wantMsg: "malformed path"},
		{name: "invalid static regex", doc: `{"type":"regex_match","left":{"type":"static","value":"a"},"right":{"type":"static","value":"("}}`, wantPath: "right", wantMsg: "invalid operand"},
		{name: "conditions not a list", doc: `{"type":"all","conditions":{}}`, wantPath: "conditions", wantMsg: "must be a list"},
		{name: "nested failure", doc: `{"type":"any","conditions":[{"type":"all","conditions":[]},{"type":"nope"}]}`, wantPath: "conditions[1].type", wantMsg: "unknown condition type"},
		{name: "nested not", doc: `{"type":"not","cond":{"type":"not"}}`, wantPath: "cond", wantMsg: `missing "cond"`},
	}

	l := NewLoader(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadJSON([]byte(tt.doc))
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("LoadJSON() error = %v, want *LoadError", err)
			}
			if le.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", le.Path, tt.wantPath)
			}
			if !strings.Contains(le.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", le.Message, tt.wantMsg)
			}
		})
	}
}

func TestRegistry_Bijective(t *testing.T) {
	r := DefaultRegistry()

	if got := len(r.Names()); got != len(kindNames) {
		t.Fatalf("registered %d names, want %d", got, len(kindNames))
	}
	for _, name := range r.Names() {
		kind, ok := r.Kind(name)
		if !ok {
			t.Fatalf("Kind(%q) not found", name)
		}
		back, ok := r.Name(kind)
		if !ok || back != name {
			t.Errorf("Name(Kind(%q)) = %q", name, back)
		}
	}
	for _, kind := range r.Kinds() {
		name, _ := r.Name(kind)
		back, _ := r.Kind(name)
		if back != kind {
			t.Errorf("Kind(Name(%d)) = %d", kind, back)
		}
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("equals", KindEquals, loadAll); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("equals", KindNotEquals, loadAll); err == nil {
		t.Error("duplicate name must be rejected")
	}
	if err := r.Register("same", KindEquals, loadAll); err == nil {
		t.Error("duplicate kind must be rejected")
	}
}

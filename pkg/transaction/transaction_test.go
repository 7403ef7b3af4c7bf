package transaction

import (
	"errors"
	"reflect"
	"testing"
)

func newTestTransaction() *Transaction {
	t := New(&Request{
		Method:     "POST",
		Endpoint:   "/v1/chat/completions",
		Credential: "caller-key",
		Headers:    map[string]string{"Content-Type": "application/json", "X-Team": "search"},
		Payload: map[string]any{
			"model": "gpt-4",
			"messages": []any{
				map[string]any{"role": "system", "content": "be brief"},
				map[string]any{"role": "user", "content": "hello"},
			},
			"temperature": 0.2,
			"stream":      nil,
		},
	})
	t.Data.Set(KeyCallerID, String("user-1"))
	t.Data.Set("limits", Map(map[string]Value{"rpm": Number(60)}))
	return t
}

func TestNew_AssignsID(t *testing.T) {
	a := New(nil)
	b := New(nil)
	if a.ID == "" || b.ID == "" {
		t.Fatal("New() must assign an ID")
	}
	if a.ID == b.ID {
		t.Errorf("New() produced duplicate IDs %q", a.ID)
	}
	if a.Data == nil {
		t.Error("New() must initialise side data")
	}
}

func TestLookup(t *testing.T) {
	tx := newTestTransaction()

	tests := []struct {
		name string
		path string
		want any
	}{
		{name: "id", path: "id", want: tx.ID},
		{name: "method", path: "request.method", want: "POST"},
		{name: "endpoint", path: "request.endpoint", want: "/v1/chat/completions"},
		{name: "credential", path: "request.credential", want: "caller-key"},
		{name: "header case-insensitive", path: "request.headers.x-team", want: "search"},
		{name: "missing header", path: "request.headers.x-missing", want: Absent},
		{name: "payload field", path: "request.payload.model", want: "gpt-4"},
		{name: "payload list index", path: "request.payload.messages.1.content", want: "hello"},
		{name: "payload index out of range", path: "request.payload.messages.5.content", want: Absent},
		{name: "payload non-numeric index", path: "request.payload.messages.first", want: Absent},
		{name: "explicit null", path: "request.payload.stream", want: nil},
		{name: "missing payload field", path: "request.payload.max_tokens", want: Absent},
		{name: "descend through scalar", path: "request.payload.model.name", want: Absent},
		{name: "nil response", path: "response.payload.id", want: Absent},
		{name: "side data", path: "data.caller_id", want: "user-1"},
		{name: "nested side data", path: "data.limits.rpm", want: float64(60)},
		{name: "missing side data", path: "data.nothing", want: Absent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup(tx, tt.path)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.path, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lookup(%q) = %#v, want %#v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLookup_MalformedPaths(t *testing.T) {
	tx := newTestTransaction()

	paths := []string{
		"",
		"request",
		"request..model",
		"body.model",
		"id.value",
		"request.unknown",
		"request.method.length",
		"response.status",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			tx.Response = &Response{Endpoint: "/v1/chat/completions"}
			_, err := Lookup(tx, path)
			var pathErr *PathError
			if !errors.As(err, &pathErr) {
				t.Fatalf("Lookup(%q) error = %v, want *PathError", path, err)
			}
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	tx := newTestTransaction()
	tx.Response = &Response{Endpoint: "/v1/chat/completions", Payload: map[string]any{"id": "cmpl-1"}}
	c := tx.Clone()

	if !reflect.DeepEqual(tx, c) {
		t.Fatal("Clone() differs from the original")
	}

	c.Request.Headers["X-Team"] = "ads"
	c.Request.Payload["messages"].([]any)[0].(map[string]any)["content"] = "changed"
	c.Response.Payload["id"] = "cmpl-2"
	c.Data.Append(KeyCallOrder, String("x"))

	if tx.Request.Headers["X-Team"] != "search" {
		t.Error("header mutation leaked into the original")
	}
	if got, _ := Lookup(tx, "request.payload.messages.0.content"); got != "be brief" {
		t.Errorf("payload mutation leaked into the original: %v", got)
	}
	if tx.Response.Payload["id"] != "cmpl-1" {
		t.Error("response mutation leaked into the original")
	}
	if _, ok := tx.Data.Get(KeyCallOrder); ok {
		t.Error("side-data mutation leaked into the original")
	}
}

func TestRequest_SetHeaderReplacesCaseInsensitive(t *testing.T) {
	req := &Request{Headers: map[string]string{"authorization": "Bearer old"}}
	req.SetHeader("Authorization", "Bearer new")

	if len(req.Headers) != 1 {
		t.Fatalf("headers = %v, want a single entry", req.Headers)
	}
	if v, _ := req.Header("AUTHORIZATION"); v != "Bearer new" {
		t.Errorf("Header() = %q, want %q", v, "Bearer new")
	}
}

func TestRequest_DelHeader(t *testing.T) {
	req := &Request{Headers: map[string]string{"authorization": "Bearer x", "Content-Type": "application/json"}}
	req.DelHeader("Authorization")

	if _, ok := req.Header("Authorization"); ok {
		t.Error("header still present after DelHeader")
	}
	if v, _ := req.Header("content-type"); v != "application/json" {
		t.Errorf("unrelated header = %q", v)
	}

	var empty Request
	empty.DelHeader("Authorization")
}

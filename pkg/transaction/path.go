package transaction

import (
	"fmt"
	"strconv"
	"strings"
)

// AbsentValue is the type of Absent.
type AbsentValue struct{}

// String implements fmt.Stringer.
func (AbsentValue) String() string { return "<absent>" }

// Absent is returned by Lookup when a well-formed path selects nothing.
// It is distinct from nil: a payload field explicitly set to JSON null
// resolves to nil, a missing field resolves to Absent.
var Absent = AbsentValue{}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(AbsentValue)
	return ok
}

// PathError reports a malformed lookup path.
type PathError struct {
	// Path is the full path that was looked up.
	Path string

	// Message describes what is wrong with it.
	Message string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Message)
}

// knownFields lists the navigable fields of the request and response roots.
// The bool marks scalar fields that cannot be descended into.
var knownFields = map[string]map[string]bool{
	"request": {
		"method":     true,
		"endpoint":   true,
		"credential": true,
		"headers":    false,
		"payload":    false,
	},
	"response": {
		"endpoint": true,
		"payload":  false,
	},
}

// ParsePath splits and validates a dotted path without resolving it. A path
// accepted by ParsePath never makes Lookup fail.
func ParsePath(path string) ([]string, error) {
	if path == "" {
		return nil, &PathError{Path: path, Message: "path is empty"}
	}
	parts := strings.Split(path, ".")
	for i, p := range parts {
		if p == "" {
			return nil, &PathError{Path: path, Message: fmt.Sprintf("segment %d is empty", i)}
		}
	}
	switch parts[0] {
	case "id":
		if len(parts) != 1 {
			return nil, &PathError{Path: path, Message: `"id" has no fields`}
		}
	case "request", "response", "data":
		if len(parts) < 2 {
			return nil, &PathError{Path: path, Message: fmt.Sprintf("%q must be followed by a field", parts[0])}
		}
		if parts[0] == "data" {
			break
		}
		scalar, ok := knownFields[parts[0]][parts[1]]
		if !ok {
			return nil, &PathError{Path: path, Message: fmt.Sprintf("unknown %s field %q", parts[0], parts[1])}
		}
		if scalar && len(parts) > 2 {
			return nil, &PathError{Path: path, Message: fmt.Sprintf("%q is a scalar field", parts[1])}
		}
	default:
		return nil, &PathError{Path: path, Message: fmt.Sprintf("unknown root %q (want id, request, response or data)", parts[0])}
	}
	return parts, nil
}

// Lookup resolves a dotted path against t.
func Lookup(t *Transaction, path string) (any, error) {
	parts, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return Absent, nil
	}

	switch parts[0] {
	case "id":
		return t.ID, nil
	case "request":
		return lookupRequest(t.Request, parts[1:], path)
	case "response":
		return lookupResponse(t.Response, parts[1:], path)
	default:
		v, ok := t.Data[parts[1]]
		if !ok {
			return Absent, nil
		}
		return descend(v.Interface(), parts[2:]), nil
	}
}

func lookupRequest(req *Request, fields []string, path string) (any, error) {
	if req == nil {
		return Absent, nil
	}
	switch fields[0] {
	case "method":
		return req.Method, nil
	case "endpoint":
		return req.Endpoint, nil
	case "credential":
		return req.Credential, nil
	case "headers":
		if len(fields) == 1 {
			return Plain(req.Headers), nil
		}
		if len(fields) > 2 {
			return Absent, nil
		}
		v, ok := req.Header(fields[1])
		if !ok {
			return Absent, nil
		}
		return v, nil
	case "payload":
		if req.Payload == nil {
			return Absent, nil
		}
		return descend(req.Payload, fields[1:]), nil
	default:
		return nil, &PathError{Path: path, Message: fmt.Sprintf("unknown request field %q", fields[0])}
	}
}

func lookupResponse(resp *Response, fields []string, path string) (any, error) {
	if resp == nil {
		return Absent, nil
	}
	switch fields[0] {
	case "endpoint":
		return resp.Endpoint, nil
	case "payload":
		if resp.Payload == nil {
			return Absent, nil
		}
		return descend(resp.Payload, fields[1:]), nil
	default:
		return nil, &PathError{Path: path, Message: fmt.Sprintf("unknown response field %q", fields[0])}
	}
}

// descend walks maps by key and lists by numeric index.
func descend(cur any, segments []string) any {
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return Absent
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return Absent
			}
			cur = node[idx]
		default:
			return Absent
		}
	}
	return cur
}

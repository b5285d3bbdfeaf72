package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"
	"unicode/utf8"
)

// ParseError describes one mismatch between a value and its schema, tagged
// with the JSON path of the offending value.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors aggregates every ParseError found in a value.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	var buf bytes.Buffer
	buf.WriteString("schema validation failed")
	for i := range e.Errors {
		if i == 0 {
			buf.WriteString(": ")
		} else {
			buf.WriteString("; ")
		}
		buf.WriteString(e.Errors[i].Error())
	}
	return buf.String()
}

var patternCache sync.Map // pattern -> *regexp.Regexp

// Validate checks a raw JSON document against the schema. It supports the
// subset of JSON Schema used by tool and routing schemas: type, properties,
// required, additionalProperties, items, enum, string length/pattern and
// numeric ranges.
func (s *JSONSchema) Validate(data json.RawMessage) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return &ValidationErrors{Errors: []ParseError{{Message: "invalid JSON: " + err.Error()}}}
	}

	var errs []ParseError
	s.validateValue("", value, &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (s *JSONSchema) validateValue(path string, value any, out *[]ParseError) {
	if s == nil {
		return
	}
	add := func(format string, args ...any) {
		*out = append(*out, ParseError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if s.Type != "" && !matchesType(s.Type, value) {
		add("expected %s, got %s", s.Type, jsonTypeName(value))
		return
	}

	if len(s.Enum) > 0 && !enumContains(s.Enum, value) {
		add("value %v is not one of %v", value, s.Enum)
	}

	switch v := value.(type) {
	case map[string]any:
		for _, name := range s.Required {
			if _, ok := v[name]; !ok {
				add("missing required property %q", name)
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			prop, ok := s.Properties[k]
			if !ok {
				if s.AdditionalProperties != nil && !*s.AdditionalProperties {
					add("unexpected property %q", k)
				}
				continue
			}
			prop.validateValue(joinPath(path, k), v[k], out)
		}
	case []any:
		if s.MinItems != nil && len(v) < *s.MinItems {
			add("expected at least %d items, got %d", *s.MinItems, len(v))
		}
		if s.MaxItems != nil && len(v) > *s.MaxItems {
			add("expected at most %d items, got %d", *s.MaxItems, len(v))
		}
		for i, item := range v {
			s.Items.validateValue(fmt.Sprintf("%s[%d]", path, i), item, out)
		}
	case string:
		n := utf8.RuneCountInString(v)
		if s.MinLength != nil && n < *s.MinLength {
			add("length %d is shorter than %d", n, *s.MinLength)
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			add("length %d is longer than %d", n, *s.MaxLength)
		}
		if s.Pattern != "" {
			re, err := compilePattern(s.Pattern)
			if err != nil {
				add("invalid pattern %q: %v", s.Pattern, err)
			} else if !re.MatchString(v) {
				add("value %q does not match %s", v, s.Pattern)
			}
		}
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			add("invalid number %s", v)
			return
		}
		if s.Minimum != nil && f < *s.Minimum {
			add("%v is less than minimum %v", f, *s.Minimum)
		}
		if s.Maximum != nil && f > *s.Maximum {
			add("%v is greater than maximum %v", f, *s.Maximum)
		}
	}
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func matchesType(t SchemaType, value any) bool {
	switch t {
	case SchemaTypeObject:
		_, ok := value.(map[string]any)
		return ok
	case SchemaTypeArray:
		_, ok := value.([]any)
		return ok
	case SchemaTypeString:
		_, ok := value.(string)
		return ok
	case SchemaTypeBoolean:
		_, ok := value.(bool)
		return ok
	case SchemaTypeNull:
		return value == nil
	case SchemaTypeNumber:
		_, ok := value.(json.Number)
		return ok
	case SchemaTypeInteger:
		n, ok := value.(json.Number)
		if !ok {
			return false
		}
		f, err := n.Float64()
		return err == nil && f == math.Trunc(f)
	}
	return true
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

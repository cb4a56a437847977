package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Schema is a JSON Schema object.
type Schema map[string]any

// Object returns an object schema. Every property listed in required must
// be present in the response.
func Object(properties map[string]Schema, required ...string) Schema {
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	s := Schema{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// String returns a string schema.
func String(description string) Schema {
	return describe(Schema{"type": "string"}, description)
}

// Enum returns a string schema restricted to values.
func Enum(description string, values ...string) Schema {
	return describe(Schema{"type": "string", "enum": values}, description)
}

// Array returns an array schema of items.
func Array(description string, items Schema) Schema {
	return describe(Schema{"type": "array", "items": items}, description)
}

func describe(s Schema, description string) Schema {
	if description != "" {
		s["description"] = description
	}
	return s
}

// JSON renders the schema for embedding in a prompt.
func (s Schema) JSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Decode unmarshals a structured response into v and checks its validate
// struct tags. Code fences around the JSON are tolerated.
func Decode(raw json.RawMessage, v any) error {
	data := StripCodeFence(string(raw))
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := structValidator().Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence, which some
// models add around JSON even when asked not to.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package identity

import "encoding/json"

// Classification is an opaque payload attached to an enrollment. Clients may
// send a bare string or a JSON object; the protocol stores and returns it
// verbatim and only ever interprets the label for classifier lookup.
type Classification struct {
	value any
}

// ParseClassification interprets a raw form value. JSON that parses is kept
// in decoded form; anything else is kept as the original string. Empty input
// yields nil.
func ParseClassification(raw string) *Classification {
	if raw == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		// A bare JSON string decodes to itself, which matches the
		// string form anyway.
		return &Classification{value: decoded}
	}
	return &Classification{value: raw}
}

// Label returns the classifier label: the string itself for the bare form, or
// the "label" key of the object form. Empty when neither applies.
func (c *Classification) Label() string {
	if c == nil {
		return ""
	}
	switch v := c.value.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["label"].(string); ok {
			return s
		}
	}
	return ""
}

// Probability returns the "probability" key of the object form, when present.
func (c *Classification) Probability() (float64, bool) {
	if c == nil {
		return 0, false
	}
	if m, ok := c.value.(map[string]any); ok {
		if p, ok := m["probability"].(float64); ok {
			return p, true
		}
	}
	return 0, false
}

func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.value)
}

func (c *Classification) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.value)
}

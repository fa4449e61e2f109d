package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RubricItem is a single scoring rule inside a section.
type RubricItem struct {
	Key         string  `json:"key" validate:"required"`
	MaxScore    float64 `json:"max_score" validate:"gt=0"`
	Description string  `json:"description"`
}

// RubricSection groups items under a scoring dimension.
type RubricSection struct {
	Key      string       `json:"key" validate:"required"`
	MaxScore float64      `json:"max_score" validate:"gt=0"`
	Items    []RubricItem `json:"items" validate:"dive"`
}

// RubricCategory is one homework template of the rubric.
type RubricCategory struct {
	DisplayName    string          `json:"display_name" validate:"required"`
	Sections       []RubricSection `json:"sections" validate:"dive"`
	DocxValidation DocxValidation  `json:"docx_validation"`
	ScoreTargetMax *float64        `json:"score_target_max,omitempty" validate:"omitempty,gt=0"`
}

// MarshalJSON keeps empty collections as arrays so the document shape survives a round trip.
func (c RubricCategory) MarshalJSON() ([]byte, error) {
	type alias RubricCategory
	out := alias(c)
	if out.Sections == nil {
		out.Sections = []RubricSection{}
	}
	sections := make([]RubricSection, len(out.Sections))
	for i, section := range out.Sections {
		if section.Items == nil {
			section.Items = []RubricItem{}
		}
		sections[i] = section
	}
	out.Sections = sections
	return json.Marshal(out)
}

// RubricConfig is the full scoring schema used by the grading service.
type RubricConfig struct {
	SystemPrompt string     `json:"system_prompt"`
	Categories   Categories `json:"categories"`
}

// Clone returns a deep copy of the configuration.
func (c *RubricConfig) Clone() *RubricConfig {
	if c == nil {
		return nil
	}
	clone := &RubricConfig{SystemPrompt: c.SystemPrompt}
	for _, key := range c.Categories.Keys() {
		category, _ := c.Categories.Get(key)
		clone.Categories.Set(key, category.Clone())
	}
	return clone
}

// Clone returns a deep copy of the category.
func (c *RubricCategory) Clone() *RubricCategory {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Sections != nil {
		clone.Sections = make([]RubricSection, len(c.Sections))
		for i, section := range c.Sections {
			copied := section
			if section.Items != nil {
				copied.Items = append([]RubricItem{}, section.Items...)
			}
			clone.Sections[i] = copied
		}
	}
	if c.ScoreTargetMax != nil {
		target := *c.ScoreTargetMax
		clone.ScoreTargetMax = &target
	}
	clone.DocxValidation = c.DocxValidation.Clone()
	return &clone
}

// Categories is an insertion-ordered mapping from category key to category.
type Categories struct {
	keys    []string
	entries map[string]*RubricCategory
}

// Keys returns category keys in insertion order.
func (c Categories) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Len reports the number of categories.
func (c Categories) Len() int {
	return len(c.keys)
}

// Get looks up a category by key.
func (c Categories) Get(key string) (*RubricCategory, bool) {
	category, ok := c.entries[key]
	return category, ok
}

// Set stores the category, appending the key when it is new.
func (c *Categories) Set(key string, category *RubricCategory) {
	if c.entries == nil {
		c.entries = make(map[string]*RubricCategory)
	}
	if _, exists := c.entries[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.entries[key] = category
}

// Delete removes a category, reporting whether it existed.
func (c *Categories) Delete(key string) bool {
	if _, exists := c.entries[key]; !exists {
		return false
	}
	delete(c.entries, key)
	for i, existing := range c.keys {
		if existing == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return true
}

// Rename moves a category to a new key while keeping its position.
func (c *Categories) Rename(from, to string) bool {
	category, exists := c.entries[from]
	if !exists {
		return false
	}
	if from == to {
		return true
	}
	if _, taken := c.entries[to]; taken {
		return false
	}
	delete(c.entries, from)
	c.entries[to] = category
	for i, existing := range c.keys {
		if existing == from {
			c.keys[i] = to
			break
		}
	}
	return true
}

// MarshalJSON writes the categories as a JSON object in insertion order.
func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		encoded, err := json.Marshal(c.entries[key])
		if err != nil {
			return nil, fmt.Errorf("encode category %q: %w", key, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object while remembering key order.
func (c *Categories) UnmarshalJSON(data []byte) error {
	c.keys = nil
	c.entries = make(map[string]*RubricCategory)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categories must be a JSON object")
	}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := token.(string)
		if !ok {
			return fmt.Errorf("categories key must be a string")
		}
		var category RubricCategory
		if err := decoder.Decode(&category); err != nil {
			return fmt.Errorf("decode category %q: %w", key, err)
		}
		category.DocxValidation = category.DocxValidation.normalized()
		c.Set(key, &category)
	}

	_, err = decoder.Token()
	return err
}

// TemplateOption is an entry of the grading template selector.
type TemplateOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// AutoTemplate is the sentinel template letting the grading service detect the category.
var AutoTemplate = TemplateOption{Label: "Auto-detect", Value: "auto"}

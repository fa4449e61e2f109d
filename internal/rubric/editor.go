// Package rubric holds the editable scoring schema: structural CRUD over
// categories, sections and items, typed field updates and the derived
// template selector options.
package rubric

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-grader/internal/models"
)

var (
	// ErrCategoryNotFound indicates the category key is not part of the rubric.
	ErrCategoryNotFound = errors.New("rubric: category not found")
	// ErrCategoryExists indicates a category with the key already exists.
	ErrCategoryExists = errors.New("rubric: category already exists")
	// ErrEmptyKey indicates a blank category key.
	ErrEmptyKey = errors.New("rubric: key must not be empty")
	// ErrIndexOutOfRange indicates a section or item position that does not exist.
	ErrIndexOutOfRange = errors.New("rubric: index out of range")
	// ErrUnknownField indicates the field cannot be set on the target.
	ErrUnknownField = errors.New("rubric: unknown field")
	// ErrInvalidNumber indicates numeric input that is not a positive finite number.
	ErrInvalidNumber = errors.New("rubric: value must be a positive number")
)

// Placeholders used for newly added sections and items.
const (
	DefaultSectionKey      = "New section"
	DefaultSectionMaxScore = 10.0
	DefaultItemKey         = "New item"
	DefaultItemMaxScore    = 5.0
	DefaultItemDescription = "Describe how this item is scored"
)

// Field names accepted by SetField.
const (
	FieldSystemPrompt   = "system_prompt"
	FieldDisplayName    = "display_name"
	FieldScoreTargetMax = "score_target_max"
	FieldKey            = "key"
	FieldMaxScore       = "max_score"
	FieldDescription    = "description"
)

// Level identifies which node of the tree a Target addresses.
type Level int

const (
	LevelConfig Level = iota
	LevelCategory
	LevelSection
	LevelItem
)

// Target addresses a node of the rubric tree.
type Target struct {
	Level    Level
	Category string
	Section  int
	Item     int
}

// ConfigTarget addresses the root configuration.
func ConfigTarget() Target { return Target{Level: LevelConfig} }

// CategoryTarget addresses a category.
func CategoryTarget(category string) Target {
	return Target{Level: LevelCategory, Category: category}
}

// SectionTarget addresses a section of a category.
func SectionTarget(category string, section int) Target {
	return Target{Level: LevelSection, Category: category, Section: section}
}

// ItemTarget addresses an item of a section.
func ItemTarget(category string, section, item int) Target {
	return Target{Level: LevelItem, Category: category, Section: section, Item: item}
}

// Editor mutates a RubricConfig in place. It is a single-writer structure: callers
// serialise access.
type Editor struct {
	config *models.RubricConfig
	active string
}

// NewEditor wraps cfg and selects its first category.
func NewEditor(cfg *models.RubricConfig) *Editor {
	e := &Editor{}
	e.Replace(cfg)
	return e
}

// Config returns the working copy.
func (e *Editor) Config() *models.RubricConfig {
	return e.config
}

// Replace swaps the working copy, keeping the active category when it still exists.
func (e *Editor) Replace(cfg *models.RubricConfig) {
	if cfg == nil {
		cfg = &models.RubricConfig{}
	}
	e.config = cfg
	e.SelectCategory(e.active)
}

// ActiveKey returns the selected category key, empty when the rubric has none.
func (e *Editor) ActiveKey() string {
	return e.active
}

// SelectCategory switches the active category, falling back to the first key when
// the requested one does not exist. It returns the key that ended up selected.
func (e *Editor) SelectCategory(key string) string {
	if _, ok := e.config.Categories.Get(key); ok {
		e.active = key
		return key
	}
	keys := e.config.Categories.Keys()
	if len(keys) == 0 {
		e.active = ""
		return ""
	}
	e.active = keys[0]
	return e.active
}

func (e *Editor) category(key string) (*models.RubricCategory, error) {
	category, ok := e.config.Categories.Get(key)
	if !ok || category == nil {
		return nil, ErrCategoryNotFound
	}
	return category, nil
}

// AddCategory appends a category with no sections and a disabled format policy.
func (e *Editor) AddCategory(key, displayName string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if _, exists := e.config.Categories.Get(key); exists {
		return ErrCategoryExists
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = key
	}
	e.config.Categories.Set(key, &models.RubricCategory{
		DisplayName:    displayName,
		Sections:       []models.RubricSection{},
		DocxValidation: models.DisabledDocxValidation(),
	})
	if e.active == "" {
		e.active = key
	}
	return nil
}

// RemoveCategory deletes a category; the active pointer falls back to the first key.
func (e *Editor) RemoveCategory(key string) bool {
	if !e.config.Categories.Delete(key) {
		return false
	}
	if e.active == key {
		e.SelectCategory("")
	}
	return true
}

// RenameCategory changes a category key in place.
func (e *Editor) RenameCategory(from, to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrEmptyKey
	}
	if _, ok := e.config.Categories.Get(from); !ok {
		return ErrCategoryNotFound
	}
	if !e.config.Categories.Rename(from, to) {
		return ErrCategoryExists
	}
	if e.active == from {
		e.active = to
	}
	return nil
}

// AddSection appends a placeholder section with no items and returns its index.
func (e *Editor) AddSection(categoryKey string) (int, error) {
	category, err := e.category(categoryKey)
	if err != nil {
		return -1, err
	}
	category.Sections = append(category.Sections, models.RubricSection{
		Key:      DefaultSectionKey,
		MaxScore: DefaultSectionMaxScore,
		Items:    []models.RubricItem{},
	})
	return len(category.Sections) - 1, nil
}

// RemoveSection deletes the section at index. Out-of-range indices are a no-op.
func (e *Editor) RemoveSection(categoryKey string, index int) bool {
	category, err := e.category(categoryKey)
	if err != nil || index < 0 || index >= len(category.Sections) {
		return false
	}
	category.Sections = append(category.Sections[:index], category.Sections[index+1:]...)
	return true
}

// AddItem appends a placeholder item to a section and returns its index.
func (e *Editor) AddItem(categoryKey string, sectionIndex int) (int, error) {
	category, err := e.category(categoryKey)
	if err != nil {
		return -1, err
	}
	if sectionIndex < 0 || sectionIndex >= len(category.Sections) {
		return -1, ErrIndexOutOfRange
	}
	section := &category.Sections[sectionIndex]
	section.Items = append(section.Items, models.RubricItem{
		Key:         DefaultItemKey,
		MaxScore:    DefaultItemMaxScore,
		Description: DefaultItemDescription,
	})
	return len(section.Items) - 1, nil
}

// RemoveItem deletes an item of a section. Out-of-range indices are a no-op.
func (e *Editor) RemoveItem(categoryKey string, sectionIndex, itemIndex int) bool {
	category, err := e.category(categoryKey)
	if err != nil || sectionIndex < 0 || sectionIndex >= len(category.Sections) {
		return false
	}
	section := &category.Sections[sectionIndex]
	if itemIndex < 0 || itemIndex >= len(section.Items) {
		return false
	}
	section.Items = append(section.Items[:itemIndex], section.Items[itemIndex+1:]...)
	return true
}

// SetField applies raw text input to a field of the target. Numeric fields must parse
// to a positive finite number, otherwise the field keeps its value and ErrInvalidNumber
// is returned. Text fields are stored trimmed.
func (e *Editor) SetField(target Target, field, raw string) error {
	switch target.Level {
	case LevelConfig:
		if field != FieldSystemPrompt {
			return ErrUnknownField
		}
		e.config.SystemPrompt = strings.TrimSpace(raw)
		return nil
	case LevelCategory:
		category, err := e.category(target.Category)
		if err != nil {
			return err
		}
		switch field {
		case FieldDisplayName:
			category.DisplayName = strings.TrimSpace(raw)
		case FieldScoreTargetMax:
			if strings.TrimSpace(raw) == "" {
				category.ScoreTargetMax = nil
				return nil
			}
			value, err := parseScore(raw)
			if err != nil {
				return err
			}
			category.ScoreTargetMax = &value
		default:
			return ErrUnknownField
		}
		return nil
	case LevelSection:
		section, err := e.section(target)
		if err != nil {
			return err
		}
		switch field {
		case FieldKey:
			section.Key = strings.TrimSpace(raw)
		case FieldMaxScore:
			value, err := parseScore(raw)
			if err != nil {
				return err
			}
			section.MaxScore = value
		default:
			return ErrUnknownField
		}
		return nil
	case LevelItem:
		section, err := e.section(target)
		if err != nil {
			return err
		}
		if target.Item < 0 || target.Item >= len(section.Items) {
			return ErrIndexOutOfRange
		}
		item := &section.Items[target.Item]
		switch field {
		case FieldKey:
			item.Key = strings.TrimSpace(raw)
		case FieldDescription:
			item.Description = strings.TrimSpace(raw)
		case FieldMaxScore:
			value, err := parseScore(raw)
			if err != nil {
				return err
			}
			item.MaxScore = value
		default:
			return ErrUnknownField
		}
		return nil
	default:
		return ErrUnknownField
	}
}

func (e *Editor) section(target Target) (*models.RubricSection, error) {
	category, err := e.category(target.Category)
	if err != nil {
		return nil, err
	}
	if target.Section < 0 || target.Section >= len(category.Sections) {
		return nil, ErrIndexOutOfRange
	}
	return &category.Sections[target.Section], nil
}

// NormalizeSectionScores sets each non-empty section's max score to the sum of its items.
func (e *Editor) NormalizeSectionScores(categoryKey string) error {
	category, err := e.category(categoryKey)
	if err != nil {
		return err
	}
	for i := range category.Sections {
		section := &category.Sections[i]
		if len(section.Items) == 0 {
			continue
		}
		section.MaxScore = itemSum(*section)
	}
	return nil
}

func parseScore(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, ErrInvalidNumber
	}
	return value, nil
}

func itemSum(section models.RubricSection) float64 {
	var sum float64
	for _, item := range section.Items {
		sum += item.MaxScore
	}
	return sum
}

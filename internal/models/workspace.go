package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkspaceCacheVersion is the current schema version of the cached workspace.
const WorkspaceCacheVersion = 1

// WorkspaceCache is the locally persisted snapshot of the last grading run.
type WorkspaceCache struct {
	Version    int            `json:"version"`
	SavedAt    int64          `json:"savedAt"`
	InProgress bool           `json:"inProgress"`
	StatusText string         `json:"statusText"`
	Result     *GradeResponse `json:"result"`
}

// EditorSettings configures the rubric editor's local draft auto-save.
type EditorSettings struct {
	AutoSaveEnabled         bool `json:"auto_save_enabled"`
	AutoSaveIntervalSeconds int  `json:"auto_save_interval_seconds"`
}

// DefaultEditorSettings returns the editor defaults.
func DefaultEditorSettings() EditorSettings {
	return EditorSettings{AutoSaveEnabled: true, AutoSaveIntervalSeconds: 60}
}

// Theme values accepted by the desk.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// KVEntry is a persisted JSON blob addressed by key.
type KVEntry struct {
	Key       string         `gorm:"primaryKey;size:191"`
	Value     datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time
}

// TableName keeps the table name stable across renames of the struct.
func (KVEntry) TableName() string {
	return "kv_entries"
}

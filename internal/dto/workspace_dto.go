package dto

import "github.com/noah-isme/gema-grader/internal/models"

// WorkspaceSnapshot is the observable state of the grading workspace.
type WorkspaceSnapshot struct {
	Token      uint64                `json:"token"`
	State      string                `json:"state"`
	StatusText string                `json:"status_text"`
	Progress   int                   `json:"progress"`
	Loading    bool                  `json:"loading"`
	Result     *models.GradeResponse `json:"result"`
	LastError  string                `json:"last_error,omitempty"`
}

// GradeAcceptedResponse is returned when a grading run starts.
type GradeAcceptedResponse struct {
	Token uint64 `json:"token"`
	Files int    `json:"files"`
}

// ClearRequestedResponse identifies the confirmation dialog opened for a cache clear.
type ClearRequestedResponse struct {
	ModalID string `json:"modal_id"`
}

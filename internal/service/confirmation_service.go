package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoModal indicates there is no open confirmation with the given id.
var ErrNoModal = errors.New("no open confirmation dialog")

// ConfirmOptions describes a confirmation request. OnConfirm runs only when the
// operator accepts.
type ConfirmOptions struct {
	Title       string
	Content     string
	ConfirmText string
	CancelText  string
	Danger      bool
	OnConfirm   func(ctx context.Context) error
	OnCancel    func()
}

// Modal is the render state of the confirmation dialog.
type Modal struct {
	ID          string `json:"id"`
	Open        bool   `json:"open"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ConfirmText string `json:"confirm_text"`
	CancelText  string `json:"cancel_text"`
	Type        string `json:"type"`
}

// Confirmer opens a confirmation dialog.
type Confirmer interface {
	Confirm(opts ConfirmOptions) Modal
}

// ConfirmationService owns the single confirmation dialog of the desk.
type ConfirmationService interface {
	Confirmer
	Current() Modal
	Accept(ctx context.Context, id string) error
	Cancel(id string) error
}

type confirmationService struct {
	mu      sync.Mutex
	modal   Modal
	options *ConfirmOptions
	logger  zerolog.Logger
}

// NewConfirmationService constructs the dialog owner.
func NewConfirmationService(logger zerolog.Logger) ConfirmationService {
	return &confirmationService{
		logger: logger.With().Str("component", "confirmation_service").Logger(),
	}
}

// Confirm opens a dialog, replacing any dialog that is still open.
func (s *confirmationService) Confirm(opts ConfirmOptions) Modal {
	if opts.ConfirmText == "" {
		opts.ConfirmText = "Confirm"
	}
	if opts.CancelText == "" {
		opts.CancelText = "Cancel"
	}
	modalType := "normal"
	if opts.Danger {
		modalType = "danger"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = &opts
	s.modal = Modal{
		ID:          uuid.NewString(),
		Open:        true,
		Title:       opts.Title,
		Content:     opts.Content,
		ConfirmText: opts.ConfirmText,
		CancelText:  opts.CancelText,
		Type:        modalType,
	}
	return s.modal
}

func (s *confirmationService) Current() Modal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modal
}

func (s *confirmationService) Accept(ctx context.Context, id string) error {
	opts, err := s.close(id)
	if err != nil {
		return err
	}
	if opts.OnConfirm == nil {
		return nil
	}
	if err := opts.OnConfirm(ctx); err != nil {
		s.logger.Warn().Err(err).Str("title", opts.Title).Msg("confirmation action failed")
		return err
	}
	return nil
}

func (s *confirmationService) Cancel(id string) error {
	opts, err := s.close(id)
	if err != nil {
		return err
	}
	if opts.OnCancel != nil {
		opts.OnCancel()
	}
	return nil
}

func (s *confirmationService) close(id string) (*ConfirmOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modal.Open || s.options == nil || s.modal.ID != id {
		return nil, ErrNoModal
	}
	opts := s.options
	s.options = nil
	s.modal = Modal{}
	return opts, nil
}

package dto

// ModalActionRequest answers the open confirmation dialog.
type ModalActionRequest struct {
	ID string `json:"id" validate:"required"`
}

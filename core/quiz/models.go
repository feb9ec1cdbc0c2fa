package quiz

import (
	"time"

	"github.com/quizera/backend/core"
)

// Module is one unit of learning content in a company's modules feed.
type Module struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewModule contains information needed to create a new Module.
type NewModule struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Position    int    `json:"position" validate:"omitempty,min=0"`
}

func (nm *NewModule) Validate(svc *Service) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	return svc.validate.Struct(nm)
}

// UpdateModule defines what information may be provided to modify an existing Module.
type UpdateModule struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
	IsPublished *bool   `json:"is_published"`
}

func (um *UpdateModule) Validate(orig Module, svc *Service) error {
	title := core.CleanString(um.Title)
	if title != "" {
		um.Title = title
	} else {
		um.Title = orig.Title
	}
	return svc.validate.Struct(um)
}

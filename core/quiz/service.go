package quiz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/realtime"
)

var (
	// errors
	ErrNotFound = errors.New("module not found")
)

type (
	Repository interface {
		CreateModule(mod Module) (Module, error)
		GetModuleByID(id string) (Module, error)
		// QueryCompanyModules returns the company's modules ordered by Position.
		QueryCompanyModules(companyID string, ordering ...core.DBOrdering) ([]Module, error)
		UpdateModule(mod Module, isPublished *bool) (Module, error)
		DeleteModulesByID(ids ...string) error
	}

	Service struct {
		repo      Repository
		publisher realtime.Publisher
		logger    core.Logger
		validate  *validator.Validate
	}
)

func NewService(repo Repository, publisher realtime.Publisher, logger core.Logger, validate *validator.Validate) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validate:  validate,
	}
}

func (svc *Service) Create(companyID string, nm NewModule) (Module, error) {
	now := time.Now().UTC()
	mod := Module{
		CompanyID:   companyID,
		Title:       nm.Title,
		Description: nm.Description,
		Position:    nm.Position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	mod, err := svc.repo.CreateModule(mod)
	if err != nil {
		return Module{}, err
	}

	svc.publish(mod.CompanyID, realtime.Event{
		Kind:  realtime.EventCreated,
		ID:    mod.ID,
		After: svc.snapshot(mod),
	})
	return mod, nil
}

func (svc *Service) GetByID(id string) (Module, error) {
	return svc.repo.GetModuleByID(id)
}

func (svc *Service) QueryByCompany(companyID string, ordering ...core.DBOrdering) ([]Module, error) {
	return svc.repo.QueryCompanyModules(companyID, ordering...)
}

func (svc *Service) Update(orig Module, um UpdateModule) (Module, error) {
	mod := Module{
		ID:          orig.ID,
		CompanyID:   orig.CompanyID,
		Title:       um.Title,
		Description: orig.Description,
		Position:    orig.Position,
		UpdatedAt:   time.Now().UTC(),
	}
	if um.Description != nil {
		mod.Description = *um.Description
	}
	if um.Position != nil {
		mod.Position = *um.Position
	}

	mod, err := svc.repo.UpdateModule(mod, um.IsPublished)
	if err != nil {
		return Module{}, err
	}

	svc.publish(mod.CompanyID, realtime.Event{
		Kind:   realtime.EventUpdated,
		ID:     mod.ID,
		Before: svc.snapshot(orig),
		After:  svc.snapshot(mod),
	})
	return mod, nil
}

func (svc *Service) Delete(orig Module) error {
	if err := svc.repo.DeleteModulesByID(orig.ID); err != nil {
		return err
	}

	svc.publish(orig.CompanyID, realtime.Event{
		Kind:   realtime.EventDeleted,
		ID:     orig.ID,
		Before: svc.snapshot(orig),
	})
	return nil
}

// publish sends the change event on the company's modules channel. Delivery
// is best-effort: a publish failure is logged, never surfaced to the caller,
// since the mutation itself has already been committed.
func (svc *Service) publish(companyID string, evt realtime.Event) {
	key := realtime.ModulesKey(companyID)
	if err := svc.publisher.Publish(context.Background(), key, evt); err != nil {
		svc.logger.Error("quiz: publishing change event", errors.Wrap(err, key))
	}
}

func (svc *Service) snapshot(mod Module) json.RawMessage {
	data, err := json.Marshal(mod)
	if err != nil {
		svc.logger.Error("quiz: marshalling module snapshot", err)
		return nil
	}
	return data
}

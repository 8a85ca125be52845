// Package command contains the write operations of the engagement service.
// Each command has a Validate method and a handler with a single Handle entrypoint.
package command

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// IDGenerator produces identifiers for new entities.
type IDGenerator interface {
	GenerateID() string
}

// UUIDGenerator issues random UUIDv4 strings.
type UUIDGenerator struct{}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string {
	return uuid.New().String()
}

// EngagementResult is returned by every command that may escalate.
type EngagementResult struct {
	Status       engagement.State
	Warning      string
	Notification escalation.NotificationOutcome
}

func fromEscalation(r *escalation.Result) *EngagementResult {
	return &EngagementResult{
		Status:       r.State,
		Warning:      r.Warning,
		Notification: r.Notification,
	}
}

// Deps groups what the handlers share.
type Deps struct {
	Store       engagement.Store
	Machine     *engagement.Machine
	Coordinator *escalation.Coordinator
	IDs         IDGenerator
	Logger      *slog.Logger
}

func (d *Deps) withDefaults() {
	if d.Machine == nil {
		d.Machine = engagement.NewMachine(engagement.DefaultThresholds())
	}
	if d.IDs == nil {
		d.IDs = UUIDGenerator{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// loadStudent fetches the student, passing not-found through and wrapping anything else.
func loadStudent(ctx context.Context, repo engagement.StudentRepository, id string) (*engagement.Student, error) {
	st, err := repo.GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, persistence("student", "GetByID", err)
	}
	return st, nil
}

func persistence(domain, op string, err error) error {
	if shared.IsPersistence(err) {
		return err
	}
	return shared.Persistence(domain, op, err)
}

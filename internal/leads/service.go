package leads

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/internal/storage"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
	"acquisition_backend/platform/phone"
	"acquisition_backend/platform/sanitize"
	"acquisition_backend/platform/validator"
)

// CreateLeadRequest is the intake payload for a new lead.
type CreateLeadRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
	Company string `json:"company,omitempty" validate:"omitempty,max=200"`
	Notes   string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// Service is the operator-facing surface over the lead store and the
// workflow. Handlers and scheduled tasks call it; it never advances stages
// itself beyond delegating to the workflow.
type Service struct {
	store       repository.Store
	runs        repository.RunStore
	workflow    *Workflow
	transcripts storage.TranscriptStore
	bus         events.Bus
	validate    *validator.Validator
	log         *logger.Logger
}

// NewService wires the lead service.
func NewService(
	store repository.Store,
	runs repository.RunStore,
	workflow *Workflow,
	transcripts storage.TranscriptStore,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		store:       store,
		runs:        runs,
		workflow:    workflow,
		transcripts: transcripts,
		bus:         bus,
		validate:    validator.New(),
		log:         log.WithComponent("leads"),
	}
}

// Create registers a discovered lead and opens its workflow run. Email is
// the dedupe key; a second intake with the same address is a conflict, not
// a second pipeline entry.
func (s *Service) Create(ctx context.Context, req CreateLeadRequest) (*domain.LeadRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid lead payload", err)
	}

	if existing, err := s.store.FindByEmail(ctx, req.Email); err == nil {
		return nil, apperr.Conflict(fmt.Sprintf("a lead with this email already exists (%s)", existing.ID)).
			WithDetails(map[string]string{"leadId": existing.ID.String()})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to check for existing lead", err)
	}

	// Contact fields end up in outbound mail and calendar invites, so
	// markup is stripped at the door.
	lead := domain.NewLeadRecord(domain.Contact{
		Name:    sanitize.Text(req.Name),
		Email:   req.Email,
		Phone:   phone.NormalizeE164(req.Phone),
		Company: sanitize.Text(req.Company),
		Notes:   sanitize.Text(req.Notes),
	})

	if err := s.store.Create(ctx, lead); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create lead", err)
	}
	if err := s.runs.SaveRun(ctx, domain.NewWorkflowRun(lead.ID, lead.Stage)); err != nil {
		// The reconcile pass recreates missing runs; creation still stands.
		s.log.Warn("failed to open workflow run", "leadId", lead.ID, "error", err)
	}

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Email:     lead.Contact.Email,
		Name:      lead.Contact.Name,
	})
	s.log.Info("lead created", "leadId", lead.ID, "email", lead.Contact.Email)
	return lead, nil
}

// Get returns a lead by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.LeadRecord, error) {
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load lead", err)
	}
	return lead, nil
}

// ListByStage returns all leads at one stage, oldest first.
func (s *Service) ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.LeadRecord, error) {
	if !domain.IsKnownStage(stage) {
		return nil, apperr.Validation(fmt.Sprintf("unknown stage %q", stage))
	}
	leads, err := s.store.ListByStage(ctx, stage)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list leads", err)
	}
	return leads, nil
}

// StageCounts returns how many leads sit at each stage.
func (s *Service) StageCounts(ctx context.Context) (map[domain.Stage]int, error) {
	counts, err := s.store.StageCounts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to count leads", err)
	}
	return counts, nil
}

// Abandon takes the lead out of the pipeline and closes its run.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID, reason string) (*domain.LeadRecord, error) {
	if reason == "" {
		reason = "abandoned by operator"
	}
	lead, err := s.workflow.Abandon(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if err := s.runs.DeleteRun(ctx, id); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
		s.log.Warn("failed to close workflow run", "leadId", id, "error", err)
	}
	return lead, nil
}

// ResetFailed puts a FAILED lead back at its origin stage and reopens the
// run so the next tick picks it up.
func (s *Service) ResetFailed(ctx context.Context, id uuid.UUID) (*domain.LeadRecord, error) {
	lead, err := s.workflow.ResetFailed(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.runs.SaveRun(ctx, domain.NewWorkflowRun(lead.ID, lead.Stage)); err != nil {
		s.log.Warn("failed to reopen workflow run", "leadId", lead.ID, "error", err)
	}
	return lead, nil
}

// AttachTranscript stores the call transcript and arms the analytics pass.
// Attaching a new transcript resets the analytics retry budget, so a lead
// whose earlier analysis gave up gets a fresh chance.
func (s *Service) AttachTranscript(ctx context.Context, id uuid.UUID, r io.Reader, size int64) (*domain.LeadRecord, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(lead.Stage, domain.StageAnalyzed) {
		return nil, apperr.Conflict(fmt.Sprintf("lead in stage %s cannot take a transcript", lead.Stage))
	}

	ref, err := s.transcripts.Put(ctx, id, r, size)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperr.Validation("transcript exceeds the maximum allowed size")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to store transcript", err)
	}

	old := lead.TranscriptRef
	lead.TranscriptRef = &ref
	if lead.RetryCounts != nil {
		lead.RetryCounts[domain.StageAnalyzed] = 0
	}
	if err := s.store.Save(ctx, lead); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperr.Conflict("lead changed concurrently")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to save transcript reference", err)
	}

	if old != nil && *old != ref {
		if derr := s.transcripts.Delete(ctx, *old); derr != nil {
			s.log.Warn("failed to delete replaced transcript", "leadId", id, "ref", *old, "error", derr)
		}
	}

	s.bus.Publish(ctx, events.TranscriptAttached{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        lead.ID,
		TranscriptRef: ref,
	})
	s.log.Info("transcript attached", "leadId", lead.ID, "ref", ref)
	return lead, nil
}

// TranscriptURL returns a short-lived download link for the lead's
// transcript.
func (s *Service) TranscriptURL(ctx context.Context, id uuid.UUID) (*storage.PresignedURL, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead.TranscriptRef == nil {
		return nil, apperr.NotFound("lead has no transcript")
	}

	url, err := s.transcripts.PresignDownload(ctx, *lead.TranscriptRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Gone("transcript object no longer exists")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to presign transcript", err)
	}
	return url, nil
}

// Archive removes the lead, its run, and its stored transcript.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) error {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if lead.TranscriptRef != nil {
		if derr := s.transcripts.Delete(ctx, *lead.TranscriptRef); derr != nil {
			s.log.Warn("failed to delete transcript during archive", "leadId", id, "error", derr)
		}
	}
	if err := s.runs.DeleteRun(ctx, id); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
		s.log.Warn("failed to delete workflow run during archive", "leadId", id, "error", err)
	}
	if err := s.store.Archive(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("lead not found")
		}
		return apperr.Wrap(apperr.KindInternal, "failed to archive lead", err)
	}

	s.log.Info("lead archived", "leadId", id)
	return nil
}

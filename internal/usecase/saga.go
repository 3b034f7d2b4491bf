// File: internal/usecase/saga.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
	"concept-forge/internal/infra/logging"
	"concept-forge/internal/infra/metrics"
)

// ConceptSaga writes a concept and its variations as two steps and deletes
// the partial write when the second step fails.
type ConceptSaga struct {
	concepts repository.ConceptRepository
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewConceptSaga(concepts repository.ConceptRepository, compensationTimeout time.Duration, log *zerolog.Logger) *ConceptSaga {
	if compensationTimeout <= 0 {
		compensationTimeout = 10 * time.Second
	}
	return &ConceptSaga{concepts: concepts, timeout: compensationTimeout, log: log}
}

// Persist inserts the root, then every variation. It returns the stored
// concept, or a *domain.TransactionFailure when a variation write failed.
func (s *ConceptSaga) Persist(ctx context.Context, c *model.Concept) (*model.Concept, error) {
	now := time.Now().UTC()
	root := *c
	root.Variations = nil
	if root.CreatedAt.IsZero() {
		root.CreatedAt = now
	}

	id, err := s.concepts.Save(ctx, nil, &root)
	if err != nil {
		// nothing written yet
		return nil, fmt.Errorf("save concept: %w", err)
	}
	root.ID = id

	inserted := make([]string, 0, len(c.Variations))
	saved := make([]model.ColorVariation, 0, len(c.Variations))
	for i := range c.Variations {
		v := c.Variations[i]
		v.ConceptID = id
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		if err := s.concepts.SaveVariation(ctx, nil, &v); err != nil {
			cause := fmt.Errorf("save variation %d of %d: %w", i+1, len(c.Variations), err)
			compensated := s.compensate(ctx, id, inserted, cause)
			metrics.IncCompensation(compensated)
			return nil, &domain.TransactionFailure{Err: cause, Compensated: compensated}
		}
		inserted = append(inserted, v.ID)
		saved = append(saved, v)
	}

	root.Variations = saved
	return &root, nil
}

// compensate deletes the inserted variations newest first, then the root.
// It runs on a context detached from the caller's cancellation.
func (s *ConceptSaga) compensate(ctx context.Context, rootID string, variations []string, cause error) bool {
	log := logging.With(ctx, s.log)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ok := true
	for i := len(variations) - 1; i >= 0; i-- {
		if _, err := s.concepts.DeleteVariation(cctx, nil, variations[i]); err != nil {
			ok = false
			log.Error().Err(err).Str("concept_id", rootID).Str("variation_id", variations[i]).Msg("compensation: delete variation failed")
		}
	}
	removed, err := s.concepts.Delete(cctx, nil, rootID)
	switch {
	case err != nil:
		ok = false
		log.Error().Err(err).Str("concept_id", rootID).Msg("compensation: delete concept failed")
	case !removed:
		log.Warn().Str("concept_id", rootID).Msg("compensation: concept already gone")
	}

	ev := log.Warn()
	if !ok {
		ev = log.Error()
	}
	ev.Err(cause).
		Str("concept_id", rootID).
		Int("variations_inserted", len(variations)).
		Bool("compensated", ok).
		Msg("concept write rolled back")
	return ok
}

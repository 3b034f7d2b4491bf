package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
	"concept-forge/internal/infra/logging"
)

func conceptWithVariations(n int) *model.Concept {
	c := &model.Concept{OwnerID: "owner", TaskID: "task", Title: "lighthouse"}
	for i := 0; i < n; i++ {
		c.Variations = append(c.Variations, model.ColorVariation{Position: i})
	}
	return c
}

func TestConceptSaga_Persist(t *testing.T) {
	ctx := context.Background()

	t.Run("writes root and every variation", func(t *testing.T) {
		repo := NewMockConceptRepo()
		saga := NewConceptSaga(repo, time.Second, logging.Nop())
		saved, err := saga.Persist(ctx, conceptWithVariations(3))
		if err != nil {
			t.Fatalf("persist: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, saved.ID, "owner")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(got.Variations) != 3 {
			t.Errorf("expected 3 variations, got %d", len(got.Variations))
		}
		for _, v := range got.Variations {
			if v.ConceptID != saved.ID {
				t.Errorf("variation %s points at %s", v.ID, v.ConceptID)
			}
		}
	})

	t.Run("child failure after one insert removes root and child", func(t *testing.T) {
		repo := NewMockConceptRepo()
		childErr := errors.New("insert variation: unique violation")
		repo.SaveVariationFunc = func(_ context.Context, _ repository.Tx, _ *model.ColorVariation, call int) error {
			if call == 2 {
				return childErr
			}
			return nil
		}
		saga := NewConceptSaga(repo, time.Second, logging.Nop())

		_, err := saga.Persist(ctx, conceptWithVariations(3))
		var tf *domain.TransactionFailure
		if !errors.As(err, &tf) {
			t.Fatalf("expected TransactionFailure, got %v", err)
		}
		if !tf.Compensated || !errors.Is(err, childErr) {
			t.Errorf("expected compensated failure wrapping the child error, got %v", err)
		}
		if roots, vars := repo.Count(); roots != 0 || vars != 0 {
			t.Errorf("expected no orphan rows, got %d roots %d variations", roots, vars)
		}
		deleted := repo.Deleted()
		if len(deleted) != 2 || !strings.HasPrefix(deleted[0], "variation:") || !strings.HasPrefix(deleted[1], "concept:") {
			t.Errorf("expected the child deleted before the root, got %v", deleted)
		}
	})

	t.Run("compensation failure is reported, original error kept", func(t *testing.T) {
		repo := NewMockConceptRepo()
		childErr := errors.New("child write failed")
		repo.SaveVariationFunc = func(context.Context, repository.Tx, *model.ColorVariation, int) error { return childErr }
		repo.DeleteFunc = func(context.Context, repository.Tx, string) (bool, error) {
			return false, errors.New("delete failed too")
		}
		saga := NewConceptSaga(repo, time.Second, logging.Nop())

		_, err := saga.Persist(ctx, conceptWithVariations(2))
		var tf *domain.TransactionFailure
		if !errors.As(err, &tf) || tf.Compensated {
			t.Fatalf("expected uncompensated TransactionFailure, got %v", err)
		}
		if !errors.Is(err, childErr) {
			t.Errorf("original error must be preserved, got %v", err)
		}
	})

	t.Run("compensation runs even when the caller is cancelled", func(t *testing.T) {
		repo := NewMockConceptRepo()
		cctx, cancel := context.WithCancel(ctx)
		repo.SaveVariationFunc = func(context.Context, repository.Tx, *model.ColorVariation, int) error {
			cancel()
			return context.Canceled
		}
		saga := NewConceptSaga(repo, time.Second, logging.Nop())

		_, err := saga.Persist(cctx, conceptWithVariations(1))
		var tf *domain.TransactionFailure
		if !errors.As(err, &tf) || !tf.Compensated {
			t.Fatalf("expected compensated failure, got %v", err)
		}
		if roots, _ := repo.Count(); roots != 0 {
			t.Error("root should be deleted on a detached context")
		}
	})

	t.Run("root failure needs no compensation", func(t *testing.T) {
		repo := NewMockConceptRepo()
		repo.SaveFunc = func(context.Context, repository.Tx, *model.Concept) (string, error) {
			return "", errors.New("db down")
		}
		saga := NewConceptSaga(repo, time.Second, logging.Nop())
		_, err := saga.Persist(ctx, conceptWithVariations(2))
		var tf *domain.TransactionFailure
		if err == nil || errors.As(err, &tf) {
			t.Fatalf("expected a plain error, got %v", err)
		}
		if len(repo.Deleted()) != 0 {
			t.Error("nothing was written, nothing should be deleted")
		}
	})
}

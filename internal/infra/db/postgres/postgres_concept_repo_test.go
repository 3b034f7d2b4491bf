//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
)

func TestConceptRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresConceptRepo(testPool)

	t.Run("should save root and variations then cascade on delete", func(t *testing.T) {
		cleanup(t)
		c := &model.Concept{
			OwnerID:  "owner-1",
			TaskID:   uuid.NewString(),
			Prompt:   "a paper crane",
			Title:    "a paper crane",
			Palettes: []model.Palette{{Name: "Dawn", Colors: []string{"#FFEEDD"}}},
			Artifact: model.ArtifactRef{Path: "owner-1/base", URL: "http://x/owner-1/base"},
		}
		id, err := repo.Save(ctx, nil, c)
		if err != nil {
			t.Fatalf("save root: %v", err)
		}
		for i := 1; i >= 0; i-- {
			v := &model.ColorVariation{ConceptID: id, Position: i, Palette: c.Palettes[0]}
			if err := repo.SaveVariation(ctx, nil, v); err != nil {
				t.Fatalf("save variation %d: %v", i, err)
			}
		}

		got, err := repo.FindByID(ctx, nil, id, "owner-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(got.Variations) != 2 || got.Variations[0].Position != 0 {
			t.Fatalf("expected 2 ordered variations, got %+v", got.Variations)
		}
		if got.Palettes[0].Colors[0] != "#FFEEDD" {
			t.Errorf("palettes not round-tripped: %+v", got.Palettes)
		}

		removed, err := repo.Delete(ctx, nil, id)
		if err != nil || !removed {
			t.Fatalf("delete: removed=%v err=%v", removed, err)
		}
		var n int
		if err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM concept_variations WHERE concept_id=$1", id).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("expected variations to cascade, %d left", n)
		}
	})

	t.Run("variation without a root is rejected", func(t *testing.T) {
		cleanup(t)
		err := repo.SaveVariation(ctx, nil, &model.ColorVariation{ConceptID: "missing", Palette: model.Palette{Colors: []string{"#000000"}}})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound from foreign key, got %v", err)
		}
	})

	t.Run("artifact store round trip", func(t *testing.T) {
		cleanup(t)
		store := NewPostgresArtifactRepo(testPool, "http://cdn.local/")
		ref, err := store.Store(ctx, []byte{1, 2, 3}, "owner-1", map[string]string{"content_type": "image/png"})
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		if ref.URL != "http://cdn.local/"+ref.Path {
			t.Errorf("unexpected url %q for path %q", ref.URL, ref.Path)
		}
		data, err := store.Get(ctx, ref.Path)
		if err != nil || len(data) != 3 {
			t.Fatalf("get: %v (%v)", data, err)
		}
		if _, err := store.Get(ctx, "owner-1/missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

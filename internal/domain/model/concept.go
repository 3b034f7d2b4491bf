package model

import "time"

// Palette is an ordered set of hex colors with an optional name.
type Palette struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

// Artifact is raw generated media as returned by a generation provider.
type Artifact struct {
	Data          []byte
	ContentType   string
	RevisedPrompt string
}

// ArtifactRef points at persisted media.
type ArtifactRef struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Concept is the aggregate root produced by a successful generation task.
type Concept struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	TaskID      string           `json:"task_id"`
	Prompt      string           `json:"prompt"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Palettes    []Palette        `json:"palettes"`
	Artifact    ArtifactRef      `json:"artifact"`
	Variations  []ColorVariation `json:"variations"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ColorVariation is a child record of a Concept.
type ColorVariation struct {
	ID        string      `json:"id"`
	ConceptID string      `json:"concept_id"`
	Position  int         `json:"position"`
	Palette   Palette     `json:"palette"`
	Artifact  ArtifactRef `json:"artifact"`
	CreatedAt time.Time   `json:"created_at"`
}

package models

import "strings"

// ModelType selects which checkpoint a queue item is rendered with.
type ModelType string

const (
	ModelStandard ModelType = "Standard"
	ModelAnime    ModelType = "Anime"
	ModelRealism  ModelType = "Realism"
)

// ParseModelType maps a free-form label onto a known model type. Unknown or empty labels become Standard.
func ParseModelType(label string) ModelType {
	label = strings.TrimSpace(label)
	for _, t := range []ModelType{ModelStandard, ModelAnime, ModelRealism} {
		if strings.EqualFold(label, string(t)) {
			return t
		}
	}
	return ModelStandard
}

// QueueItem is one pending prompt file.
type QueueItem struct {
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	ModelType ModelType `json:"model_type"`
}

// ModelPaths maps model types to checkpoint paths on the generation service.
type ModelPaths map[ModelType]string

// NewModelPaths converts a label keyed map (as produced by config) into ModelPaths.
func NewModelPaths(byLabel map[string]string) ModelPaths {
	paths := make(ModelPaths, len(byLabel))
	for label, path := range byLabel {
		paths[ParseModelType(label)] = path
	}
	return paths
}

// Resolve returns the checkpoint for t, falling back to the Standard entry.
func (m ModelPaths) Resolve(t ModelType) string {
	if path, ok := m[t]; ok && path != "" {
		return path
	}
	return m[ModelStandard]
}

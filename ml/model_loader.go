package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactNotFound matches every *ArtifactNotFoundError.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrArtifactMismatch means the artifact was trained on another schema.
	ErrArtifactMismatch = errors.New("model artifact does not match dataset")
)

// TrainHint tells users how to produce a missing artifact.
const TrainHint = "Train the model via `iris train` first."

// ArtifactNotFoundError reports the path that was expected to hold an artifact.
type ArtifactNotFoundError struct {
	Path string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("model artifact not found at %s. %s", e.Path, TrainHint)
}

func (e *ArtifactNotFoundError) Is(target error) bool {
	return target == ErrArtifactNotFound
}

// LoadPipeline reads the artifact at path and checks it against schema.
func LoadPipeline(path string, schema Schema) (*Artifact, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(schema); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

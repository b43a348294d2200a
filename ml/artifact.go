package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// FormatVersion is bumped whenever the artifact layout changes.
const FormatVersion = 1

// Schema is the feature order and label mapping an artifact was trained on.
type Schema struct {
	FeatureNames []string `json:"feature_names"`
	ClassNames   []string `json:"class_names"`
}

// Artifact is the persisted, fitted pipeline.
type Artifact struct {
	FormatVersion int       `json:"format_version"`
	RunID         string    `json:"run_id,omitempty"`
	TrainedAt     time.Time `json:"trained_at"`
	NSamples      int       `json:"n_samples"`
	Schema
	Pipeline *Pipeline `json:"pipeline"`
}

// NewArtifact wraps a fitted pipeline together with its schema.
func NewArtifact(p *Pipeline, schema Schema, nSamples int) (*Artifact, error) {
	if p == nil || !p.Fitted() {
		return nil, errors.New("model not trained")
	}
	a := &Artifact{
		FormatVersion: FormatVersion,
		TrainedAt:     time.Now().UTC(),
		NSamples:      nSamples,
		Schema: Schema{
			FeatureNames: slices.Clone(schema.FeatureNames),
			ClassNames:   slices.Clone(schema.ClassNames),
		},
		Pipeline: p,
	}
	if err := a.checkShape(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks that the artifact was trained on the given schema.
func (a *Artifact) Validate(want Schema) error {
	if a.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, want %d", ErrArtifactMismatch, a.FormatVersion, FormatVersion)
	}
	if !slices.Equal(a.FeatureNames, want.FeatureNames) {
		return fmt.Errorf("%w: features %v, want %v", ErrArtifactMismatch, a.FeatureNames, want.FeatureNames)
	}
	if !slices.Equal(a.ClassNames, want.ClassNames) {
		return fmt.Errorf("%w: classes %v, want %v", ErrArtifactMismatch, a.ClassNames, want.ClassNames)
	}
	return a.checkShape()
}

func (a *Artifact) checkShape() error {
	if a.Pipeline == nil || !a.Pipeline.Fitted() {
		return fmt.Errorf("%w: pipeline is not fitted", ErrArtifactMismatch)
	}
	if got := len(a.Pipeline.Scaler.Mean); got != len(a.FeatureNames) {
		return fmt.Errorf("%w: %d fitted features for %d names", ErrArtifactMismatch, got, len(a.FeatureNames))
	}
	if got := a.Pipeline.Classifier.Classes(); got != len(a.ClassNames) {
		return fmt.Errorf("%w: %d fitted classes for %d names", ErrArtifactMismatch, got, len(a.ClassNames))
	}
	return nil
}

// SaveArtifact writes the artifact as JSON. The file is written next to its
// destination and renamed into place, so readers see either the previous
// artifact or the new one.
func SaveArtifact(path string, a *Artifact) error {
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact without checking its schema.
func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ArtifactNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return &a, nil
}

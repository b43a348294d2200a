package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    model_name VARCHAR(50) NOT NULL,
    cv_accuracy_mean REAL,
    cv_accuracy_std REAL,
    cv_f1_mean REAL,
    cv_f1_std REAL,
    holdout_accuracy REAL,
    holdout_f1 REAL,
    artifact_path TEXT,
    data_points INTEGER,
    trained_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    sepal_length REAL,
    sepal_width REAL,
    petal_length REAL,
    petal_width REAL,
    predicted_label INTEGER,
    species VARCHAR(20),
    confidence REAL,
    source VARCHAR(20),
    timestamp DATETIME NOT NULL
);
`

// Store keeps the training and prediction history in SQLite.
type Store struct {
	database *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{database: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}

type TrainingLog struct {
	RunID           string    `json:"run_id"`
	ModelName       string    `json:"model_name"`
	CVAccuracyMean  float64   `json:"cv_accuracy_mean"`
	CVAccuracyStd   float64   `json:"cv_accuracy_std"`
	CVF1Mean        float64   `json:"cv_f1_mean"`
	CVF1Std         float64   `json:"cv_f1_std"`
	HoldoutAccuracy float64   `json:"holdout_accuracy"`
	HoldoutF1       float64   `json:"holdout_f1"`
	ArtifactPath    string    `json:"artifact_path"`
	DataPoints      int       `json:"data_points"`
	TrainedAt       time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	if log.RunID == "" {
		return errors.New("run id required")
	}
	_, err := s.database.ExecContext(ctx, `
        INSERT INTO training_log (
            run_id, model_name, cv_accuracy_mean, cv_accuracy_std, cv_f1_mean, cv_f1_std,
            holdout_accuracy, holdout_f1, artifact_path, data_points, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RunID, log.ModelName, log.CVAccuracyMean, log.CVAccuracyStd, log.CVF1Mean, log.CVF1Std,
		log.HoldoutAccuracy, log.HoldoutF1, log.ArtifactPath, log.DataPoints, log.TrainedAt.UTC(),
	)
	return err
}

// LoadTrainingLog returns the most recent runs first. limit <= 0 means all.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT run_id, model_name, cv_accuracy_mean, cv_accuracy_std, cv_f1_mean, cv_f1_std,
               holdout_accuracy, holdout_f1, artifact_path, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.RunID, &log.ModelName, &log.CVAccuracyMean, &log.CVAccuracyStd,
			&log.CVF1Mean, &log.CVF1Std, &log.HoldoutAccuracy, &log.HoldoutF1,
			&log.ArtifactPath, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// LatestTrainingLog returns nil when no run was recorded yet.
func (s *Store) LatestTrainingLog(ctx context.Context) (*TrainingLog, error) {
	logs, err := s.LoadTrainingLog(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

type PredictionRecord struct {
	RunID      string     `json:"run_id"`
	Features   [4]float64 `json:"features"`
	Label      int        `json:"label"`
	Species    string     `json:"species"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (s *Store) SavePrediction(ctx context.Context, record PredictionRecord) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	_, err := s.database.ExecContext(ctx, `
        INSERT INTO predictions (
            run_id, sepal_length, sepal_width, petal_length, petal_width,
            predicted_label, species, confidence, source, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID, record.Features[0], record.Features[1], record.Features[2], record.Features[3],
		record.Label, record.Species, record.Confidence, record.Source, record.Timestamp.UTC(),
	)
	return err
}

// RecentPredictions returns the latest predictions first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT run_id, sepal_length, sepal_width, petal_length, petal_width,
               predicted_label, species, confidence, source, timestamp
        FROM predictions
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		if err := rows.Scan(&r.RunID, &r.Features[0], &r.Features[1], &r.Features[2], &r.Features[3],
			&r.Label, &r.Species, &r.Confidence, &r.Source, &r.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

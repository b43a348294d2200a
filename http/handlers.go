package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"irislab/db"
	"irislab/ml"
	"irislab/monitoring"
	"irislab/pipeline"
)

// ModelCache 模型缓存
type ModelCache interface {
	pipeline.ArtifactSource
	Purge()
}

// History 训练与预测记录
type History interface {
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
	LatestTrainingLog(ctx context.Context) (*db.TrainingLog, error)
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// App 处理器依赖
type App struct {
	Predictor *pipeline.Predictor
	Cache     ModelCache
	History   History
	Metrics   *monitoring.MetricsCollector
	Sessions  *SessionStore
	Logger    *zap.Logger
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// RegisterHandlers 注册JSON API
func RegisterHandlers(mux *http.ServeMux, app *App) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/predict", app.handlePredict)
	mux.HandleFunc("GET /api/model", app.handleModel)
	mux.HandleFunc("GET /api/training_log", app.handleTrainingLog)
	mux.HandleFunc("GET /api/predictions", app.handlePredictions)
	mux.HandleFunc("GET /api/metrics", app.handleMetrics)
	mux.HandleFunc("POST /api/model/reload", app.handleReload)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// PredictRequest 预测请求
type PredictRequest struct {
	Features []float64 `json:"features"`
}

// PredictResponse 预测结果
type PredictResponse struct {
	RunID         string             `json:"run_id,omitempty"`
	Label         int                `json:"label"`
	Species       string             `json:"species"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func newPredictResponse(p *pipeline.Prediction) PredictResponse {
	probs := make(map[string]float64, len(p.ClassNames))
	for i, name := range p.ClassNames {
		probs[name] = p.Probabilities[i]
	}
	return PredictResponse{
		RunID:         p.RunID,
		Label:         p.Label,
		Species:       p.Species,
		Confidence:    p.Confidence(),
		Probabilities: probs,
	}
}

func (a *App) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	ctx := pipeline.WithSource(r.Context(), "api")
	pred, err := a.Predictor.Predict(ctx, req.Features)
	if err != nil {
		a.logFailure(r, err)
		respondError(w, r, statusFor(err), err)
		return
	}
	respondJSON(w, newPredictResponse(pred))
}

// ModelInfo 模型描述
type ModelInfo struct {
	RunID         string                `json:"run_id,omitempty"`
	FormatVersion int                   `json:"format_version"`
	TrainedAt     time.Time             `json:"trained_at"`
	NSamples      int                   `json:"n_samples"`
	FeatureNames  []string              `json:"feature_names"`
	ClassNames    []string              `json:"class_names"`
	Scaler        map[string][2]float64 `json:"scaler"`
	C             float64               `json:"c"`
	MaxIter       int                   `json:"max_iter"`
	NIter         int                   `json:"n_iter"`
	Converged     bool                  `json:"converged"`
}

func (a *App) handleModel(w http.ResponseWriter, r *http.Request) {
	artifact, err := a.Predictor.Artifact()
	if err != nil {
		respondError(w, r, statusFor(err), err)
		return
	}
	clf := artifact.Pipeline.Classifier
	respondJSON(w, ModelInfo{
		RunID:         artifact.RunID,
		FormatVersion: artifact.FormatVersion,
		TrainedAt:     artifact.TrainedAt,
		NSamples:      artifact.NSamples,
		FeatureNames:  artifact.FeatureNames,
		ClassNames:    artifact.ClassNames,
		Scaler:        artifact.Pipeline.Scaler.FeatureStats(artifact.FeatureNames),
		C:             clf.C,
		MaxIter:       clf.MaxIter,
		NIter:         clf.NIter,
		Converged:     clf.Converged,
	})
}

func (a *App) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		respondError(w, r, http.StatusServiceUnavailable, errors.New("training history not available"))
		return
	}
	logs, err := a.History.LoadTrainingLog(r.Context(), queryLimit(r, 20))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []db.TrainingLog{}
	}
	respondJSON(w, map[string]interface{}{
		"runs":  logs,
		"count": len(logs),
	})
}

func (a *App) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		respondError(w, r, http.StatusServiceUnavailable, errors.New("prediction history not available"))
		return
	}
	records, err := a.History.RecentPredictions(r.Context(), queryLimit(r, 50))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []db.PredictionRecord{}
	}
	respondJSON(w, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
	})
}

func queryLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			return l
		}
	}
	return def
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.Metrics == nil {
		respondError(w, r, http.StatusServiceUnavailable, errors.New("metrics not enabled"))
		return
	}
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(a.Metrics.ExportPrometheus()))
		return
	}
	respondJSON(w, a.Metrics.Snapshot())
}

// handleReload 清空模型缓存，下次请求重新读取文件
func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	if a.Cache != nil {
		a.Cache.Purge()
	}
	a.logger().Info("model cache purged", zap.String("request_id", GetRequestID(r.Context())))
	respondJSON(w, map[string]string{"status": "reloaded"})
}

func (a *App) logFailure(r *http.Request, err error) {
	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	}
	if statusFor(err) >= http.StatusInternalServerError {
		a.logger().Error("prediction failed", fields...)
		return
	}
	a.logger().Warn("prediction rejected", fields...)
}

// statusFor 错误到HTTP状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrArtifactNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON 编码成功后才写出状态码
func respondJSON(w http.ResponseWriter, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("failed to encode JSON", zap.Error(err))
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(body, '\n'))
}

func respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":      err.Error(),
		"request_id": GetRequestID(r.Context()),
	})
}

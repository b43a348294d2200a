// Package monitoring 提供预测服务的进程内指标
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric 指标
type Metric struct {
	Name   string            `json:"name"`
	Type   MetricType        `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
	Help   string            `json:"help,omitempty"`
}

// LatencyStats 延迟统计
type LatencyStats struct {
	Count  int64   `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// Snapshot 指标快照
type Snapshot struct {
	Predictions map[string]int64 `json:"predictions"`
	Sources     map[string]int64 `json:"sources"`
	Errors      map[string]int64 `json:"errors"`
	Latency     LatencyStats     `json:"latency"`
	Goroutines  int              `json:"goroutines"`
	Uptime      string           `json:"uptime"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu          sync.RWMutex
	predictions map[string]int64
	sources     map[string]int64
	errors      map[string]int64
	latencySum  time.Duration
	latencyMax  time.Duration
	latencyN    int64
	startTime   time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		predictions: make(map[string]int64),
		sources:     make(map[string]int64),
		errors:      make(map[string]int64),
		startTime:   time.Now(),
	}
}

// RecordPrediction 记录一次预测
func (mc *MetricsCollector) RecordPrediction(species, source string, latency time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.predictions[species]++
	if source != "" {
		mc.sources[source]++
	}
	mc.latencyN++
	mc.latencySum += latency
	if latency > mc.latencyMax {
		mc.latencyMax = latency
	}
}

// RecordError 记录错误
func (mc *MetricsCollector) RecordError(kind string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.errors[kind]++
}

// Snapshot 获取当前指标
func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := Snapshot{
		Predictions: copyCounts(mc.predictions),
		Sources:     copyCounts(mc.sources),
		Errors:      copyCounts(mc.errors),
		Goroutines:  runtime.NumGoroutine(),
		Uptime:      time.Since(mc.startTime).Round(time.Second).String(),
	}
	snap.Latency.Count = mc.latencyN
	if mc.latencyN > 0 {
		snap.Latency.MeanMs = float64(mc.latencySum) / float64(mc.latencyN) / float64(time.Millisecond)
		snap.Latency.MaxMs = float64(mc.latencyMax) / float64(time.Millisecond)
	}
	return snap
}

// Metrics 以扁平列表形式导出
func (mc *MetricsCollector) Metrics() []Metric {
	snap := mc.Snapshot()
	metrics := make([]Metric, 0, len(snap.Predictions)+len(snap.Errors)+2)
	for _, species := range sortedKeys(snap.Predictions) {
		metrics = append(metrics, Metric{
			Name:   "iris_predictions_total",
			Type:   MetricTypeCounter,
			Value:  float64(snap.Predictions[species]),
			Labels: map[string]string{"species": species},
			Help:   "Predictions served per species",
		})
	}
	for _, kind := range sortedKeys(snap.Errors) {
		metrics = append(metrics, Metric{
			Name:   "iris_errors_total",
			Type:   MetricTypeCounter,
			Value:  float64(snap.Errors[kind]),
			Labels: map[string]string{"kind": kind},
			Help:   "Failed requests per error kind",
		})
	}
	metrics = append(metrics,
		Metric{Name: "iris_prediction_latency_mean_ms", Type: MetricTypeGauge, Value: snap.Latency.MeanMs, Help: "Mean prediction latency"},
		Metric{Name: "iris_goroutines", Type: MetricTypeGauge, Value: float64(snap.Goroutines), Help: "Number of goroutines"},
	)
	return metrics
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	described := make(map[string]bool)
	for _, metric := range mc.Metrics() {
		if !described[metric.Name] {
			fmt.Fprintf(&b, "# HELP %s %s\n", metric.Name, metric.Help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", metric.Name, metric.Type)
			described[metric.Name] = true
		}
		labels := ""
		if len(metric.Labels) > 0 {
			pairs := make([]string, 0, len(metric.Labels))
			for _, k := range sortedKeys(metric.Labels) {
				pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, metric.Labels[k]))
			}
			labels = "{" + strings.Join(pairs, ",") + "}"
		}
		fmt.Fprintf(&b, "%s%s %g\n", metric.Name, labels, metric.Value)
	}
	return b.String()
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

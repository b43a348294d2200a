package http

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"irislab/dataset"
	"irislab/ml"
	"irislab/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"measure": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}).ParseFS(templateFS, "templates/*.html"))

const (
	inputMin  = 0.0
	inputMax  = 10.0
	inputStep = 0.1

	infoMessage    = "Enter realistic measurements (0-10 cm), then press Predict."
	missingMessage = "The model has not been trained yet. Run `iris train` and try again."
)

// 表单默认值，与特征顺序一致
var defaultMeasurements = []float64{5.1, 3.5, 1.4, 0.2}

var titleCaser = cases.Title(language.English)

type fieldView struct {
	Name  string
	Label string
	Value string
	Min   float64
	Max   float64
	Step  float64
}

type probabilityRow struct {
	Species     string
	Probability string
}

type resultView struct {
	Species string
	Rows    []probabilityRow
}

type metricView struct {
	Label string
	Value string
}

type landingView struct {
	Title     string
	Subtitle  string
	Highlight string
	Bullets   []string
	Metrics   []metricView
	CTALabel  string
}

type pageData struct {
	Landing *landingView
	Fields  []fieldView
	Info    string
	Error   string
	Result  *resultView
}

// RegisterFormHandlers 注册网页表单
func RegisterFormHandlers(mux *http.ServeMux, app *App) {
	mux.HandleFunc("GET /{$}", app.handleIndex)
	mux.HandleFunc("POST /proceed", app.handleProceed)
	mux.HandleFunc("POST /predict", app.handleFormPredict)
}

// FieldLabel 特征名转表单标签，如 sepal_length -> Sepal Length (cm)
func FieldLabel(feature string) string {
	return titleCaser.String(strings.ReplaceAll(feature, "_", " ")) + " (cm)"
}

// clampMeasurement 把输入限制在表单范围内，仅用于显示
func clampMeasurement(v float64) float64 {
	return math.Min(inputMax, math.Max(inputMin, v))
}

func formFields(values []float64) []fieldView {
	raw := make([]string, len(values))
	for i, v := range values {
		raw[i] = strconv.FormatFloat(clampMeasurement(v), 'f', -1, 64)
	}
	return submittedFields(raw)
}

// submittedFields 原样回显用户输入
func submittedFields(raw []string) []fieldView {
	names := dataset.FeatureNames()
	fields := make([]fieldView, len(names))
	for i, name := range names {
		fields[i] = fieldView{
			Name:  name,
			Label: FieldLabel(name),
			Value: raw[i],
			Min:   inputMin,
			Max:   inputMax,
			Step:  inputStep,
		}
	}
	return fields
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	if a.Sessions != nil {
		session := a.Sessions.Get(w, r)
		if !session.Proceeded() {
			a.render(w, http.StatusOK, pageData{Landing: a.landing(r)})
			return
		}
	}
	a.render(w, http.StatusOK, pageData{
		Fields: formFields(defaultMeasurements),
		Info:   infoMessage,
	})
}

func (a *App) handleProceed(w http.ResponseWriter, r *http.Request) {
	if a.Sessions != nil {
		a.Sessions.Get(w, r).MarkProceeded()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.render(w, http.StatusBadRequest, pageData{
			Fields: formFields(defaultMeasurements),
			Error:  "Could not read the submitted form.",
		})
		return
	}
	names := dataset.FeatureNames()
	raw := make([]string, len(names))
	for i, name := range names {
		raw[i] = r.PostForm.Get(name)
	}

	sample, err := pipeline.ParseSample(raw)
	if err != nil {
		a.render(w, http.StatusBadRequest, pageData{
			Fields: submittedFields(raw),
			Error:  err.Error(),
		})
		return
	}
	fields := formFields(sample)

	pred, err := a.Predictor.Predict(pipeline.WithSource(r.Context(), "web"), sample)
	if err != nil {
		a.logFailure(r, err)
		message := "Prediction failed."
		if errors.Is(err, ml.ErrArtifactNotFound) {
			message = missingMessage
		}
		a.render(w, statusFor(err), pageData{Fields: fields, Error: message})
		return
	}

	result := &resultView{Species: pred.Species}
	for i, name := range pred.ClassNames {
		result.Rows = append(result.Rows, probabilityRow{
			Species:     name,
			Probability: fmt.Sprintf("%.3f", pred.Probabilities[i]),
		})
	}
	a.render(w, http.StatusOK, pageData{Fields: fields, Result: result})
}

// landing 引导页内容，指标取自最近一次训练
func (a *App) landing(r *http.Request) *landingView {
	view := &landingView{
		Title:     "Iris Predictor Studio",
		Subtitle:  "Understand the data, follow the training, then try a prediction in two clicks.",
		Highlight: "Guided tour",
		Bullets: []string{
			"Glance at the Iris dataset and what separates each species",
			"Follow the learning process step by step",
			"Try a prediction without knowing anything about machine learning",
		},
		CTALabel: "Open the prediction form",
	}
	if a.History == nil {
		return view
	}
	run, err := a.History.LatestTrainingLog(r.Context())
	if err != nil {
		a.logger().Warn("failed to load latest training run", zap.Error(err))
		return view
	}
	if run == nil {
		view.Metrics = []metricView{{Label: "Model", Value: "not trained yet"}}
		return view
	}
	view.Metrics = []metricView{
		{Label: "Accuracy CV", Value: ml.Summary{Mean: run.CVAccuracyMean, Std: run.CVAccuracyStd}.String()},
		{Label: "F1-macro CV", Value: ml.Summary{Mean: run.CVF1Mean, Std: run.CVF1Std}.String()},
		{Label: "Hold-out accuracy", Value: fmt.Sprintf("%.3f", run.HoldoutAccuracy)},
	}
	return view
}

func (a *App) render(w http.ResponseWriter, status int, data pageData) {
	var b strings.Builder
	if err := pages.ExecuteTemplate(&b, "index.html", data); err != nil {
		a.logger().Error("failed to render page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(b.String()))
}

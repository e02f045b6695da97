package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalogbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration     *prom.HistogramVec
	buildDuration     prom.Histogram
	stageResults      *prom.CounterVec
	buildOutcome      *prom.CounterVec
	documentResults   *prom.CounterVec
	leafDuration      *prom.HistogramVec
	leafResults       *prom.CounterVec
	workerConcurrency prom.Gauge
	catalogSize       *prom.GaugeVec
	identifiers       prom.Counter
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		documentResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "source_documents_total",
			Help:      "Source documents by load result",
		}, []string{"result"}),
		leafDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "leaf_task_duration_seconds",
			Help:      "Duration of per-filament descriptor and render tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		leafResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "leaf_task_results_total",
			Help:      "Per-filament task results",
		}, []string{"result"}),
		workerConcurrency: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_concurrency",
			Help:      "Peak observed worker concurrency of the last build",
		}),
		catalogSize: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entities",
			Help:      "Catalog entities after the last merge by level",
		}, []string{"level"}),
		identifiers: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "identifiers_assigned_total",
			Help:      "Filament identifiers minted by backfill",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.documentResults, pr.leafDuration, pr.leafResults, pr.workerConcurrency, pr.catalogSize, pr.identifiers)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncDocumentResult(result ResultLabel) {
	p.documentResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveLeafDuration(d time.Duration, success bool) {
	p.leafDuration.WithLabelValues(successLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncLeafResult(result ResultLabel) {
	p.leafResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetWorkerConcurrency(n int) {
	p.workerConcurrency.Set(float64(n))
}

func (p *PrometheusRecorder) SetCatalogSize(producers, materials, filaments int) {
	p.catalogSize.WithLabelValues("producer").Set(float64(producers))
	p.catalogSize.WithLabelValues("material").Set(float64(materials))
	p.catalogSize.WithLabelValues("filament").Set(float64(filaments))
}

func (p *PrometheusRecorder) AddIdentifiersAssigned(n int) {
	p.identifiers.Add(float64(n))
}

func successLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

package pclod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	terrainLabel = "terrain"
	kindLabel    = "kind"
)

var (
	zonesLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pclod_zones_loaded",
		Help: "The number of zones whose samples are in memory.",
	}, []string{terrainLabel})

	zonesVisible = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pclod_zones_visible",
		Help: "The number of zones inside the visible window.",
	}, []string{terrainLabel})

	renderersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pclod_renderers_active",
		Help: "The number of zone renderers registered for drawing.",
	}, []string{terrainLabel})

	texturesLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pclod_textures_live",
		Help: "The number of GPU textures per resource kind.",
	}, []string{terrainLabel, kindLabel})

	zoneLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pclod_zone_loads_total",
		Help: "The total number of zone payload reads.",
	}, []string{terrainLabel})

	refreshSlipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pclod_refresh_slips_total",
		Help: "The total number of refresh iterations that overran their period.",
	}, []string{terrainLabel})

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pclod_refresh_duration_seconds",
		Help:    "The duration of refresh iterations.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{terrainLabel})
)

// terrainMetrics binds the collectors to one terrain instance. A nil
// value records nothing.
type terrainMetrics struct {
	instance string
}

func newTerrainMetrics(instance string) *terrainMetrics {
	return &terrainMetrics{instance: instance}
}

func (m *terrainMetrics) zoneLoaded() {
	if m == nil {
		return
	}
	zonesLoaded.WithLabelValues(m.instance).Inc()
	zoneLoadsTotal.WithLabelValues(m.instance).Inc()
}

func (m *terrainMetrics) zoneUnloaded() {
	if m == nil {
		return
	}
	zonesLoaded.WithLabelValues(m.instance).Dec()
}

func (m *terrainMetrics) visibleZones(n int) {
	if m == nil {
		return
	}
	zonesVisible.WithLabelValues(m.instance).Set(float64(n))
}

func (m *terrainMetrics) renderers(n int) {
	if m == nil {
		return
	}
	renderersActive.WithLabelValues(m.instance).Set(float64(n))
}

func (m *terrainMetrics) textureCreated(kind ResourceKind) {
	if m == nil {
		return
	}
	texturesLive.WithLabelValues(m.instance, kind.String()).Inc()
}

func (m *terrainMetrics) textureDeleted(kind ResourceKind) {
	if m == nil {
		return
	}
	texturesLive.WithLabelValues(m.instance, kind.String()).Dec()
}

func (m *terrainMetrics) refreshed(seconds float64, slipped bool) {
	if m == nil {
		return
	}
	refreshDuration.WithLabelValues(m.instance).Observe(seconds)
	if slipped {
		refreshSlipsTotal.WithLabelValues(m.instance).Inc()
	}
}

// forget drops every series of the instance.
func (m *terrainMetrics) forget() {
	if m == nil {
		return
	}
	labels := prometheus.Labels{terrainLabel: m.instance}
	zonesLoaded.DeletePartialMatch(labels)
	zonesVisible.DeletePartialMatch(labels)
	renderersActive.DeletePartialMatch(labels)
	texturesLive.DeletePartialMatch(labels)
	zoneLoadsTotal.DeletePartialMatch(labels)
	refreshSlipsTotal.DeletePartialMatch(labels)
	refreshDuration.DeletePartialMatch(labels)
}

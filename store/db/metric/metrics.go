// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	QueryCounter             = "store_query_count"
	QueryDurationHistogram   = "store_query_duration_seconds"
	ConsumedCapacityCounter  = "store_consumed_capacity"
	BundleRollbackCounter    = "bundle_rollback_count"
	ExportAdmissionCounter   = "export_admission_count"
	defaultDurationBucketMax = 10
)

// Label Values
const (
	AdmittedOutcome     = "admitted"
	ThrottledOutcome    = "throttled"
	UnauthorizedOutcome = "unauthorized"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: QueryCounter,
				Help: "The total number of store calls, by call type and outcome.",
			},
			store.TypeLabel,
			store.OutcomeLabel,
		),
		touchstone.HistogramVec(
			prometheus.HistogramOpts{
				Name:    QueryDurationHistogram,
				Help:    "A histogram of latencies for store calls.",
				Buckets: []float64{0.0625, 0.125, .25, .5, 1, 5, defaultDurationBucketMax},
			},
			store.TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: ConsumedCapacityCounter,
				Help: "The number of capacity units consumed by the operation.",
			},
			store.TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: BundleRollbackCounter,
				Help: "The number of bundles that needed compensation, by bundle mode.",
			},
			store.ModeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: ExportAdmissionCounter,
				Help: "The number of export initiation requests, by admission outcome.",
			},
			store.OutcomeLabel,
		),
	)
}

type Measures struct {
	fx.In
	Queries          *prometheus.CounterVec `name:"store_query_count"`
	QueryDuration    prometheus.ObserverVec `name:"store_query_duration_seconds"`
	ConsumedCapacity *prometheus.CounterVec `name:"store_consumed_capacity"`
	BundleRollbacks  *prometheus.CounterVec `name:"bundle_rollback_count"`
	ExportAdmissions *prometheus.CounterVec `name:"export_admission_count"`
}

// NewMeasures builds unregistered metrics, for tests and tools running
// outside of the fx container.
func NewMeasures() Measures {
	return Measures{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{Name: QueryCounter}, []string{store.TypeLabel, store.OutcomeLabel}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    QueryDurationHistogram,
			Buckets: []float64{0.0625, 0.125, .25, .5, 1, 5, defaultDurationBucketMax},
		}, []string{store.TypeLabel}),
		ConsumedCapacity: prometheus.NewCounterVec(prometheus.CounterOpts{Name: ConsumedCapacityCounter}, []string{store.TypeLabel}),
		BundleRollbacks:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: BundleRollbackCounter}, []string{store.ModeLabel}),
		ExportAdmissions: prometheus.NewCounterVec(prometheus.CounterOpts{Name: ExportAdmissionCounter}, []string{store.OutcomeLabel}),
	}
}

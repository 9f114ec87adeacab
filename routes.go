// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/arrange/arrangehttp"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/httpaux"
	"github.com/xmidt-org/httpaux/recovery"
	"github.com/xmidt-org/hygieia/api"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/fx"
)

const (
	defaultPrimaryAddress = ":6600"
	defaultHealthAddress  = ":6601"
	defaultMetricsAddress = ":6602"
	defaultHealthPath     = "/health"
	defaultMetricsPath    = "/metrics"
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 60 * time.Second

	recoveryStatusCode = 555
)

// HealthPath is the route the health server answers on.
type HealthPath string

// MetricsPath is the route the metrics server answers on.
type MetricsPath string

type MiddlewareIn struct {
	fx.In
	PrimaryMetrics touchhttp.ServerInstrumenter `name:"servers.primary.metrics"`
	HealthMetrics  touchhttp.ServerInstrumenter `name:"servers.health.metrics"`
	Tracing        candlelight.Tracing
}

type MiddlewareOut struct {
	fx.Out
	Primary alice.Chain `name:"servers.primary.middleware"`
	Health  alice.Chain `name:"servers.health.middleware"`
}

func provideMiddleware(in MiddlewareIn) MiddlewareOut {
	options := []otelmux.Option{
		otelmux.WithTracerProvider(in.Tracing.TracerProvider()),
		otelmux.WithPropagators(in.Tracing.Propagator()),
	}
	return MiddlewareOut{
		Primary: alice.New(
			recovery.Middleware(recovery.WithStatusCode(recoveryStatusCode)),
			alice.Constructor(otelmux.Middleware("server_primary", options...)),
			alice.Constructor(candlelight.EchoFirstTraceNodeInfo(in.Tracing.Propagator(), false)),
			in.PrimaryMetrics.Then,
		),
		Health: alice.New(in.HealthMetrics.Then),
	}
}

func serverDefaults(address string) arrangehttp.ServerConfig {
	return arrangehttp.ServerConfig{
		Address:      address,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
}

// provideServers binds the primary, health and metrics servers to the
// application lifecycle. Each one is configured from servers.<name>.
func provideServers() fx.Option {
	return fx.Options(
		fx.Provide(provideMiddleware),
		arrangehttp.Server{
			Name:          "servers.primary",
			Key:           "servers.primary",
			ServerFactory: serverDefaults(defaultPrimaryAddress),
			Inject: arrange.Inject{
				struct {
					fx.In
					Middleware alice.Chain `name:"servers.primary.middleware"`
				}{},
			},
		}.Provide(),
		arrangehttp.Server{
			Name:          "servers.health",
			Key:           "servers.health",
			ServerFactory: serverDefaults(defaultHealthAddress),
			Inject: arrange.Inject{
				struct {
					fx.In
					Middleware alice.Chain `name:"servers.health.middleware"`
				}{},
			},
		}.Provide(),
		arrangehttp.Server{
			Name:          "servers.metrics",
			Key:           "servers.metrics",
			ServerFactory: serverDefaults(defaultMetricsAddress),
		}.Provide(),
		fx.Invoke(
			BuildPrimaryRoutes,
			BuildHealthRoutes,
			BuildMetricsRoutes,
		),
	)
}

type PrimaryRoutesIn struct {
	fx.In
	Router   *mux.Router `name:"servers.primary"`
	Handlers api.Handlers
}

func BuildPrimaryRoutes(in PrimaryRoutesIn) {
	api.ConfigureRoutes(in.Router.PathPrefix(api.APIBase).Subrouter(), in.Handlers)
}

type HealthRoutesIn struct {
	fx.In
	Router *mux.Router `name:"servers.health"`
	Path   HealthPath
}

func BuildHealthRoutes(in HealthRoutesIn) {
	in.Router.Handle(string(in.Path), httpaux.ConstantHandler{
		StatusCode: http.StatusOK,
	}).Methods(http.MethodGet)
}

type MetricsRoutesIn struct {
	fx.In
	Router   *mux.Router `name:"servers.metrics"`
	Path     MetricsPath
	Gatherer prometheus.Gatherer
}

func BuildMetricsRoutes(in MetricsRoutesIn) {
	in.Router.Handle(string(in.Path), promhttp.HandlerFor(in.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

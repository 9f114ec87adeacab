// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/hygieia/api"
	"github.com/xmidt-org/hygieia/export"
	"github.com/xmidt-org/hygieia/persistence"
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"github.com/xmidt-org/hygieia/store/dynamodb"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	applicationName = "hygieia"
)

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

// ConfigOut unpacks the configuration file into the values each component
// asks the container for.
type ConfigOut struct {
	fx.Out

	Store           store.Config
	DB              db.Configs
	Results         *export.ResultsConfig
	InputValidation api.InputValidationConfig
	Export          api.ExportConfig
	Touchstone      touchstone.Config
	HealthPath      HealthPath
	MetricsPath     MetricsPath
}

func unmarshalConfig(v *viper.Viper) (out ConfigOut, err error) {
	if err = v.UnmarshalKey("persistence", &out.Store); err != nil {
		return
	}
	out.Store = out.Store.WithDefaults()

	if v.IsSet("dynamo") {
		out.DB.Dynamo = new(dynamodb.Config)
		if err = v.UnmarshalKey("dynamo", out.DB.Dynamo); err != nil {
			return
		}
	}
	if v.IsSet("exportResults") {
		out.Results = new(export.ResultsConfig)
		if err = v.UnmarshalKey("exportResults", out.Results); err != nil {
			return
		}
	}
	if err = v.UnmarshalKey("inputValidation", &out.InputValidation); err != nil {
		return
	}
	if err = v.UnmarshalKey("export", &out.Export); err != nil {
		return
	}
	if err = v.UnmarshalKey("prometheus", &out.Touchstone); err != nil {
		return
	}
	out.HealthPath = HealthPath(v.GetString("servers.health.path"))
	if out.HealthPath == "" {
		out.HealthPath = defaultHealthPath
	}
	out.MetricsPath = MetricsPath(v.GetString("servers.metrics.path"))
	if out.MetricsPath == "" {
		out.MetricsPath = defaultMetricsPath
	}
	return
}

func provideTracingConfig(u arrange.Unmarshaler) (candlelight.Config, error) {
	var config candlelight.Config
	if err := u.UnmarshalKey("tracing", &config); err != nil {
		return candlelight.Config{}, err
	}
	config.ApplicationName = applicationName
	return config, nil
}

func main() {
	v, logger, err := setup(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		arrange.ForViper(v),
		fx.Supply(logger, v),
		fx.Provide(
			unmarshalConfig,
			provideTracingConfig,
			candlelight.New,
		),
		touchstone.Provide(),
		provideMetrics(),
		metric.ProvideMetrics(),
		db.Provide(),
		persistence.Provide(),
		export.Provide(),
		api.ProvideHandlers(),
		provideServers(),
	)

	switch err := app.Err(); {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err == nil:
		app.Run()
	default:
		logger.Error("failed to start", zap.Error(err))
		os.Exit(2)
	}
}

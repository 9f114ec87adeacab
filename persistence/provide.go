// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceIn struct {
	fx.In
	Store    store.S
	Config   store.Config
	Measures metric.Measures
	Logger   *zap.Logger
}

type ServiceOut struct {
	fx.Out
	Bundler     *Bundler
	DataService *DataService
}

// Provide builds the bundle and single resource services.
func Provide() fx.Option {
	return fx.Provide(NewServices)
}

func NewServices(in ServiceIn) ServiceOut {
	bundler := NewBundler(in.Store, in.Config, in.Measures.BundleRollbacks, in.Logger)
	return ServiceOut{
		Bundler:     bundler,
		DataService: NewDataService(in.Store, bundler, in.Config, in.Logger),
	}
}

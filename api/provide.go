// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/xmidt-org/hygieia/export"
	"github.com/xmidt-org/hygieia/persistence"
	"github.com/xmidt-org/hygieia/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// APIBase is the path prefix every route is mounted under.
const APIBase = "/api/v1"

type HandlersIn struct {
	fx.In

	Resources       *persistence.DataService
	Bundles         *persistence.Bundler
	Exports         *export.Controller
	InputValidation InputValidationConfig `optional:"true"`
	Export          ExportConfig          `optional:"true"`
	Store           store.Config
	Logger          *zap.Logger
}

// ProvideHandlers fetches all dependencies and builds the API handlers.
func ProvideHandlers() fx.Option {
	return fx.Provide(NewHandlers)
}

func NewHandlers(in HandlersIn) (Handlers, error) {
	config, err := newTransportConfig(in.InputValidation, in.Export, in.Store)
	if err != nil {
		return Handlers{}, err
	}
	return newHandlers(in.Resources, in.Bundles, in.Exports, config, APIBase, in.Logger), nil
}

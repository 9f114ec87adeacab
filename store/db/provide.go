// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"github.com/xmidt-org/hygieia/store/dynamodb"
	"github.com/xmidt-org/hygieia/store/inmem"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Configs struct {
	Dynamo *dynamodb.Config
}

type SetupIn struct {
	fx.In
	Configs  Configs
	Store    store.Config
	Measures metric.Measures
	Logger   *zap.Logger
}

type SetupOut struct {
	fx.Out
	S        store.S
	JobStore store.JobStore
}

func Provide() fx.Option {
	return fx.Options(
		fx.Provide(
			SetupStore,
		),
	)
}

func SetupStore(in SetupIn) (SetupOut, error) {
	backend, err := NewBackend(in.Configs, in.Store, in.Measures, in.Logger)
	if err != nil {
		return SetupOut{}, err
	}
	return SetupOut{S: backend, JobStore: backend}, nil
}

// NewBackend picks dynamodb when it is configured and the in memory store
// otherwise.
func NewBackend(configs Configs, storeConfig store.Config, measures metric.Measures, logger *zap.Logger) (store.Backend, error) {
	if configs.Dynamo != nil {
		logger.Info("using dynamodb store implementation")
		return dynamodb.NewDynamoDB(*configs.Dynamo, storeConfig, measures, logger)
	}
	logger.Info("using in memory store implementation")
	return inmem.NewInMem(), nil
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"

	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ControllerIn struct {
	fx.In
	Jobs     store.JobStore
	Config   store.Config
	Results  *ResultsConfig `optional:"true"`
	Measures metric.Measures
	Logger   *zap.Logger
}

// Provide builds the export Controller. Without a results bucket, completed
// jobs are reported with no file URLs.
func Provide() fx.Option {
	return fx.Provide(NewControllerFromConfig)
}

func NewControllerFromConfig(in ControllerIn) (*Controller, error) {
	var results ResultsReader
	if in.Results != nil && in.Results.Bucket != "" {
		r, err := NewS3Results(context.Background(), *in.Results)
		if err != nil {
			return nil, err
		}
		results = r
		in.Logger.Info("export results are read from s3", zap.String("bucket", in.Results.Bucket))
	}
	return NewController(in.Jobs, results, in.Config, in.Measures.ExportAdmissions, in.Logger), nil
}

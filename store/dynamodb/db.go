// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// Config is the connection block of the dynamodb backend.
type Config struct {
	Endpoint   string
	Region     string
	MaxRetries int
	AccessKey  string
	SecretKey  string
}

// NewDynamoDB builds a dynamodb backed store whose client calls are
// instrumented and debug logged.
func NewDynamoDB(config Config, storeConfig store.Config, measures metric.Measures, logger *zap.Logger) (store.Backend, error) {
	validateConfig(&config)
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(config.MaxRetries),
	}
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	var c client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})
	c = newInstrumentingClient(measures, c, time.Now)
	c = newLoggingClient(logger, c)
	return newExecutor(c, storeConfig), nil
}

func validateConfig(config *Config) {
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
}

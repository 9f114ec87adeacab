// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// loggingClient debug logs the queries and multi-item calls.
type loggingClient struct {
	client
	logger *zap.Logger
}

func newLoggingClient(logger *zap.Logger, c client) client {
	return &loggingClient{client: c, logger: logger}
}

func (c *loggingClient) Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (out *dynamodb.QueryOutput, err error) {
	defer func() {
		var itemsSize int
		if out != nil {
			itemsSize = len(out.Items)
		}
		c.logger.Debug("dynamodb query", zap.String("table", aws.ToString(in.TableName)),
			zap.String("index", aws.ToString(in.IndexName)), zap.Int("itemsSize", itemsSize), zap.Error(err))
	}()
	return c.client.Query(ctx, in, opts...)
}

func (c *loggingClient) BatchExecuteStatement(ctx context.Context, in *dynamodb.BatchExecuteStatementInput, opts ...func(*dynamodb.Options)) (out *dynamodb.BatchExecuteStatementOutput, err error) {
	defer func() {
		var failed int
		if out != nil {
			for _, r := range out.Responses {
				if r.Error != nil {
					failed++
				}
			}
		}
		c.logger.Debug("dynamodb batch statements", zap.Int("statements", len(in.Statements)), zap.Int("failed", failed), zap.Error(err))
	}()
	return c.client.BatchExecuteStatement(ctx, in, opts...)
}

func (c *loggingClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (out *dynamodb.TransactWriteItemsOutput, err error) {
	defer func() {
		c.logger.Debug("dynamodb transact write", zap.Int("items", len(in.TransactItems)), zap.Error(err))
	}()
	return c.client.TransactWriteItems(ctx, in, opts...)
}

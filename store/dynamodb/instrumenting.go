// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
)

// instrumentingClient records call counts, latencies and consumed capacity
// of every dynamodb call.
type instrumentingClient struct {
	client
	measures metric.Measures
	now      func() time.Time
}

func newInstrumentingClient(measures metric.Measures, c client, now func() time.Time) client {
	return &instrumentingClient{client: c, measures: measures, now: now}
}

func (c *instrumentingClient) update(queryType string, start time.Time, err error, consumed ...types.ConsumedCapacity) {
	outcome := store.SuccessOutcome
	if err != nil {
		outcome = store.FailureOutcome
	}
	c.measures.Queries.With(prometheus.Labels{store.TypeLabel: queryType, store.OutcomeLabel: outcome}).Inc()
	c.measures.QueryDuration.With(prometheus.Labels{store.TypeLabel: queryType}).Observe(c.now().Sub(start).Seconds())
	for _, cc := range consumed {
		c.measures.ConsumedCapacity.With(prometheus.Labels{store.TypeLabel: queryType}).Add(aws.ToFloat64(cc.CapacityUnits))
	}
}

func single(cc *types.ConsumedCapacity) []types.ConsumedCapacity {
	if cc == nil {
		return nil
	}
	return []types.ConsumedCapacity{*cc}
}

func (c *instrumentingClient) Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (out *dynamodb.QueryOutput, err error) {
	start := c.now()
	out, err = c.client.Query(ctx, in, opts...)
	var consumed []types.ConsumedCapacity
	if out != nil {
		consumed = single(out.ConsumedCapacity)
	}
	c.update(store.QueryType, start, err, consumed...)
	return out, err
}

func (c *instrumentingClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (out *dynamodb.GetItemOutput, err error) {
	start := c.now()
	out, err = c.client.GetItem(ctx, in, opts...)
	var consumed []types.ConsumedCapacity
	if out != nil {
		consumed = single(out.ConsumedCapacity)
	}
	c.update(store.GetType, start, err, consumed...)
	return out, err
}

func (c *instrumentingClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (out *dynamodb.PutItemOutput, err error) {
	start := c.now()
	out, err = c.client.PutItem(ctx, in, opts...)
	var consumed []types.ConsumedCapacity
	if out != nil {
		consumed = single(out.ConsumedCapacity)
	}
	c.update(store.PutType, start, err, consumed...)
	return out, err
}

func (c *instrumentingClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (out *dynamodb.UpdateItemOutput, err error) {
	start := c.now()
	out, err = c.client.UpdateItem(ctx, in, opts...)
	var consumed []types.ConsumedCapacity
	if out != nil {
		consumed = single(out.ConsumedCapacity)
	}
	c.update(store.UpdateType, start, err, consumed...)
	return out, err
}

func (c *instrumentingClient) BatchExecuteStatement(ctx context.Context, in *dynamodb.BatchExecuteStatementInput, opts ...func(*dynamodb.Options)) (out *dynamodb.BatchExecuteStatementOutput, err error) {
	start := c.now()
	out, err = c.client.BatchExecuteStatement(ctx, in, opts...)
	var consumed []types.ConsumedCapacity
	if out != nil {
		consumed = out.ConsumedCapacity
	}
	c.update(store.BatchExecuteType, start, err, consumed...)
	return out, err
}

func (c *instrumentingClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (out *dynamodb.TransactWriteItemsOutput, err error) {
	start := c.now()
	out, err = c.client.TransactWriteItems(ctx, in, opts...)
	var consumed []types.ConsumedCapacity
	if out != nil {
		consumed = out.ConsumedCapacity
	}
	c.update(store.TransactType, start, err, consumed...)
	return out, err
}

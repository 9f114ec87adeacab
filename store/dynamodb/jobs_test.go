// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

func mustMarshalJob(t *testing.T, job model.ExportJob) map[string]types.AttributeValue {
	item, err := marshalJob(job)
	require.NoError(t, err)
	return item
}

func TestJobItem(t *testing.T) {
	assert := assert.New(t)
	job := model.ExportJob{JobID: "2a937fe2", TenantID: "tenant1", JobOwnerID: "userId-1", JobStatus: model.JobInProgress}
	item := mustMarshalJob(t, job)
	assert.Equal(stringValue("tenant1|2a937fe2"), item[jobIDAttributeKey])

	got, err := unmarshalJob(item)
	assert.NoError(err)
	assert.Equal(job, got)
}

func TestQueryJobsByStatusPaginates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	first := model.ExportJob{JobID: "j1", TenantID: "t1", JobOwnerID: "u1", JobStatus: model.JobInProgress}
	second := model.ExportJob{JobID: "j2", TenantID: "t1", JobOwnerID: "u2", JobStatus: model.JobInProgress}
	lastKey := jobKey("t1", "j1")

	m := new(mockClient)
	m.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return len(in.ExclusiveStartKey) == 0
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{mustMarshalJob(t, first)},
		LastEvaluatedKey: lastKey,
	}, nil).Once()
	m.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return len(in.ExclusiveStartKey) > 0 &&
			aws.ToString(in.IndexName) == store.DefaultExportRequestJobStatusIndex &&
			aws.ToString(in.FilterExpression) == "tenantId = :tenantId"
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{mustMarshalJob(t, second)},
	}, nil).Once()

	jobs, err := newExecutor(m, testConfig).QueryJobsByStatus(ctx, model.JobInProgress, "t1")
	assert.NoError(err)
	assert.Equal([]model.ExportJob{first, second}, jobs)
	m.AssertExpectations(t)
}

func TestPutJob(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	job := model.ExportJob{JobID: "j1", JobOwnerID: "u1", JobStatus: model.JobInProgress}
	m := new(mockClient)
	m.On("PutItem", ctx, &dynamodb.PutItemInput{
		TableName:              aws.String(store.DefaultExportRequestTable),
		Item:                   mustMarshalJob(t, job),
		ConditionExpression:    aws.String("attribute_not_exists(jobId)"),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}).Return(&dynamodb.PutItemOutput{}, nil)
	assert.NoError(newExecutor(m, testConfig).PutJob(ctx, job))
	m.AssertExpectations(t)
}

func TestGetJob(t *testing.T) {
	ctx := context.Background()
	job := model.ExportJob{JobID: "j1", TenantID: "t1", JobOwnerID: "u1", JobStatus: model.JobCompleted}
	tcs := []struct {
		Description   string
		Output        *dynamodb.GetItemOutput
		ExpectedFound bool
		ExpectedJob   model.ExportJob
	}{
		{Description: "Found", Output: &dynamodb.GetItemOutput{Item: mustMarshalJob(t, job)}, ExpectedFound: true, ExpectedJob: job},
		{Description: "Absent", Output: &dynamodb.GetItemOutput{}},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			m := new(mockClient)
			m.On("GetItem", ctx, &dynamodb.GetItemInput{
				TableName:              aws.String(store.DefaultExportRequestTable),
				Key:                    jobKey("t1", "j1"),
				ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
			}).Return(tc.Output, nil)
			got, found, err := newExecutor(m, testConfig).GetJob(ctx, "t1", "j1")
			assert.NoError(err)
			assert.Equal(tc.ExpectedFound, found)
			assert.Equal(tc.ExpectedJob, got)
		})
	}
}

func TestUpdateJobStatus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m := new(mockClient)
	m.On("UpdateItem", ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(store.DefaultExportRequestTable),
		Key:                 jobKey("t1", "j1"),
		UpdateExpression:    aws.String("SET jobStatus = :jobStatus"),
		ConditionExpression: aws.String("attribute_exists(jobId) AND jobStatus IN (:from0, :from1)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jobStatus": stringValue("canceling"),
			":from0":     stringValue("in-progress"),
			":from1":     stringValue("canceling"),
		},
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}).Return(&dynamodb.UpdateItemOutput{}, nil)

	err := newExecutor(m, testConfig).UpdateJobStatus(ctx, "t1", "j1", model.ActiveJobStatuses, model.JobCanceling)
	assert.NoError(err)
	m.AssertExpectations(t)
}

func TestUpdateJobStatusConditionFailed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m := new(mockClient)
	m.On("UpdateItem", ctx, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
	err := newExecutor(m, testConfig).UpdateJobStatus(ctx, "", "j1", []model.JobStatus{model.JobInProgress}, model.JobCanceling)
	assert.ErrorIs(err, store.ErrConditionFailed)

	// nothing to move from
	err = newExecutor(new(mockClient), testConfig).UpdateJobStatus(ctx, "", "j1", nil, model.JobCanceling)
	assert.ErrorIs(err, store.ErrConditionFailed)
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

func (d *executor) QueryJobsByStatus(ctx context.Context, status model.JobStatus, tenantID string) ([]model.ExportJob, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.config.ExportRequestTable),
		IndexName:              aws.String(d.config.ExportRequestJobStatusIndex),
		KeyConditionExpression: aws.String("jobStatus = :jobStatus"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jobStatus": stringValue(string(status)),
		},
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if tenantID != "" {
		input.FilterExpression = aws.String("tenantId = :tenantId")
		input.ExpressionAttributeValues[":tenantId"] = stringValue(tenantID)
	}
	items, err := d.queryAll(ctx, input)
	if err != nil {
		return nil, err
	}
	jobs := make([]model.ExportJob, 0, len(items))
	for _, item := range items {
		job, err := unmarshalJob(item)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (d *executor) PutJob(ctx context.Context, job model.ExportJob) error {
	item, err := marshalJob(job)
	if err != nil {
		return err
	}
	_, err = d.c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:              aws.String(d.config.ExportRequestTable),
		Item:                   item,
		ConditionExpression:    aws.String("attribute_not_exists(jobId)"),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return handleClientError(err)
	}
	return nil
}

func (d *executor) GetJob(ctx context.Context, tenantID, jobID string) (model.ExportJob, bool, error) {
	out, err := d.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(d.config.ExportRequestTable),
		Key:                    jobKey(tenantID, jobID),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return model.ExportJob{}, false, handleClientError(err)
	}
	if len(out.Item) == 0 {
		return model.ExportJob{}, false, nil
	}
	job, err := unmarshalJob(out.Item)
	if err != nil {
		return model.ExportJob{}, false, err
	}
	return job, true, nil
}

// jobStatusCondition renders "jobStatus IN (:from0, ...)" and its values.
func jobStatusCondition(from []model.JobStatus, values map[string]types.AttributeValue) string {
	placeholders := make([]string, 0, len(from))
	for i, status := range from {
		p := fmt.Sprintf(":from%d", i)
		placeholders = append(placeholders, p)
		values[p] = stringValue(string(status))
	}
	return fmt.Sprintf("attribute_exists(jobId) AND jobStatus IN (%s)", strings.Join(placeholders, ", "))
}

func (d *executor) UpdateJobStatus(ctx context.Context, tenantID, jobID string, from []model.JobStatus, status model.JobStatus) error {
	if len(from) == 0 {
		return store.ErrConditionFailed
	}
	values := map[string]types.AttributeValue{
		":jobStatus": stringValue(string(status)),
	}
	_, err := d.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.config.ExportRequestTable),
		Key:                       jobKey(tenantID, jobID),
		UpdateExpression:          aws.String("SET jobStatus = :jobStatus"),
		ConditionExpression:       aws.String(jobStatusCondition(from, values)),
		ExpressionAttributeValues: values,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return handleClientError(err)
	}
	return nil
}

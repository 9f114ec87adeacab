// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cast"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

// Dynamo DB attribute keys
const (
	idAttributeKey                 = "id"
	vidAttributeKey                = "vid"
	resourceTypeAttributeKey       = "resourceType"
	documentStatusAttributeKey     = "documentStatus"
	lockEndTsAttributeKey          = "lockEndTs"
	tenantIDAttributeKey           = "_tenantId"
	logicalIDAttributeKey          = "_id"
	subscriptionStatusAttributeKey = "_subscriptionStatus"
	jobIDAttributeKey              = "jobId"
)

const (
	subscriptionResourceType = "Subscription"
	activeSubscriptionStatus = "active"
)

// internalAttributes are never part of a resource body.
var internalAttributes = []string{
	vidAttributeKey,
	documentStatusAttributeKey,
	lockEndTsAttributeKey,
	tenantIDAttributeKey,
	logicalIDAttributeKey,
	subscriptionStatusAttributeKey,
}

func stringValue(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func versionKey(key model.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		idAttributeKey:  stringValue(store.CompositeID(key.TenantID, key.ID)),
		vidAttributeKey: numberValue(int64(key.VID)),
	}
}

func jobKey(tenantID, jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		jobIDAttributeKey: stringValue(store.CompositeID(tenantID, jobID)),
	}
}

// marshalRecord flattens a version record into a single item: the resource
// body plus the bookkeeping attributes.
func marshalRecord(rec model.VersionRecord) (map[string]types.AttributeValue, error) {
	doc := make(map[string]interface{}, len(rec.Resource)+8)
	for k, v := range rec.Resource {
		doc[k] = v
	}
	doc[idAttributeKey] = store.CompositeID(rec.TenantID, rec.ID)
	doc[vidAttributeKey] = rec.VID
	doc[resourceTypeAttributeKey] = rec.ResourceType
	doc[documentStatusAttributeKey] = string(rec.DocumentStatus)
	doc[lockEndTsAttributeKey] = rec.LockEndTs
	if rec.TenantID != "" {
		doc[tenantIDAttributeKey] = rec.TenantID
		doc[logicalIDAttributeKey] = rec.ID
	}
	if rec.ResourceType == subscriptionResourceType {
		if status, _ := rec.Resource["status"].(string); status == activeSubscriptionStatus {
			doc[subscriptionStatusAttributeKey] = activeSubscriptionStatus
		}
	}
	return attributevalue.MarshalMap(doc)
}

func unmarshalRecord(item map[string]types.AttributeValue) (model.VersionRecord, error) {
	var doc map[string]interface{}
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return model.VersionRecord{}, err
	}
	rec := model.VersionRecord{
		Key: model.Key{
			ID:  cast.ToString(doc[idAttributeKey]),
			VID: cast.ToInt(doc[vidAttributeKey]),
		},
		ResourceType:   cast.ToString(doc[resourceTypeAttributeKey]),
		DocumentStatus: model.DocumentStatus(cast.ToString(doc[documentStatusAttributeKey])),
		LockEndTs:      cast.ToInt64(doc[lockEndTsAttributeKey]),
	}
	if tenantID, ok := doc[tenantIDAttributeKey]; ok {
		rec.TenantID = cast.ToString(tenantID)
		rec.ID = cast.ToString(doc[logicalIDAttributeKey])
	}
	for _, k := range internalAttributes {
		delete(doc, k)
	}
	doc[idAttributeKey] = rec.ID
	rec.Resource = model.Resource(doc)
	return rec, nil
}

// unmarshalResource returns only the cleaned resource body of an item.
func unmarshalResource(item map[string]types.AttributeValue) (model.Resource, error) {
	rec, err := unmarshalRecord(item)
	return rec.Resource, err
}

func marshalJob(job model.ExportJob) (map[string]types.AttributeValue, error) {
	job.JobID = store.CompositeID(job.TenantID, job.JobID)
	return attributevalue.MarshalMap(job)
}

func unmarshalJob(item map[string]types.AttributeValue) (model.ExportJob, error) {
	var job model.ExportJob
	if err := attributevalue.UnmarshalMap(item, &job); err != nil {
		return model.ExportJob{}, err
	}
	if job.TenantID != "" {
		job.JobID = strings.TrimPrefix(job.JobID, job.TenantID+"|")
	}
	return job, nil
}

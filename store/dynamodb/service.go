// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-multierror"
	"github.com/xmidt-org/httpaux/erraux"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

// Item limits of the multi-item calls.
const (
	maxBatchStatements    = 25
	maxTransactWriteItems = 100
)

// client captures the methods of interest from the dynamoDB API. This
// should help mock API calls as well.
type client interface {
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchExecuteStatement(context.Context, *dynamodb.BatchExecuteStatementInput, ...func(*dynamodb.Options)) (*dynamodb.BatchExecuteStatementOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// executor satisfies store.S and store.JobStore on top of a dynamodb client.
type executor struct {
	// c is the dynamodb client
	c client

	config store.Config
}

var (
	_ store.S        = (*executor)(nil)
	_ store.JobStore = (*executor)(nil)
)

var (
	errDefaultDynamoDBFailure = &erraux.Error{
		Err:  errors.New("dynamodb operation failed"),
		Code: http.StatusInternalServerError,
	}
	errBadRequest = &erraux.Error{
		Err:  errors.New("bad request to dynamodb"),
		Code: http.StatusBadRequest,
	}
)

func handleClientError(err error) error {
	var conditionErr *types.ConditionalCheckFailedException
	if errors.As(err, &conditionErr) {
		return store.ErrConditionFailed
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ValidationException":
			return store.SanitizedError{Err: err, ErrHTTP: errBadRequest}
		case "TransactionCanceledException":
			if strings.Contains(apiErr.ErrorMessage(), "ValidationException") {
				return store.SanitizedError{Err: err, ErrHTTP: errBadRequest}
			}
		}
	}
	return store.SanitizedError{Err: err, ErrHTTP: errDefaultDynamoDBFailure}
}

func (d *executor) QueryVersions(ctx context.Context, tenantID, id string, limit int) ([]model.VersionRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.config.ResourceTable),
		KeyConditionExpression: aws.String("id = :hkey"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hkey": stringValue(store.CompositeID(tenantID, id)),
		},
		ScanIndexForward:       aws.Bool(false),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	out, err := d.c.Query(ctx, input)
	if err != nil {
		return nil, handleClientError(err)
	}
	records := make([]model.VersionRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := unmarshalRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d *executor) GetVersion(ctx context.Context, key model.Key) (model.VersionRecord, bool, error) {
	out, err := d.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(d.config.ResourceTable),
		Key:                    versionKey(key),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return model.VersionRecord{}, false, handleClientError(err)
	}
	if len(out.Item) == 0 {
		return model.VersionRecord{}, false, nil
	}
	rec, err := unmarshalRecord(out.Item)
	if err != nil {
		return model.VersionRecord{}, false, err
	}
	return rec, true, nil
}

func (d *executor) PutVersion(ctx context.Context, rec model.VersionRecord, onlyIfAbsent bool) error {
	item, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	input := &dynamodb.PutItemInput{
		TableName:              aws.String(d.config.ResourceTable),
		Item:                   item,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if onlyIfAbsent {
		input.ConditionExpression = aws.String("attribute_not_exists(id)")
	}
	if _, err = d.c.PutItem(ctx, input); err != nil {
		return handleClientError(err)
	}
	return nil
}

// changeCondition renders the condition of a status change, using the given
// placeholders for the from status, the locked status and the stale instant.
func changeCondition(change store.StatusChange, from, locked, staleBefore string) string {
	if change.StaleBefore > 0 {
		return fmt.Sprintf("(documentStatus = %s OR (documentStatus = %s AND lockEndTs < %s))", from, locked, staleBefore)
	}
	return fmt.Sprintf("documentStatus = %s", from)
}

func (d *executor) ChangeStatus(ctx context.Context, change store.StatusChange) error {
	values := map[string]types.AttributeValue{
		":from":      stringValue(string(change.From)),
		":to":        stringValue(string(change.To)),
		":lockEndTs": numberValue(change.LockEndTs),
	}
	if change.StaleBefore > 0 {
		values[":locked"] = stringValue(string(model.StatusLocked))
		values[":staleBefore"] = numberValue(change.StaleBefore)
	}
	_, err := d.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.config.ResourceTable),
		Key:                       versionKey(change.Key),
		UpdateExpression:          aws.String("SET documentStatus = :to, lockEndTs = :lockEndTs"),
		ConditionExpression:       aws.String(changeCondition(change, ":from", ":locked", ":staleBefore")),
		ExpressionAttributeValues: values,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return handleClientError(err)
	}
	return nil
}

// changeStatement renders a status change as a conditioned PartiQL update.
func (d *executor) changeStatement(change store.StatusChange) types.BatchStatementRequest {
	params := []types.AttributeValue{
		stringValue(string(change.To)),
		numberValue(change.LockEndTs),
		stringValue(store.CompositeID(change.TenantID, change.ID)),
		numberValue(int64(change.VID)),
		stringValue(string(change.From)),
	}
	if change.StaleBefore > 0 {
		params = append(params, stringValue(string(model.StatusLocked)), numberValue(change.StaleBefore))
	}
	statement := fmt.Sprintf(`UPDATE "%s" SET documentStatus = ? SET lockEndTs = ? WHERE id = ? AND vid = ? AND %s`,
		d.config.ResourceTable, changeCondition(change, "?", "?", "?"))
	return types.BatchStatementRequest{
		Statement:  aws.String(statement),
		Parameters: params,
	}
}

// executeStatements runs statements in chunks of at most 25. indexes[i] is
// the bundle entry statements[i] belongs to.
func (d *executor) executeStatements(ctx context.Context, indexes []int, statements []types.BatchStatementRequest) ([]store.ItemError, error) {
	var failed []store.ItemError
	for start := 0; start < len(statements); start += maxBatchStatements {
		end := min(start+maxBatchStatements, len(statements))
		out, err := d.c.BatchExecuteStatement(ctx, &dynamodb.BatchExecuteStatementInput{
			Statements:             statements[start:end],
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return failed, store.IncompleteBatchError{
				Completed: slices.Clone(indexes[:start]),
				Err:       handleClientError(err),
			}
		}
		for i, resp := range out.Responses {
			if resp.Error == nil || start+i >= end {
				continue
			}
			failed = append(failed, store.ItemError{
				Index:   indexes[start+i],
				Code:    string(resp.Error.Code),
				Message: aws.ToString(resp.Error.Message),
			})
		}
	}
	return failed, nil
}

func (d *executor) BatchChangeStatus(ctx context.Context, changes []store.IndexedChange) ([]store.ItemError, error) {
	indexes := make([]int, 0, len(changes))
	statements := make([]types.BatchStatementRequest, 0, len(changes))
	for _, c := range changes {
		indexes = append(indexes, c.Index)
		statements = append(statements, d.changeStatement(c.Change))
	}
	return d.executeStatements(ctx, indexes, statements)
}

// insertStatement renders a version record as a PartiQL insert. An insert
// of a key that already exists fails with DuplicateItem.
func (d *executor) insertStatement(rec model.VersionRecord) (types.BatchStatementRequest, error) {
	item, err := marshalRecord(rec)
	if err != nil {
		return types.BatchStatementRequest{}, err
	}
	names := make([]string, 0, len(item))
	for name := range item {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]string, 0, len(names))
	params := make([]types.AttributeValue, 0, len(names))
	for _, name := range names {
		fields = append(fields, fmt.Sprintf("'%s': ?", strings.ReplaceAll(name, "'", "''")))
		params = append(params, item[name])
	}
	return types.BatchStatementRequest{
		Statement:  aws.String(fmt.Sprintf(`INSERT INTO "%s" VALUE {%s}`, d.config.ResourceTable, strings.Join(fields, ", "))),
		Parameters: params,
	}, nil
}

func (d *executor) BatchPut(ctx context.Context, puts []store.IndexedPut) ([]store.ItemError, error) {
	indexes := make([]int, 0, len(puts))
	statements := make([]types.BatchStatementRequest, 0, len(puts))
	for _, p := range puts {
		stmt, err := d.insertStatement(p.Record)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, p.Index)
		statements = append(statements, stmt)
	}
	return d.executeStatements(ctx, indexes, statements)
}

func (d *executor) compensationItem(c store.Compensation) types.TransactWriteItem {
	if c.Kind == store.DeleteVersion {
		return types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(d.config.ResourceTable),
				Key:       versionKey(c.Key),
			},
		}
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(d.config.ResourceTable),
			Key:                 versionKey(c.Key),
			UpdateExpression:    aws.String("SET documentStatus = :to, lockEndTs = :lockEndTs"),
			ConditionExpression: aws.String("documentStatus IN (:from, :to)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":from":      stringValue(string(c.From)),
				":to":        stringValue(string(c.To)),
				":lockEndTs": numberValue(0),
			},
		},
	}
}

// Compensate applies the inverse operations in transactions of at most 100
// items. A failed chunk does not stop the following ones.
func (d *executor) Compensate(ctx context.Context, comps []store.Compensation) error {
	var errs error
	for start := 0; start < len(comps); start += maxTransactWriteItems {
		chunk := comps[start:min(start+maxTransactWriteItems, len(comps))]
		items := make([]types.TransactWriteItem, 0, len(chunk))
		for _, c := range chunk {
			items = append(items, d.compensationItem(c))
		}
		_, err := d.c.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:          items,
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			errs = multierror.Append(errs, handleClientError(err))
		}
	}
	return errs
}

// queryAll follows LastEvaluatedKey until the query is exhausted.
func (d *executor) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := d.c.Query(ctx, input)
		if err != nil {
			return nil, handleClientError(err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (d *executor) ActiveSubscriptions(ctx context.Context, tenantID string) ([]model.Resource, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.config.ResourceTable),
		IndexName:              aws.String(d.config.ActiveSubscriptionsIndex),
		KeyConditionExpression: aws.String("#subscriptionStatus = :active"),
		FilterExpression:       aws.String("documentStatus = :available"),
		ExpressionAttributeNames: map[string]string{
			"#subscriptionStatus": subscriptionStatusAttributeKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active":    stringValue(activeSubscriptionStatus),
			":available": stringValue(string(model.StatusAvailable)),
		},
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if tenantID != "" {
		input.FilterExpression = aws.String("documentStatus = :available AND #tenantId = :tenantId")
		input.ExpressionAttributeNames["#tenantId"] = tenantIDAttributeKey
		input.ExpressionAttributeValues[":tenantId"] = stringValue(tenantID)
	}
	items, err := d.queryAll(ctx, input)
	if err != nil {
		return nil, err
	}
	subscriptions := make([]model.Resource, 0, len(items))
	for _, item := range items {
		resource, err := unmarshalResource(item)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, resource)
	}
	return subscriptions, nil
}

func newExecutor(c client, config store.Config) *executor {
	return &executor{
		c:      c,
		config: config.WithDefaults(),
	}
}

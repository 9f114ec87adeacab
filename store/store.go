// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/xmidt-org/hygieia/model"
)

const (
	// TypeLabel is for labeling metrics; if there is a single metric for
	// successful queries, the typeLabel and corresponding type can be used
	// when incrementing the metric.
	TypeLabel    = "type"
	OutcomeLabel = "outcome"
	ModeLabel    = "mode"

	QueryType        = "query"
	GetType          = "get"
	PutType          = "put"
	UpdateType       = "update"
	BatchExecuteType = "batch_execute"
	TransactType     = "transact_write"

	SuccessOutcome = "success"
	FailureOutcome = "failure"
)

// StatusChange is a conditioned status transition on a single version record.
// The change only applies while the record is in From. When StaleBefore is
// set, a LOCKED record whose lock expired before StaleBefore (unix ms) also
// satisfies the condition.
type StatusChange struct {
	model.Key
	From        model.DocumentStatus
	To          model.DocumentStatus
	LockEndTs   int64
	StaleBefore int64
}

// IndexedPut is a version record write tagged with the position of the bundle
// entry that produced it.
type IndexedPut struct {
	Index  int
	Record model.VersionRecord
}

// IndexedChange is a status change tagged with the position of the bundle
// entry that produced it.
type IndexedChange struct {
	Index  int
	Change StatusChange
}

// ItemError reports the rejection of one item of a multi-item write.
type ItemError struct {
	Index   int
	Code    string
	Message string
}

func (e ItemError) String() string {
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

// IncompleteBatchError is returned by the multi-item writes when a chunk of
// the call failed outright. Completed lists the entry indexes of the chunks
// that ran before the failure; the rejections among them are returned next
// to the error. Nothing is known about the items of the failed chunk.
type IncompleteBatchError struct {
	Completed []int
	Err       error
}

func (e IncompleteBatchError) Error() string {
	return fmt.Sprintf("batch stopped after %d items: %v", len(e.Completed), e.Err)
}

func (e IncompleteBatchError) Unwrap() error {
	return e.Err
}

// CompensationKind names an inverse operation.
type CompensationKind string

const (
	// DeleteVersion removes a version record. Removing a version that does
	// not exist is not an error.
	DeleteVersion CompensationKind = "deleteVersion"
	// RevertStatus moves a version record from From back to To. A record
	// already in To is left as is.
	RevertStatus CompensationKind = "revertStatus"
)

// Compensation is one inverse operation produced by the rollback generator.
type Compensation struct {
	Kind         CompensationKind
	ResourceType string
	Key          model.Key
	From         model.DocumentStatus
	To           model.DocumentStatus
}

// S is the version record store the persistence core is written against.
// Conditioned writes that lose their condition return ErrConditionFailed.
type S interface {
	// QueryVersions returns up to limit versions of an id, newest first.
	QueryVersions(ctx context.Context, tenantID, id string, limit int) ([]model.VersionRecord, error)
	GetVersion(ctx context.Context, key model.Key) (model.VersionRecord, bool, error)
	PutVersion(ctx context.Context, rec model.VersionRecord, onlyIfAbsent bool) error
	ChangeStatus(ctx context.Context, change StatusChange) error

	// BatchPut inserts every record whose key is still free and reports the
	// ones the store rejected, including keys that already exist. A non-nil
	// error means the call itself failed; see IncompleteBatchError.
	BatchPut(ctx context.Context, puts []IndexedPut) ([]ItemError, error)
	// BatchChangeStatus applies every change it can and reports the ones
	// whose condition failed or that the store rejected.
	BatchChangeStatus(ctx context.Context, changes []IndexedChange) ([]ItemError, error)
	Compensate(ctx context.Context, comps []Compensation) error

	ActiveSubscriptions(ctx context.Context, tenantID string) ([]model.Resource, error)
}

// JobStore persists bulk export jobs.
type JobStore interface {
	QueryJobsByStatus(ctx context.Context, status model.JobStatus, tenantID string) ([]model.ExportJob, error)
	PutJob(ctx context.Context, job model.ExportJob) error
	GetJob(ctx context.Context, tenantID, jobID string) (model.ExportJob, bool, error)
	// UpdateJobStatus moves a job to status only while its current status is
	// one of from, and returns ErrConditionFailed otherwise or when the job
	// does not exist.
	UpdateJobStatus(ctx context.Context, tenantID, jobID string, from []model.JobStatus, status model.JobStatus) error
}

// CompositeID builds the partition key of a tenant scoped id.
func CompositeID(tenantID, id string) string {
	if tenantID == "" {
		return id
	}
	return tenantID + "|" + id
}

// Backend is a store serving both version records and export jobs.
type Backend interface {
	S
	JobStore
}

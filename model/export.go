// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

// JobStatus is the lifecycle status of a bulk export job.
type JobStatus string

const (
	JobInProgress JobStatus = "in-progress"
	JobCanceling  JobStatus = "canceling"
	JobCanceled   JobStatus = "canceled"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// jobTransitions lists the statuses each job status may move to.
var jobTransitions = map[JobStatus][]JobStatus{
	JobInProgress: {JobCanceling, JobCompleted, JobFailed},
	JobCanceling:  {JobCanceled, JobFailed},
}

// JobStatuses is every known job status.
var JobStatuses = []JobStatus{JobInProgress, JobCanceling, JobCanceled, JobCompleted, JobFailed}

// ActiveJobStatuses are the statuses that count against concurrency limits.
var ActiveJobStatuses = []JobStatus{JobInProgress, JobCanceling}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	for _, v := range JobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether a job in status s may move to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, v := range jobTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// ExportType is the scope of a bulk export.
type ExportType string

const (
	ExportSystem  ExportType = "system"
	ExportGroup   ExportType = "group"
	ExportPatient ExportType = "patient"
)

// ExportJob is the durable record of one bulk export job.
type ExportJob struct {
	JobID                    string     `json:"jobId" dynamodbav:"jobId"`
	JobOwnerID               string     `json:"jobOwnerId" dynamodbav:"jobOwnerId"`
	TenantID                 string     `json:"tenantId,omitempty" dynamodbav:"tenantId,omitempty"`
	JobStatus                JobStatus  `json:"jobStatus" dynamodbav:"jobStatus"`
	ExportType               ExportType `json:"exportType" dynamodbav:"exportType"`
	TransactionTime          string     `json:"transactionTime" dynamodbav:"transactionTime"`
	Since                    string     `json:"since" dynamodbav:"since"`
	OutputFormat             string     `json:"outputFormat" dynamodbav:"outputFormat"`
	Type                     string     `json:"type" dynamodbav:"type"`
	GroupID                  string     `json:"groupId" dynamodbav:"groupId"`
	AllowedResourceTypes     []string   `json:"allowedResourceTypes,omitempty" dynamodbav:"allowedResourceTypes,stringset,omitempty"`
	StepFunctionExecutionArn string     `json:"stepFunctionExecutionArn" dynamodbav:"stepFunctionExecutionArn"`
	ErrorArray               []string   `json:"errorArray" dynamodbav:"errorArray"`
	JobFailedMessage         string     `json:"jobFailedMessage" dynamodbav:"jobFailedMessage"`
}

// InitiateExportRequest asks for a new bulk export job.
type InitiateExportRequest struct {
	RequesterUserID      string     `json:"requesterUserId" validate:"required"`
	TenantID             string     `json:"tenantId,omitempty"`
	AllowedResourceTypes []string   `json:"allowedResourceTypes" validate:"required,min=1"`
	ExportType           ExportType `json:"exportType" validate:"required,oneof=system group patient"`
	TransactionTime      string     `json:"transactionTime"`
	OutputFormat         string     `json:"outputFormat"`
	Since                string     `json:"since"`
	Type                 string     `json:"type,omitempty"`
	GroupID              string     `json:"groupId,omitempty" validate:"required_if=ExportType group"`
}

// ExportedFile is one downloadable result of a completed job.
type ExportedFile struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ExportJobStatus is what callers see of an export job.
type ExportJobStatus struct {
	JobOwnerID          string         `json:"jobOwnerId"`
	JobStatus           JobStatus      `json:"jobStatus"`
	ExportedFileURLs    []ExportedFile `json:"exportedFileUrls"`
	RequiresAccessToken bool           `json:"requiresAccessToken"`
	TransactionTime     string         `json:"transactionTime"`
	ExportType          ExportType     `json:"exportType"`
	OutputFormat        string         `json:"outputFormat"`
	Since               string         `json:"since"`
	Type                string         `json:"type"`
	GroupID             string         `json:"groupId"`
	ErrorArray          []string       `json:"errorArray"`
	ErrorMessage        string         `json:"errorMessage"`
}

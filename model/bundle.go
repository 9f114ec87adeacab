// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

// Operation is the verb of one bundle entry.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// BatchRequest is one entry of a bundle.
type BatchRequest struct {
	Operation    Operation `json:"operation" validate:"required,oneof=create read update delete"`
	ResourceType string    `json:"resourceType" validate:"required,alpha"`
	ID           string    `json:"id,omitempty" validate:"required_unless=Operation create"`
	Resource     Resource  `json:"resource,omitempty" validate:"required_if=Operation create,required_if=Operation update"`
	FullURL      string    `json:"fullUrl,omitempty"`
}

// BatchResponse is the outcome of one bundle entry. Responses are always
// returned in the order of the requests that produced them.
type BatchResponse struct {
	ID           string    `json:"id"`
	VID          string    `json:"vid"`
	ResourceType string    `json:"resourceType"`
	Operation    Operation `json:"operation"`
	Resource     Resource  `json:"resource"`
	LastModified string    `json:"lastModified"`
	Error        string    `json:"error,omitempty"`
}

// Failed reports whether the entry carries an error.
func (r BatchResponse) Failed() bool {
	return r.Error != ""
}

// LockMarker records a version a bundle holds as LOCKED, PENDING or
// PENDING_DELETE. It only drives commit and rollback bookkeeping.
type LockMarker struct {
	Key
	ResourceType string `json:"resourceType"`
}

// BundleType selects how partial failure is handled.
type BundleType string

const (
	// BundleTransaction commits every entry or none.
	BundleTransaction BundleType = "transaction"
	// BundleBatch commits each entry that succeeded on its own.
	BundleBatch BundleType = "batch"
)

// BundleResponse is the result of processing a bundle.
type BundleResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Responses []BatchResponse `json:"batchReadWriteResponses"`
}

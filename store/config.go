// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import "time"

const (
	DefaultResourceTable                    = "resource-db"
	DefaultExportRequestTable               = "export-request"
	DefaultExportRequestJobStatusIndex      = "jobStatus-index"
	DefaultActiveSubscriptionsIndex         = "activeSubscriptions"
	DefaultMaxConcurrentRequestsPerUser     = 1
	DefaultMaxSystemLevelConcurrentRequests = 2
	DefaultLockDuration                     = 35 * time.Second
)

// Config is built once at startup and handed to every component that needs
// table names or limits.
type Config struct {
	ResourceTable               string
	ExportRequestTable          string
	ExportRequestJobStatusIndex string
	ActiveSubscriptionsIndex    string

	EnableMultiTenancy    bool
	UpdateCreateSupported bool

	// Both ceilings are evaluated within the tenant when multi-tenancy is on.
	MaxConcurrentRequestsPerUser     int
	MaxSystemLevelConcurrentRequests int

	// LockDuration bounds how long a LOCKED version blocks other writers.
	LockDuration time.Duration
}

// WithDefaults fills in every unset field.
func (c Config) WithDefaults() Config {
	if c.ResourceTable == "" {
		c.ResourceTable = DefaultResourceTable
	}
	if c.ExportRequestTable == "" {
		c.ExportRequestTable = DefaultExportRequestTable
	}
	if c.ExportRequestJobStatusIndex == "" {
		c.ExportRequestJobStatusIndex = DefaultExportRequestJobStatusIndex
	}
	if c.ActiveSubscriptionsIndex == "" {
		c.ActiveSubscriptionsIndex = DefaultActiveSubscriptionsIndex
	}
	if c.MaxConcurrentRequestsPerUser <= 0 {
		c.MaxConcurrentRequestsPerUser = DefaultMaxConcurrentRequestsPerUser
	}
	if c.MaxSystemLevelConcurrentRequests <= 0 {
		c.MaxSystemLevelConcurrentRequests = DefaultMaxSystemLevelConcurrentRequests
	}
	if c.LockDuration <= 0 {
		c.LockDuration = DefaultLockDuration
	}
	return c
}

// Tenant returns the tenant id to scope keys with, which is always empty
// when multi-tenancy is disabled.
func (c Config) Tenant(tenantID string) string {
	if !c.EnableMultiTenancy {
		return ""
	}
	return tenantID
}

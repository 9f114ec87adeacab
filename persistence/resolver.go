// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"

	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

// resolveDepth is how many of the newest versions are inspected.
const resolveDepth = 2

// Resolver finds the version of a resource readers are allowed to see.
// It never blocks behind an in-flight writer and never returns a version
// that has not been committed.
type Resolver struct {
	store store.S
}

func NewResolver(s store.S) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the current readable version of resourceType/id within
// the tenant, or a store.NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, resourceType, id, tenantID string) (model.VersionRecord, error) {
	l, err := r.lookup(ctx, resourceType, id, tenantID)
	if err != nil {
		return model.VersionRecord{}, err
	}
	if !l.found {
		return model.VersionRecord{}, store.NotFoundError{ResourceType: resourceType, ID: id}
	}
	return l.record, nil
}

// lookup is what the store holds for an id: the version readers may see,
// and the newest version whatever its type or status.
type lookup struct {
	record model.VersionRecord
	found  bool

	newest model.VersionRecord
	exists bool
}

func (r *Resolver) lookup(ctx context.Context, resourceType, id, tenantID string) (lookup, error) {
	records, err := r.store.QueryVersions(ctx, tenantID, id, resolveDepth)
	if err != nil {
		return lookup{}, err
	}
	var l lookup
	if len(records) > 0 {
		l.newest, l.exists = records[0], true
	}
	l.record, l.found = readable(resourceType, records)
	return l, nil
}

// nextVID returns the version a resource written under a caller supplied id
// starts at when no version of it is readable. An id with no history starts
// at 1, and one whose newest version is a DELETED version of the same type
// continues above it. Any other history belongs to someone else.
func (l lookup) nextVID(resourceType string) (int, bool) {
	switch {
	case !l.exists:
		return 1, true
	case l.newest.ResourceType == resourceType && l.newest.DocumentStatus == model.StatusDeleted:
		return l.newest.VID + 1, true
	}
	return 0, false
}

// readable picks from records, ordered newest first.
func readable(resourceType string, records []model.VersionRecord) (model.VersionRecord, bool) {
	if len(records) == 0 {
		return model.VersionRecord{}, false
	}
	newest := records[0]
	// a type mismatch must look exactly like an unknown id
	if newest.ResourceType != resourceType {
		return model.VersionRecord{}, false
	}
	switch {
	case newest.DocumentStatus.Readable():
		return newest, true
	case newest.DocumentStatus == model.StatusPending && len(records) > 1:
		return records[1], true
	}
	return model.VersionRecord{}, false
}

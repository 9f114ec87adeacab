// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"github.com/spf13/cast"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

// Rollback is the set of inverse operations undoing an applied bundle.
type Rollback struct {
	ItemsToRemoveFromLock []model.LockMarker
	TransactionRequests   []store.Compensation
}

// Empty reports whether there is nothing to undo.
func (r Rollback) Empty() bool {
	return len(r.TransactionRequests) == 0
}

// appliedEntry is a response together with how far its writes got.
type appliedEntry struct {
	response model.BatchResponse

	// locked is set when the prior version is held, written when the new
	// version is stored.
	locked  bool
	written bool

	// created marks an update that created the resource.
	created bool
	// confirmed marks a delete that already reached DELETED.
	confirmed bool
}

// GenerateRollback computes the compensations for responses whose writes
// reached the store. Callers pass only applied responses; reads contribute
// nothing.
func GenerateRollback(tenantID string, applied []model.BatchResponse) Rollback {
	entries := make([]appliedEntry, len(applied))
	for i, resp := range applied {
		entries[i] = appliedEntry{response: resp, locked: true, written: true}
	}
	return generateRollback(tenantID, entries)
}

func generateRollback(tenantID string, applied []appliedEntry) Rollback {
	var r Rollback
	for _, e := range applied {
		markers, comps := compensate(tenantID, e)
		if len(comps) == 0 {
			continue
		}
		r.ItemsToRemoveFromLock = append(r.ItemsToRemoveFromLock, markers...)
		r.TransactionRequests = append(r.TransactionRequests, comps...)
	}
	return r
}

func compensate(tenantID string, e appliedEntry) ([]model.LockMarker, []store.Compensation) {
	resp := e.response
	vid, err := cast.ToIntE(resp.VID)
	if err != nil || vid < 1 {
		return nil, nil
	}
	key := model.Key{TenantID: tenantID, ID: resp.ID, VID: vid}

	var (
		markers []model.LockMarker
		comps   []store.Compensation
	)
	add := func(c store.Compensation) {
		c.ResourceType = resp.ResourceType
		markers = append(markers, model.LockMarker{Key: c.Key, ResourceType: resp.ResourceType})
		comps = append(comps, c)
	}
	// the new version is discarded whether or not it was published
	discard := func() {
		if e.written {
			add(store.Compensation{Kind: store.DeleteVersion, Key: key, To: model.MustNext(model.StatusPending, model.EventDiscard)})
		}
	}

	switch resp.Operation {
	case model.OperationCreate:
		discard()
	case model.OperationUpdate:
		discard()
		// an update that created the resource has no prior version
		if e.created || vid == 1 || !e.locked {
			break
		}
		add(store.Compensation{
			Kind: store.RevertStatus,
			Key:  key.Previous(),
			From: model.StatusLocked,
			To:   model.MustNext(model.StatusLocked, model.EventUnlock),
		})
	case model.OperationDelete:
		if !e.locked {
			break
		}
		revert := store.Compensation{
			Kind: store.RevertStatus,
			Key:  key,
			From: model.StatusPendingDelete,
			To:   model.MustNext(model.StatusPendingDelete, model.EventRevertDelete),
		}
		if e.confirmed {
			revert.From = model.StatusDeleted
			revert.To = model.MustNext(model.StatusDeleted, model.EventRestore)
		}
		add(revert)
	}
	return markers, comps
}

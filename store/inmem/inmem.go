// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package inmem

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

const (
	conditionFailedCode    = "ConditionalCheckFailed"
	conditionFailedMessage = "The conditional request failed"
	duplicateItemCode      = "DuplicateItem"
	duplicateItemMessage   = "Duplicate primary key exists in table"

	subscriptionResourceType = "Subscription"
	activeSubscriptionStatus = "active"
)

type InMem struct {
	versions map[string]map[int]model.VersionRecord
	jobs     map[string]model.ExportJob
	lock     sync.Mutex
}

var (
	_ store.S        = (*InMem)(nil)
	_ store.JobStore = (*InMem)(nil)
)

func NewInMem() *InMem {
	return &InMem{
		versions: map[string]map[int]model.VersionRecord{},
		jobs:     map[string]model.ExportJob{},
	}
}

func copyRecord(rec model.VersionRecord) model.VersionRecord {
	rec.Resource = rec.Resource.Clone()
	return rec
}

func (i *InMem) QueryVersions(_ context.Context, tenantID, id string, limit int) ([]model.VersionRecord, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	versions := i.versions[store.CompositeID(tenantID, id)]
	vids := make([]int, 0, len(versions))
	for vid := range versions {
		vids = append(vids, vid)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vids)))
	if limit > 0 && len(vids) > limit {
		vids = vids[:limit]
	}
	records := make([]model.VersionRecord, 0, len(vids))
	for _, vid := range vids {
		records = append(records, copyRecord(versions[vid]))
	}
	return records, nil
}

func (i *InMem) GetVersion(_ context.Context, key model.Key) (model.VersionRecord, bool, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	rec, ok := i.versions[store.CompositeID(key.TenantID, key.ID)][key.VID]
	if !ok {
		return model.VersionRecord{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (i *InMem) PutVersion(_ context.Context, rec model.VersionRecord, onlyIfAbsent bool) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if onlyIfAbsent && len(i.versions[store.CompositeID(rec.TenantID, rec.ID)]) > 0 {
		return store.ErrConditionFailed
	}
	i.put(rec)
	return nil
}

func (i *InMem) put(rec model.VersionRecord) {
	id := store.CompositeID(rec.TenantID, rec.ID)
	if i.versions[id] == nil {
		i.versions[id] = map[int]model.VersionRecord{}
	}
	i.versions[id][rec.VID] = copyRecord(rec)
}

func (i *InMem) ChangeStatus(_ context.Context, change store.StatusChange) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.changeStatus(change)
}

func (i *InMem) changeStatus(change store.StatusChange) error {
	versions := i.versions[store.CompositeID(change.TenantID, change.ID)]
	rec, ok := versions[change.VID]
	if !ok {
		return store.ErrConditionFailed
	}
	stale := change.StaleBefore > 0 && rec.DocumentStatus == model.StatusLocked && rec.LockEndTs < change.StaleBefore
	if rec.DocumentStatus != change.From && !stale {
		return store.ErrConditionFailed
	}
	rec.DocumentStatus = change.To
	rec.LockEndTs = change.LockEndTs
	versions[change.VID] = rec
	return nil
}

func (i *InMem) BatchPut(_ context.Context, puts []store.IndexedPut) ([]store.ItemError, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	var failed []store.ItemError
	for _, p := range puts {
		if _, exists := i.versions[store.CompositeID(p.Record.TenantID, p.Record.ID)][p.Record.VID]; exists {
			failed = append(failed, store.ItemError{
				Index:   p.Index,
				Code:    duplicateItemCode,
				Message: duplicateItemMessage,
			})
			continue
		}
		i.put(p.Record)
	}
	return failed, nil
}

func (i *InMem) BatchChangeStatus(_ context.Context, changes []store.IndexedChange) ([]store.ItemError, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	var failed []store.ItemError
	for _, c := range changes {
		if err := i.changeStatus(c.Change); err != nil {
			failed = append(failed, store.ItemError{
				Index:   c.Index,
				Code:    conditionFailedCode,
				Message: conditionFailedMessage,
			})
		}
	}
	return failed, nil
}

func (i *InMem) Compensate(_ context.Context, comps []store.Compensation) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	var errs error
	for _, c := range comps {
		switch c.Kind {
		case store.DeleteVersion:
			id := store.CompositeID(c.Key.TenantID, c.Key.ID)
			delete(i.versions[id], c.Key.VID)
			if len(i.versions[id]) == 0 {
				delete(i.versions, id)
			}
		case store.RevertStatus:
			if rec, ok := i.versions[store.CompositeID(c.Key.TenantID, c.Key.ID)][c.Key.VID]; ok && rec.DocumentStatus == c.To {
				continue
			}
			err := i.changeStatus(store.StatusChange{Key: c.Key, From: c.From, To: c.To})
			if err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs
}

func (i *InMem) ActiveSubscriptions(_ context.Context, tenantID string) ([]model.Resource, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	ids := make([]string, 0, len(i.versions))
	for id := range i.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var subscriptions []model.Resource
	for _, id := range ids {
		var newest *model.VersionRecord
		for _, rec := range i.versions[id] {
			rec := rec
			if newest == nil || rec.VID > newest.VID {
				newest = &rec
			}
		}
		if newest == nil || newest.ResourceType != subscriptionResourceType || newest.DocumentStatus != model.StatusAvailable {
			continue
		}
		if tenantID != "" && newest.TenantID != tenantID {
			continue
		}
		if status, _ := newest.Resource["status"].(string); status != activeSubscriptionStatus {
			continue
		}
		subscriptions = append(subscriptions, newest.Resource.Clone())
	}
	return subscriptions, nil
}

func (i *InMem) QueryJobsByStatus(_ context.Context, status model.JobStatus, tenantID string) ([]model.ExportJob, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	var jobs []model.ExportJob
	for _, job := range i.jobs {
		if job.JobStatus != status {
			continue
		}
		if tenantID != "" && job.TenantID != tenantID {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].JobID < jobs[b].JobID })
	return jobs, nil
}

func (i *InMem) PutJob(_ context.Context, job model.ExportJob) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.jobs[store.CompositeID(job.TenantID, job.JobID)] = job
	return nil
}

func (i *InMem) GetJob(_ context.Context, tenantID, jobID string) (model.ExportJob, bool, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	job, ok := i.jobs[store.CompositeID(tenantID, jobID)]
	return job, ok, nil
}

func (i *InMem) UpdateJobStatus(_ context.Context, tenantID, jobID string, from []model.JobStatus, status model.JobStatus) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	id := store.CompositeID(tenantID, jobID)
	job, ok := i.jobs[id]
	if !ok || !slices.Contains(from, job.JobStatus) {
		return store.ErrConditionFailed
	}
	job.JobStatus = status
	i.jobs[id] = job
	return nil
}

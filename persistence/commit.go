// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"

	"github.com/spf13/cast"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

// commitPlan holds the three ordered statement groups that finalize a bundle:
// publish, then confirm, then unlock. In that order the resolver answers with
// either the pre-bundle or the post-bundle version at every instant, and the
// prior versions stay held until nothing can be rolled back any more.
type commitPlan struct {
	publish []store.IndexedChange
	unlock  []store.IndexedChange
	confirm []store.IndexedChange
}

func planCommit(st *Staged, indexes []int) commitPlan {
	var p commitPlan
	for _, i := range indexes {
		resp := st.Responses[i]
		vid, err := cast.ToIntE(resp.VID)
		if err != nil || vid < 1 {
			continue
		}
		key := model.Key{TenantID: st.TenantID, ID: resp.ID, VID: vid}
		switch resp.Operation {
		case model.OperationCreate, model.OperationUpdate:
			p.publish = append(p.publish, store.IndexedChange{Index: i, Change: store.StatusChange{
				Key: key, From: model.StatusPending, To: model.MustNext(model.StatusPending, model.EventCommit),
			}})
			if resp.Operation == model.OperationUpdate && st.Entries[i].Outcome.Locked {
				p.unlock = append(p.unlock, store.IndexedChange{Index: i, Change: store.StatusChange{
					Key: key.Previous(), From: model.StatusLocked, To: model.MustNext(model.StatusLocked, model.EventUnlock),
				}})
			}
		case model.OperationDelete:
			p.confirm = append(p.confirm, store.IndexedChange{Index: i, Change: store.StatusChange{
				Key: key, From: model.StatusPendingDelete, To: model.MustNext(model.StatusPendingDelete, model.EventConfirmDelete),
			}})
		}
	}
	return p
}

// Committer makes applied bundle entries visible and releases the versions
// they hold.
type Committer struct {
	executor *Executor
}

func NewCommitter(e *Executor) *Committer {
	return &Committer{executor: e}
}

// Publish moves the new PENDING versions of the given entries to AVAILABLE
// and returns the indexes that could not be published.
func (c *Committer) Publish(ctx context.Context, st *Staged, indexes []int) (map[int]bool, error) {
	return c.executor.ApplyStatements(ctx, st, planCommit(st, indexes).publish)
}

// Unlock returns the prior versions of committed updates to AVAILABLE.
// A prior version that fails to unlock stays LOCKED until its lock expires;
// the rejections are returned for logging only.
func (c *Committer) Unlock(ctx context.Context, st *Staged, indexes []int) ([]store.ItemError, error) {
	p := planCommit(st, indexes)
	if len(p.unlock) == 0 {
		return nil, nil
	}
	return c.executor.store.BatchChangeStatus(ctx, p.unlock)
}

// Confirm moves the PENDING_DELETE versions of the given entries to DELETED
// and returns the indexes that could not be confirmed.
func (c *Committer) Confirm(ctx context.Context, st *Staged, indexes []int) (map[int]bool, error) {
	return c.executor.ApplyStatements(ctx, st, planCommit(st, indexes).confirm)
}

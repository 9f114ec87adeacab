// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"

	"github.com/xmidt-org/hygieia/store"
)

// Executor applies staged writes and merges the per item rejections the
// store reports back into the staged responses by original index.
type Executor struct {
	store store.S
}

func NewExecutor(s store.S) *Executor {
	return &Executor{store: s}
}

// ApplyPuts writes the new versions and returns the indexes the store
// rejected. Entries that were accepted are left untouched. A failure of the
// call itself is returned as is, along with the rejections of the chunks
// that completed before it.
func (e *Executor) ApplyPuts(ctx context.Context, st *Staged, puts []store.IndexedPut) (map[int]bool, error) {
	if len(puts) == 0 {
		return map[int]bool{}, nil
	}
	rejected, err := e.store.BatchPut(ctx, puts)
	return merge(st, rejected), err
}

// ApplyStatements runs conditioned status changes and returns the indexes
// whose change was rejected.
func (e *Executor) ApplyStatements(ctx context.Context, st *Staged, changes []store.IndexedChange) (map[int]bool, error) {
	if len(changes) == 0 {
		return map[int]bool{}, nil
	}
	rejected, err := e.store.BatchChangeStatus(ctx, changes)
	return merge(st, rejected), err
}

func merge(st *Staged, rejected []store.ItemError) map[int]bool {
	failed := make(map[int]bool, len(rejected))
	for _, r := range rejected {
		if r.Index < 0 || r.Index >= len(st.Responses) {
			continue
		}
		failed[r.Index] = true
		st.Fail(r.Index, r.Code, r.Message, store.ConflictError{Message: r.String()})
	}
	return failed
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
	"go.uber.org/zap"
)

const (
	committedMessage         = "Successfully committed requests to DB"
	stageFailedMessage       = "Failed to stage resources for transaction"
	lockFailedMessage        = "Failed to lock resources for transaction. Please try again after %d seconds."
	writeFailedMessage       = "Failed to write resources for transaction"
	publishFailedMessage     = "Failed to commit resources for transaction"
	defaultRollbackTimeout   = 10 * time.Second
	rollbackFailedLogMessage = "bundle rollback failed"
)

// Bundler runs bundles through the stage, lock, write, commit protocol and
// rolls back whatever a failed bundle left behind.
type Bundler struct {
	stager    *Stager
	executor  *Executor
	committer *Committer
	store     store.S
	config    store.Config
	rollbacks *prometheus.CounterVec
	logger    *zap.Logger

	rollbackTimeout time.Duration
}

func NewBundler(s store.S, config store.Config, rollbacks *prometheus.CounterVec, logger *zap.Logger) *Bundler {
	config = config.WithDefaults()
	executor := NewExecutor(s)
	return &Bundler{
		stager:          NewStager(NewResolver(s), config),
		executor:        executor,
		committer:       NewCommitter(executor),
		store:           s,
		config:          config,
		rollbacks:       rollbacks,
		logger:          logger,
		rollbackTimeout: defaultRollbackTimeout,
	}
}

// Transaction commits every entry of the bundle or none of them.
func (b *Bundler) Transaction(ctx context.Context, tenantID string, requests []model.BatchRequest) (model.BundleResponse, error) {
	return b.Process(ctx, model.BundleTransaction, tenantID, requests)
}

// Batch commits every entry that succeeds and compensates the others.
func (b *Bundler) Batch(ctx context.Context, tenantID string, requests []model.BatchRequest) (model.BundleResponse, error) {
	return b.Process(ctx, model.BundleBatch, tenantID, requests)
}

// Process runs a bundle. Responses always match the requests in order and
// count. An error means a store call failed outright; whatever the bundle had
// applied by then has been rolled back.
func (b *Bundler) Process(ctx context.Context, mode model.BundleType, tenantID string, requests []model.BatchRequest) (model.BundleResponse, error) {
	r, err := b.run(ctx, mode, tenantID, requests)
	if err != nil {
		return model.BundleResponse{}, err
	}
	return r.response(), nil
}

// bundleRun is the working set of one bundle.
type bundleRun struct {
	*Bundler
	mode    model.BundleType
	st      *Staged
	held    map[model.Key]model.LockMarker
	success bool
	message string
}

func (r *bundleRun) response() model.BundleResponse {
	return model.BundleResponse{
		Success:   r.success,
		Message:   r.message,
		Responses: r.st.Responses,
	}
}

func (r *bundleRun) transaction() bool {
	return r.mode == model.BundleTransaction
}

func (r *bundleRun) fail(message string) *bundleRun {
	r.success = false
	r.message = message
	return r
}

func (b *Bundler) run(ctx context.Context, mode model.BundleType, tenantID string, requests []model.BatchRequest) (*bundleRun, error) {
	st, err := b.stager.Stage(ctx, b.config.Tenant(tenantID), requests)
	if err != nil {
		return nil, err
	}
	r := &bundleRun{
		Bundler: b,
		mode:    mode,
		st:      st,
		held:    map[model.Key]model.LockMarker{},
		success: true,
		message: committedMessage,
	}
	if r.transaction() && st.Failed() {
		return r.fail(stageFailedMessage), nil
	}

	locks := make([]store.IndexedChange, 0, len(st.Locks)+len(st.Deletes))
	locks = append(append(locks, st.Locks...), st.Deletes...)
	attempted := make([]int, 0, len(locks))
	for _, c := range locks {
		attempted = append(attempted, c.Index)
	}
	rejected, err := b.executor.ApplyStatements(ctx, st, locks)
	for _, i := range accepted(attempted, rejected, err) {
		r.hold(i)
		st.Entries[i].Outcome.Locked = true
	}
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	if len(rejected) > 0 && r.transaction() {
		r.fail(fmt.Sprintf(lockFailedMessage, int(b.config.LockDuration/time.Second)))
		return r, r.rollback(ctx, r.appliedIncludingFailed())
	}

	puts := make([]store.IndexedPut, 0, len(st.Puts))
	attempted = attempted[:0]
	for _, p := range st.Puts {
		if !st.Responses[p.Index].Failed() {
			puts = append(puts, p)
			attempted = append(attempted, p.Index)
		}
	}
	rejected, err = b.executor.ApplyPuts(ctx, st, puts)
	for _, i := range accepted(attempted, rejected, err) {
		r.hold(i)
		st.Entries[i].Outcome.Written = true
	}
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	if err := r.settle(ctx, rejected, writeFailedMessage); err != nil || !r.success {
		return r, err
	}

	// Nothing is committed until both the new versions are published and the
	// deletes are confirmed. Up to then a failure rolls back every entry.
	pending := r.applied()
	rejected, err = b.committer.Publish(ctx, st, pending)
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	if err := r.settle(ctx, rejected, publishFailedMessage); err != nil || !r.success {
		return r, err
	}

	pending = r.applied()
	confirms := planCommit(st, pending).confirm
	attempted = attempted[:0]
	for _, c := range confirms {
		attempted = append(attempted, c.Index)
	}
	rejected, err = b.committer.Confirm(ctx, st, pending)
	for _, i := range accepted(attempted, rejected, err) {
		st.Entries[i].Outcome.Confirmed = true
	}
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	if err := r.settle(ctx, rejected, publishFailedMessage); err != nil || !r.success {
		return r, err
	}

	pending = r.applied()
	for _, i := range pending {
		st.Entries[i].Outcome.Committed = true
	}
	unlockRejected, err := b.committer.Unlock(ctx, st, pending)
	if err != nil {
		b.logger.Error("failed to unlock prior versions", zap.Error(err))
	}
	for _, u := range unlockRejected {
		b.logger.Warn("prior version stays locked until lock expiry",
			zap.String("id", st.Responses[u.Index].ID), zap.String("error", u.String()))
	}
	for _, i := range pending {
		r.release(i)
	}
	r.reportHeld()
	return r, nil
}

// accepted returns the indexes out of attempted that the store applied. When
// the call failed outright only the chunks it reports as completed count.
func accepted(attempted []int, rejected map[int]bool, err error) []int {
	if err != nil {
		var incomplete store.IncompleteBatchError
		if !errors.As(err, &incomplete) {
			return nil
		}
		attempted = incomplete.Completed
	}
	out := make([]int, 0, len(attempted))
	for _, i := range attempted {
		if !rejected[i] {
			out = append(out, i)
		}
	}
	return out
}

// settle handles the entries rejected by the last write step. A transaction
// rolls back entirely; a batch rolls back the rejected entries only.
func (r *bundleRun) settle(ctx context.Context, rejected map[int]bool, message string) error {
	if len(rejected) == 0 {
		return nil
	}
	if r.transaction() {
		r.fail(message)
		return r.rollback(ctx, r.appliedIncludingFailed())
	}
	var failed []int
	for _, i := range r.appliedIncludingFailed() {
		if r.st.Responses[i].Failed() {
			failed = append(failed, i)
		}
	}
	return r.rollback(ctx, failed)
}

func (r *bundleRun) hold(i int) {
	for _, m := range r.st.Entries[i].Markers {
		r.held[m.Key] = m
	}
}

func (r *bundleRun) release(i int) {
	for _, m := range r.st.Entries[i].Markers {
		delete(r.held, m.Key)
	}
}

func (r *bundleRun) reportHeld() {
	for _, m := range r.held {
		r.logger.Warn("bundle left a version held",
			zap.String("resourceType", m.ResourceType), zap.String("id", m.ID), zap.Int("vid", m.VID))
	}
}

// applied returns, in order, the entries with writes in the store and no error.
func (r *bundleRun) applied() []int {
	var indexes []int
	for _, e := range r.st.Entries {
		if e.Outcome.Applied() && !r.st.Responses[e.Index].Failed() {
			indexes = append(indexes, e.Index)
		}
	}
	return indexes
}

func (r *bundleRun) appliedIncludingFailed() []int {
	var indexes []int
	for _, e := range r.st.Entries {
		if e.Outcome.Applied() {
			indexes = append(indexes, e.Index)
		}
	}
	return indexes
}

// abort rolls back everything applied and not yet committed after a store
// call failed outright.
func (r *bundleRun) abort(ctx context.Context, cause error) error {
	var pending []int
	for _, i := range r.appliedIncludingFailed() {
		if !r.st.Entries[i].Outcome.Committed {
			pending = append(pending, i)
		}
	}
	if err := r.rollback(ctx, pending); err != nil {
		return multierror.Append(cause, err)
	}
	return cause
}

// rollback compensates the given entries. It runs on a context detached from
// the caller's cancellation so a timed out bundle is still undone.
func (r *bundleRun) rollback(ctx context.Context, indexes []int) error {
	applied := make([]appliedEntry, 0, len(indexes))
	for _, i := range indexes {
		e := r.st.Entries[i]
		applied = append(applied, appliedEntry{
			response:  r.st.Responses[i],
			locked:    e.Outcome.Locked,
			written:   e.Outcome.Written,
			created:   e.Created,
			confirmed: e.Outcome.Confirmed,
		})
	}
	plan := generateRollback(r.st.TenantID, applied)
	if plan.Empty() {
		return nil
	}
	r.rollbacks.WithLabelValues(string(r.mode)).Inc()

	ids := make([]string, 0, len(plan.ItemsToRemoveFromLock))
	for _, m := range plan.ItemsToRemoveFromLock {
		ids = append(ids, fmt.Sprintf("%s/%s/%d", m.ResourceType, m.ID, m.VID))
	}
	sort.Strings(ids)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.rollbackTimeout)
	defer cancel()
	if err := r.store.Compensate(ctx, plan.TransactionRequests); err != nil {
		r.logger.Error(rollbackFailedLogMessage, zap.Strings("versions", ids), zap.Error(err))
		return err
	}
	r.logger.Info("rolled back bundle entries", zap.String("mode", string(r.mode)), zap.Strings("versions", ids))

	for _, m := range plan.ItemsToRemoveFromLock {
		delete(r.held, m.Key)
	}
	for _, i := range indexes {
		r.st.Entries[i].Outcome = Outcome{}
	}
	return nil
}

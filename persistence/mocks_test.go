// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
)

type mockStore struct {
	mock.Mock
}

var _ store.S = (*mockStore)(nil)

func (m *mockStore) QueryVersions(ctx context.Context, tenantID, id string, limit int) ([]model.VersionRecord, error) {
	args := m.Called(ctx, tenantID, id, limit)
	records, _ := args.Get(0).([]model.VersionRecord)
	return records, args.Error(1)
}

func (m *mockStore) GetVersion(ctx context.Context, key model.Key) (model.VersionRecord, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(model.VersionRecord), args.Bool(1), args.Error(2)
}

func (m *mockStore) PutVersion(ctx context.Context, rec model.VersionRecord, onlyIfAbsent bool) error {
	args := m.Called(ctx, rec, onlyIfAbsent)
	return args.Error(0)
}

func (m *mockStore) ChangeStatus(ctx context.Context, change store.StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockStore) BatchPut(ctx context.Context, puts []store.IndexedPut) ([]store.ItemError, error) {
	args := m.Called(ctx, puts)
	rejected, _ := args.Get(0).([]store.ItemError)
	return rejected, args.Error(1)
}

func (m *mockStore) BatchChangeStatus(ctx context.Context, changes []store.IndexedChange) ([]store.ItemError, error) {
	args := m.Called(ctx, changes)
	rejected, _ := args.Get(0).([]store.ItemError)
	return rejected, args.Error(1)
}

func (m *mockStore) Compensate(ctx context.Context, comps []store.Compensation) error {
	args := m.Called(ctx, comps)
	return args.Error(0)
}

func (m *mockStore) ActiveSubscriptions(ctx context.Context, tenantID string) ([]model.Resource, error) {
	args := m.Called(ctx, tenantID)
	resources, _ := args.Get(0).([]model.Resource)
	return resources, args.Error(1)
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"github.com/xmidt-org/hygieia/store/inmem"
	"go.uber.org/zap"
)

func newTestDataService(s store.S, config store.Config) *DataService {
	b := NewBundler(s, config, metric.NewMeasures().BundleRollbacks, zap.NewNop())
	b.stager.now = func() time.Time { return testNow }
	d := NewDataService(s, b, config, zap.NewNop())
	d.now = func() time.Time { return testNow }
	d.newID = func() string { return "generated-id" }
	return d
}

func TestCreateResource(t *testing.T) {
	tcs := []struct {
		Description     string
		ID              string
		ExpectedID      string
		ExpectedErr     error
		ExistingVersion bool
	}{
		{
			Description: "Generated id",
			ExpectedID:  "generated-id",
		},
		{
			Description: "Supplied id",
			ID:          "patient-1",
			ExpectedID:  "patient-1",
		},
		{
			Description: "Invalid id",
			ID:          "patient 1",
			ExpectedErr: store.InvalidResourceError{Message: "Resource creation failed, id patient 1 is not valid"},
		},
		{
			Description:     "Id collision",
			ID:              "patient-1",
			ExistingVersion: true,
			ExpectedErr:     store.InvalidResourceError{Message: "Resource creation failed, id matches an existing resource"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			s := inmem.NewInMem()
			if tc.ExistingVersion {
				seed(t, s, "", "Patient", tc.ID, 1, model.StatusAvailable)
			}
			d := newTestDataService(s, store.Config{})

			resp, err := d.CreateResource(context.Background(), ResourceRequest{
				ResourceType: "Patient",
				ID:           tc.ID,
				Resource:     model.Resource{"name": "Jane", "meta": map[string]interface{}{"versionId": "7", "security": "x"}},
			})
			if tc.ExpectedErr != nil {
				assert.Equal(tc.ExpectedErr, err)
				return
			}
			require.NoError(t, err)
			assert.True(resp.Success)
			assert.Equal("Resource created", resp.Message)
			assert.Equal(tc.ExpectedID, resp.Resource["id"])
			assert.Equal(map[string]interface{}{"versionId": "1", "lastUpdated": testLastModified, "security": "x"}, resp.Resource["meta"])

			rec, ok, err := s.GetVersion(context.Background(), model.Key{ID: tc.ExpectedID, VID: 1})
			assert.NoError(err)
			assert.True(ok)
			assert.Equal(model.StatusAvailable, rec.DocumentStatus)
		})
	}
}

func TestReadAndVReadResource(t *testing.T) {
	s := inmem.NewInMem()
	seed(t, s, "", "Patient", "p1", 1, model.StatusAvailable)
	seed(t, s, "", "Patient", "p1", 2, model.StatusPending)
	d := newTestDataService(s, store.Config{})

	tcs := []struct {
		Description string
		Read        func(context.Context, ResourceRequest) (Response, error)
		Request     ResourceRequest
		ExpectedVID string
		ExpectedErr error
	}{
		{
			Description: "Read skips the pending version",
			Read:        d.ReadResource,
			Request:     ResourceRequest{ResourceType: "Patient", ID: "p1"},
			ExpectedVID: "1",
		},
		{
			Description: "Read with another type",
			Read:        d.ReadResource,
			Request:     ResourceRequest{ResourceType: "Observation", ID: "p1"},
			ExpectedErr: store.NotFoundError{ResourceType: "Observation", ID: "p1"},
		},
		{
			Description: "VRead committed version",
			Read:        d.VReadResource,
			Request:     ResourceRequest{ResourceType: "Patient", ID: "p1", VID: "1"},
			ExpectedVID: "1",
		},
		{
			Description: "VRead pending version",
			Read:        d.VReadResource,
			Request:     ResourceRequest{ResourceType: "Patient", ID: "p1", VID: "2"},
			ExpectedErr: store.VersionNotFoundError{ResourceType: "Patient", ID: "p1", VID: "2"},
		},
		{
			Description: "VRead missing version",
			Read:        d.VReadResource,
			Request:     ResourceRequest{ResourceType: "Patient", ID: "p1", VID: "9"},
			ExpectedErr: store.VersionNotFoundError{ResourceType: "Patient", ID: "p1", VID: "9"},
		},
		{
			Description: "VRead with another type",
			Read:        d.VReadResource,
			Request:     ResourceRequest{ResourceType: "Observation", ID: "p1", VID: "1"},
			ExpectedErr: store.VersionNotFoundError{ResourceType: "Observation", ID: "p1", VID: "1"},
		},
		{
			Description: "VRead malformed version",
			Read:        d.VReadResource,
			Request:     ResourceRequest{ResourceType: "Patient", ID: "p1", VID: "one"},
			ExpectedErr: store.VersionNotFoundError{ResourceType: "Patient", ID: "p1", VID: "one"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			resp, err := tc.Read(context.Background(), tc.Request)
			if tc.ExpectedErr != nil {
				assert.Equal(tc.ExpectedErr, err)
				return
			}
			assert.NoError(err)
			assert.True(resp.Success)
			assert.Equal(map[string]interface{}{"versionId": tc.ExpectedVID, "lastUpdated": testNow.Add(-time.Hour).Format(model.TimeLayout)}, resp.Resource["meta"])
		})
	}
}

func TestUpdateResource(t *testing.T) {
	tcs := []struct {
		Description     string
		UpdateCreate    bool
		ID              string
		ExpectedMessage string
		ExpectedVID     string
		ExpectedErr     error
	}{
		{
			Description:     "Existing resource",
			ID:              "p1",
			ExpectedMessage: "Resource updated",
			ExpectedVID:     "2",
		},
		{
			Description: "Unknown resource",
			ID:          "p2",
			ExpectedErr: store.NotFoundError{ResourceType: "Patient", ID: "p2"},
		},
		{
			Description:     "Unknown resource created",
			UpdateCreate:    true,
			ID:              "p2",
			ExpectedMessage: "Resource created",
			ExpectedVID:     "1",
		},
		{
			Description:  "Unknown resource with an invalid id",
			UpdateCreate: true,
			ID:           "p/2",
			ExpectedErr:  store.InvalidResourceError{Message: "Resource creation failed, id p/2 is not valid"},
		},
		{
			Description:     "Deleted resource created again",
			UpdateCreate:    true,
			ID:              "p3",
			ExpectedMessage: "Resource created",
			ExpectedVID:     "3",
		},
		{
			Description:  "Id of another resource type",
			UpdateCreate: true,
			ID:           "o1",
			ExpectedErr:  store.InvalidResourceError{Message: "Resource creation failed, id matches an existing resource"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			s := inmem.NewInMem()
			seed(t, s, "", "Patient", "p1", 1, model.StatusAvailable)
			seed(t, s, "", "Patient", "p3", 1, model.StatusAvailable)
			seed(t, s, "", "Patient", "p3", 2, model.StatusDeleted)
			seed(t, s, "", "Observation", "o1", 1, model.StatusAvailable)
			d := newTestDataService(s, store.Config{UpdateCreateSupported: tc.UpdateCreate})

			resp, err := d.UpdateResource(context.Background(), ResourceRequest{
				ResourceType: "Patient",
				ID:           tc.ID,
				Resource:     model.Resource{"name": "updated"},
			})
			if tc.ExpectedErr != nil {
				assert.Equal(tc.ExpectedErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(tc.ExpectedMessage, resp.Message)
			assert.Equal("updated", resp.Resource["name"])
			assert.Equal(tc.ExpectedVID, resp.Resource["meta"].(map[string]interface{})["versionId"])

			read, err := d.ReadResource(context.Background(), ResourceRequest{ResourceType: "Patient", ID: tc.ID})
			assert.NoError(err)
			assert.Equal(resp.Resource, read.Resource)
		})
	}
}

func TestUpdateResourceLocked(t *testing.T) {
	assert := assert.New(t)
	s := inmem.NewInMem()
	require.NoError(t, s.PutVersion(context.Background(), model.VersionRecord{
		Key:            model.Key{ID: "p1", VID: 1},
		ResourceType:   "Patient",
		DocumentStatus: model.StatusLocked,
		LockEndTs:      testNow.Add(time.Minute).UnixMilli(),
	}, false))
	d := newTestDataService(s, store.Config{})

	_, err := d.UpdateResource(context.Background(), ResourceRequest{ResourceType: "Patient", ID: "p1", Resource: model.Resource{}})
	assert.Equal(store.ConflictError{Message: "Failed to lock resources for transaction. Please try again after 35 seconds."}, err)
}

func TestDeleteResource(t *testing.T) {
	assert := assert.New(t)
	s := inmem.NewInMem()
	seed(t, s, "t1", "Patient", "p1", 1, model.StatusAvailable)
	seed(t, s, "t1", "Patient", "p1", 2, model.StatusAvailable)
	d := newTestDataService(s, store.Config{EnableMultiTenancy: true})

	req := ResourceRequest{TenantID: "t1", ResourceType: "Patient", ID: "p1"}
	resp, err := d.DeleteResource(context.Background(), req)
	require.NoError(t, err)
	assert.Equal("Successfully deleted ResourceType: Patient, Id: p1, VersionId: 2", resp.Message)

	_, err = d.ReadResource(context.Background(), req)
	assert.Equal(store.NotFoundError{ResourceType: "Patient", ID: "p1"}, err)
	_, err = d.DeleteResource(context.Background(), req)
	assert.Equal(store.NotFoundError{ResourceType: "Patient", ID: "p1"}, err)
}

func TestDeleteResourceConflict(t *testing.T) {
	assert := assert.New(t)
	m := new(mockStore)
	m.On("QueryVersions", mock.Anything, "", "p1", 2).Return([]model.VersionRecord{version("Patient", 3, model.StatusLocked)}, nil)
	m.On("ChangeStatus", mock.Anything, store.StatusChange{
		Key:  model.Key{ID: "p1", VID: 3},
		From: model.StatusAvailable,
		To:   model.StatusDeleted,
	}).Return(store.ErrConditionFailed)
	d := newTestDataService(m, store.Config{})

	_, err := d.DeleteResource(context.Background(), ResourceRequest{ResourceType: "Patient", ID: "p1"})
	var conflict store.ConflictError
	assert.ErrorAs(err, &conflict)
	m.AssertExpectations(t)
}

func TestGetActiveSubscriptions(t *testing.T) {
	tcs := []struct {
		Description    string
		MultiTenancy   bool
		ExpectedTenant string
	}{
		{Description: "Single tenant", ExpectedTenant: ""},
		{Description: "Multi tenant", MultiTenancy: true, ExpectedTenant: "t1"},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			m := new(mockStore)
			subs := []model.Resource{{"resourceType": "Subscription", "status": "active"}}
			m.On("ActiveSubscriptions", mock.Anything, tc.ExpectedTenant).Return(subs, nil)
			d := newTestDataService(m, store.Config{EnableMultiTenancy: tc.MultiTenancy})

			got, err := d.GetActiveSubscriptions(context.Background(), "t1")
			assert.NoError(err)
			assert.Equal(subs, got)
		})
	}

	m := new(mockStore)
	m.On("ActiveSubscriptions", mock.Anything, "").Return(nil, errors.New("index missing"))
	_, err := newTestDataService(m, store.Config{}).GetActiveSubscriptions(context.Background(), "")
	assert.EqualError(t, err, "index missing")
}

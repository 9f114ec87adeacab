// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
	"go.uber.org/zap"
)

const (
	createdMessage = "Resource created"
	updatedMessage = "Resource updated"
	foundMessage   = "Resource found"
)

// ResourceRequest addresses a single resource, or one version of it.
type ResourceRequest struct {
	TenantID     string
	ResourceType string
	ID           string
	VID          string
	Resource     model.Resource
}

// Response is the result of a single resource operation.
type Response struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Resource model.Resource `json:"resource,omitempty"`
}

// DataService is the single resource entry point. Updates go through the
// bundle protocol as one entry transactions.
type DataService struct {
	store    store.S
	resolver *Resolver
	bundler  *Bundler
	config   store.Config
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewDataService(s store.S, bundler *Bundler, config store.Config, logger *zap.Logger) *DataService {
	return &DataService{
		store:    s,
		resolver: NewResolver(s),
		bundler:  bundler,
		config:   config.WithDefaults(),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateResource writes version 1 of a new resource. The id is generated
// unless the request carries one.
func (d *DataService) CreateResource(ctx context.Context, req ResourceRequest) (Response, error) {
	id := req.ID
	if id == "" {
		id = d.newID()
	} else if !ValidID(id) {
		return Response{}, store.InvalidResourceError{Message: fmt.Sprintf("Resource creation failed, id %s is not valid", id)}
	}
	rec := model.VersionRecord{
		Key:            model.Key{TenantID: d.config.Tenant(req.TenantID), ID: id, VID: 1},
		ResourceType:   req.ResourceType,
		DocumentStatus: model.StatusAvailable,
		Resource:       req.Resource.Stamp(req.ResourceType, id, 1, d.now()),
	}
	err := d.store.PutVersion(ctx, rec, true)
	if errors.Is(err, store.ErrConditionFailed) {
		return Response{}, store.InvalidResourceError{Message: "Resource creation failed, id matches an existing resource"}
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Message: createdMessage, Resource: rec.Resource}, nil
}

// ReadResource returns the current readable version.
func (d *DataService) ReadResource(ctx context.Context, req ResourceRequest) (Response, error) {
	rec, err := d.resolver.Resolve(ctx, req.ResourceType, req.ID, d.config.Tenant(req.TenantID))
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Message: foundMessage, Resource: rec.Resource}, nil
}

// VReadResource returns one committed version.
func (d *DataService) VReadResource(ctx context.Context, req ResourceRequest) (Response, error) {
	notFound := store.VersionNotFoundError{ResourceType: req.ResourceType, ID: req.ID, VID: req.VID}
	vid, err := cast.ToIntE(req.VID)
	if err != nil || vid < 1 {
		return Response{}, notFound
	}
	rec, ok, err := d.store.GetVersion(ctx, model.Key{TenantID: d.config.Tenant(req.TenantID), ID: req.ID, VID: vid})
	if err != nil {
		return Response{}, err
	}
	if !ok || rec.ResourceType != req.ResourceType || rec.DocumentStatus == model.StatusPending {
		return Response{}, notFound
	}
	return Response{Success: true, Message: foundMessage, Resource: rec.Resource}, nil
}

// UpdateResource writes a new version of the resource, or version 1 when
// the id is unknown and update-as-create is enabled.
func (d *DataService) UpdateResource(ctx context.Context, req ResourceRequest) (Response, error) {
	r, err := d.bundler.run(ctx, model.BundleTransaction, req.TenantID, []model.BatchRequest{{
		Operation:    model.OperationUpdate,
		ResourceType: req.ResourceType,
		ID:           req.ID,
		Resource:     req.Resource,
	}})
	if err != nil {
		return Response{}, err
	}
	if e := r.st.Entries[0].Err; e != nil {
		var conflict store.ConflictError
		if errors.As(e, &conflict) {
			return Response{}, store.ConflictError{Message: r.message}
		}
		return Response{}, e
	}
	if !r.success {
		return Response{}, store.ConflictError{Message: r.message}
	}

	var body model.Resource
	for _, p := range r.st.Puts {
		if p.Index == 0 {
			body = p.Record.Resource
		}
	}
	message := updatedMessage
	if r.st.Entries[0].Created {
		message = createdMessage
	}
	return Response{Success: true, Message: message, Resource: body}, nil
}

// DeleteResource marks the current version DELETED.
func (d *DataService) DeleteResource(ctx context.Context, req ResourceRequest) (Response, error) {
	tenantID := d.config.Tenant(req.TenantID)
	rec, err := d.resolver.Resolve(ctx, req.ResourceType, req.ID, tenantID)
	if err != nil {
		return Response{}, err
	}
	err = d.store.ChangeStatus(ctx, store.StatusChange{
		Key:  model.Key{TenantID: tenantID, ID: req.ID, VID: rec.VID},
		From: model.StatusAvailable,
		To:   model.MustNext(model.StatusAvailable, model.EventDelete),
	})
	if errors.Is(err, store.ErrConditionFailed) {
		d.logger.Info("delete lost to a concurrent writer",
			zap.String("resourceType", req.ResourceType), zap.String("id", req.ID), zap.Int("vid", rec.VID))
		return Response{}, store.ConflictError{
			Message: fmt.Sprintf("Resource %s/%s is being modified by another request", req.ResourceType, req.ID),
		}
	}
	if err != nil {
		return Response{}, err
	}
	return Response{
		Success: true,
		Message: fmt.Sprintf("Successfully deleted ResourceType: %s, Id: %s, VersionId: %d", req.ResourceType, req.ID, rec.VID),
	}, nil
}

// GetActiveSubscriptions lists the active Subscription resources of the tenant.
func (d *DataService) GetActiveSubscriptions(ctx context.Context, tenantID string) ([]model.Resource, error) {
	return d.store.ActiveSubscriptions(ctx, d.config.Tenant(tenantID))
}

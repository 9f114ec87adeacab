// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/persistence"
)

// ResourceService is the single resource surface of the persistence core.
type ResourceService interface {
	CreateResource(context.Context, persistence.ResourceRequest) (persistence.Response, error)
	ReadResource(context.Context, persistence.ResourceRequest) (persistence.Response, error)
	VReadResource(context.Context, persistence.ResourceRequest) (persistence.Response, error)
	UpdateResource(context.Context, persistence.ResourceRequest) (persistence.Response, error)
	DeleteResource(context.Context, persistence.ResourceRequest) (persistence.Response, error)
	GetActiveSubscriptions(ctx context.Context, tenantID string) ([]model.Resource, error)
}

// BundleService runs transaction and batch bundles.
type BundleService interface {
	Process(ctx context.Context, mode model.BundleType, tenantID string, requests []model.BatchRequest) (model.BundleResponse, error)
}

// ExportService admits and tracks bulk export jobs.
type ExportService interface {
	Initiate(ctx context.Context, req model.InitiateExportRequest) (string, error)
	Cancel(ctx context.Context, tenantID, jobID string) error
	GetStatus(ctx context.Context, tenantID, jobID string) (model.ExportJobStatus, error)
	UpdateJobStatus(ctx context.Context, tenantID, jobID string, status model.JobStatus) error
}

type resourceCall func(context.Context, persistence.ResourceRequest) (persistence.Response, error)

func newResourceEndpoint(call resourceCall) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*persistence.ResourceRequest)
		resp, err := call(ctx, *req)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}
}

func newActiveSubscriptionsEndpoint(s ResourceService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*activeSubscriptionsRequest)
		return s.GetActiveSubscriptions(ctx, req.tenantID)
	}
}

func newBundleEndpoint(s BundleService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*bundleRequest)
		resp, err := s.Process(ctx, req.Type, req.TenantID, req.Entries)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}
}

func newInitiateExportEndpoint(s ExportService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*model.InitiateExportRequest)
		jobID, err := s.Initiate(ctx, *req)
		if err != nil {
			return nil, err
		}
		return &initiateExportResponse{jobID: jobID}, nil
	}
}

func newExportStatusEndpoint(s ExportService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*jobRequest)
		status, err := s.GetStatus(ctx, req.tenantID, req.jobID)
		if err != nil {
			return nil, err
		}
		return &status, nil
	}
}

func newCancelExportEndpoint(s ExportService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*jobRequest)
		return nil, s.Cancel(ctx, req.tenantID, req.jobID)
	}
}

func newUpdateJobStatusEndpoint(s ExportService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*updateJobStatusRequest)
		return nil, s.UpdateJobStatus(ctx, req.tenantID, req.jobID, req.Status)
	}
}

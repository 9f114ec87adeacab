// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/persistence"
	"github.com/xmidt-org/hygieia/store"
)

// request URL path keys
const (
	resourceTypeVarKey = "resourceType"
	idVarKey           = "id"
	vidVarKey          = "vid"
	jobIDVarKey        = "jobId"
	groupIDVarKey      = "groupId"
)

// Request and Response Headers
const (
	TenantHeaderKey       = "X-Tenant-Id"
	RequesterHeaderKey    = "X-Requester-Id"
	HygieiaErrorHeaderKey = "X-Hygieia-Error"
	contentLocationKey    = "Content-Location"
	contentTypeKey        = "Content-Type"
)

const fhirJSON = "application/fhir+json"

// ErrCasting indicates there was a middleware wiring mistake with the go-kit style
// encoders.
var ErrCasting = errors.New("casting error due to middleware wiring mistake")

type bundleRequest struct {
	TenantID string               `json:"-"`
	Type     model.BundleType     `json:"type"`
	Entries  []model.BatchRequest `json:"entries"`
}

type jobRequest struct {
	tenantID string
	jobID    string
}

type updateJobStatusRequest struct {
	tenantID string
	jobID    string
	Status   model.JobStatus `json:"jobStatus"`
}

type initiateExportResponse struct {
	jobID string
}

type activeSubscriptionsRequest struct {
	tenantID string
}

func readJSON(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return errBodyUnreadable
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBodyUnreadable
	}
	return nil
}

func resourceRequestDecoder(config *transportConfig, withID, withVID, withBody bool) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		tenantID, err := config.tenant(r.Header.Get(TenantHeaderKey))
		if err != nil {
			return nil, err
		}
		vars := mux.Vars(r)
		req := &persistence.ResourceRequest{
			TenantID:     tenantID,
			ResourceType: vars[resourceTypeVarKey],
		}
		if withID {
			req.ID = vars[idVarKey]
			if req.ID == "" {
				return nil, errInvalidID
			}
		}
		if withVID {
			req.VID = vars[vidVarKey]
		}
		if err := config.validateResourcePath(req.ResourceType, req.ID); err != nil {
			return nil, err
		}
		if withBody {
			if err := readJSON(r, &req.Resource); err != nil {
				return nil, err
			}
			if req.Resource == nil {
				return nil, errBodyUnreadable
			}
			if rt, ok := req.Resource["resourceType"].(string); ok && rt != req.ResourceType {
				return nil, store.BadRequestErr{Message: "Resource types must match between the URL and payload."}
			}
			if id, ok := req.Resource["id"].(string); ok && withID && id != req.ID {
				return nil, store.BadRequestErr{Message: "IDs must match between the URL and payload."}
			}
		}
		return req, nil
	}
}

func bundleRequestDecoder(config *transportConfig) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		tenantID, err := config.tenant(r.Header.Get(TenantHeaderKey))
		if err != nil {
			return nil, err
		}
		var req bundleRequest
		if err := readJSON(r, &req); err != nil {
			return nil, err
		}
		if err := config.validateBundle(req); err != nil {
			return nil, err
		}
		req.TenantID = tenantID
		return &req, nil
	}
}

func initiateExportRequestDecoder(config *transportConfig, exportType model.ExportType) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		tenantID, err := config.tenant(r.Header.Get(TenantHeaderKey))
		if err != nil {
			return nil, err
		}
		requester := r.Header.Get(RequesterHeaderKey)
		if requester == "" {
			return nil, errRequesterMissing
		}
		query := r.URL.Query()
		req := &model.InitiateExportRequest{
			RequesterUserID:      requester,
			TenantID:             tenantID,
			AllowedResourceTypes: config.AllowedResourceTypes,
			ExportType:           exportType,
			OutputFormat:         query.Get("_outputFormat"),
			Since:                query.Get("_since"),
			Type:                 query.Get("_type"),
			GroupID:              mux.Vars(r)[groupIDVarKey],
		}
		if err := config.validateStruct("export request", req); err != nil {
			return nil, err
		}
		return req, nil
	}
}

func jobRequestDecoder(config *transportConfig) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		tenantID, err := config.tenant(r.Header.Get(TenantHeaderKey))
		if err != nil {
			return nil, err
		}
		return &jobRequest{
			tenantID: tenantID,
			jobID:    mux.Vars(r)[jobIDVarKey],
		}, nil
	}
}

func updateJobStatusRequestDecoder(config *transportConfig) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		tenantID, err := config.tenant(r.Header.Get(TenantHeaderKey))
		if err != nil {
			return nil, err
		}
		req := &updateJobStatusRequest{
			tenantID: tenantID,
			jobID:    mux.Vars(r)[jobIDVarKey],
		}
		if err := readJSON(r, req); err != nil {
			return nil, err
		}
		return req, nil
	}
}

func activeSubscriptionsRequestDecoder(config *transportConfig) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		tenantID, err := config.tenant(r.Header.Get(TenantHeaderKey))
		if err != nil {
			return nil, err
		}
		return &activeSubscriptionsRequest{tenantID: tenantID}, nil
	}
}

func writeJSON(rw http.ResponseWriter, code int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rw.Header().Set(contentTypeKey, fhirJSON)
	rw.WriteHeader(code)
	_, err = rw.Write(data)
	return err
}

func encodeResourceResponse(code int) kithttp.EncodeResponseFunc {
	return func(_ context.Context, rw http.ResponseWriter, response interface{}) error {
		r, ok := response.(*persistence.Response)
		if !ok {
			return ErrCasting
		}
		return writeJSON(rw, code, r.Resource)
	}
}

// encodeUpdateResponse answers 201 when the update created the resource.
func encodeUpdateResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	r, ok := response.(*persistence.Response)
	if !ok {
		return ErrCasting
	}
	code := http.StatusOK
	if r.Message == "Resource created" {
		code = http.StatusCreated
	}
	return writeJSON(rw, code, r.Resource)
}

func encodeDeleteResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	r, ok := response.(*persistence.Response)
	if !ok {
		return ErrCasting
	}
	return writeJSON(rw, http.StatusOK, r)
}

func encodeBundleResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	r, ok := response.(*model.BundleResponse)
	if !ok {
		return ErrCasting
	}
	return writeJSON(rw, http.StatusOK, r)
}

func encodeInitiateExportResponse(basePath string) kithttp.EncodeResponseFunc {
	return func(_ context.Context, rw http.ResponseWriter, response interface{}) error {
		r, ok := response.(*initiateExportResponse)
		if !ok {
			return ErrCasting
		}
		rw.Header().Set(contentLocationKey, fmt.Sprintf("%s/$export/%s", basePath, r.jobID))
		rw.WriteHeader(http.StatusAccepted)
		return nil
	}
}

// encodeExportStatusResponse answers 202 while the job is still running.
func encodeExportStatusResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	r, ok := response.(*model.ExportJobStatus)
	if !ok {
		return ErrCasting
	}
	code := http.StatusOK
	if r.JobStatus == model.JobInProgress || r.JobStatus == model.JobCanceling {
		code = http.StatusAccepted
	}
	return writeJSON(rw, code, r)
}

func encodeAccepted(_ context.Context, rw http.ResponseWriter, _ interface{}) error {
	rw.WriteHeader(http.StatusAccepted)
	return nil
}

func encodeOK(_ context.Context, rw http.ResponseWriter, _ interface{}) error {
	rw.WriteHeader(http.StatusOK)
	return nil
}

func encodeActiveSubscriptionsResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	subs, ok := response.([]model.Resource)
	if !ok {
		return ErrCasting
	}
	if subs == nil {
		subs = []model.Resource{}
	}
	return writeJSON(rw, http.StatusOK, subs)
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	var sanitized store.SanitizedError
	if errors.As(err, &sanitized) {
		err = sanitized.Sanitized()
	}
	w.Header().Set(HygieiaErrorHeaderKey, err.Error())
	var headerer kithttp.Headerer
	if errors.As(err, &headerer) {
		for k, values := range headerer.Headers() {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
	}
	code := http.StatusInternalServerError
	var sc kithttp.StatusCoder
	if errors.As(err, &sc) {
		code = sc.StatusCode()
	}
	w.WriteHeader(code)
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/xmidt-org/hygieia/model"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers of the persistence API, one per route.
type Handlers struct {
	Create              http.Handler
	Read                http.Handler
	VRead               http.Handler
	Update              http.Handler
	Delete              http.Handler
	Bundle              http.Handler
	ActiveSubscriptions http.Handler

	InitiateSystemExport  http.Handler
	InitiatePatientExport http.Handler
	InitiateGroupExport   http.Handler
	ExportStatus          http.Handler
	CancelExport          http.Handler
	UpdateJobStatus       http.Handler
}

type handlerFactory struct {
	logger *zap.Logger
}

func (f handlerFactory) server(e endpoint.Endpoint, dec kithttp.DecodeRequestFunc, enc kithttp.EncodeResponseFunc) http.Handler {
	return kithttp.NewServer(
		e,
		dec,
		enc,
		kithttp.ServerErrorEncoder(encodeError),
		kithttp.ServerErrorHandler(transport.ErrorHandlerFunc(func(ctx context.Context, err error) {
			f.logger.Debug("request failed", zap.Error(err))
		})),
	)
}

// newHandlers builds every handler of the API. basePath prefixes the
// Content-Location of new export jobs.
func newHandlers(resources ResourceService, bundles BundleService, exports ExportService, config *transportConfig, basePath string, logger *zap.Logger) Handlers {
	f := handlerFactory{logger: logger}
	initiate := newInitiateExportEndpoint(exports)
	return Handlers{
		Create: f.server(newResourceEndpoint(resources.CreateResource),
			resourceRequestDecoder(config, false, false, true), encodeResourceResponse(http.StatusCreated)),
		Read: f.server(newResourceEndpoint(resources.ReadResource),
			resourceRequestDecoder(config, true, false, false), encodeResourceResponse(http.StatusOK)),
		VRead: f.server(newResourceEndpoint(resources.VReadResource),
			resourceRequestDecoder(config, true, true, false), encodeResourceResponse(http.StatusOK)),
		Update: f.server(newResourceEndpoint(resources.UpdateResource),
			resourceRequestDecoder(config, true, false, true), encodeUpdateResponse),
		Delete: f.server(newResourceEndpoint(resources.DeleteResource),
			resourceRequestDecoder(config, true, false, false), encodeDeleteResponse),
		Bundle: f.server(newBundleEndpoint(bundles),
			bundleRequestDecoder(config), encodeBundleResponse),
		ActiveSubscriptions: f.server(newActiveSubscriptionsEndpoint(resources),
			activeSubscriptionsRequestDecoder(config), encodeActiveSubscriptionsResponse),

		InitiateSystemExport: f.server(initiate,
			initiateExportRequestDecoder(config, model.ExportSystem), encodeInitiateExportResponse(basePath)),
		InitiatePatientExport: f.server(initiate,
			initiateExportRequestDecoder(config, model.ExportPatient), encodeInitiateExportResponse(basePath)),
		InitiateGroupExport: f.server(initiate,
			initiateExportRequestDecoder(config, model.ExportGroup), encodeInitiateExportResponse(basePath)),
		ExportStatus: f.server(newExportStatusEndpoint(exports),
			jobRequestDecoder(config), encodeExportStatusResponse),
		CancelExport: f.server(newCancelExportEndpoint(exports),
			jobRequestDecoder(config), encodeAccepted),
		UpdateJobStatus: f.server(newUpdateJobStatusEndpoint(exports),
			updateJobStatusRequestDecoder(config), encodeOK),
	}
}

// ConfigureRoutes mounts the handlers on r. Export routes are registered
// first so that their literal segments win over resource type patterns.
func ConfigureRoutes(r *mux.Router, h Handlers) {
	r.Handle("/$export", h.InitiateSystemExport).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/Patient/$export", h.InitiatePatientExport).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/Group/{groupId}/$export", h.InitiateGroupExport).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/$export/{jobId}", h.ExportStatus).Methods(http.MethodGet)
	r.Handle("/$export/{jobId}", h.CancelExport).Methods(http.MethodDelete)
	r.Handle("/$export/{jobId}/status", h.UpdateJobStatus).Methods(http.MethodPut)
	r.Handle("/$activeSubscriptions", h.ActiveSubscriptions).Methods(http.MethodGet)

	r.Handle("/", h.Bundle).Methods(http.MethodPost)
	r.Handle("/{resourceType}", h.Create).Methods(http.MethodPost)
	r.Handle("/{resourceType}/{id}", h.Read).Methods(http.MethodGet)
	r.Handle("/{resourceType}/{id}", h.Update).Methods(http.MethodPut)
	r.Handle("/{resourceType}/{id}", h.Delete).Methods(http.MethodDelete)
	r.Handle("/{resourceType}/{id}/_history/{vid}", h.VRead).Methods(http.MethodGet)
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package client is the Go client of the persistence API, used by the bulk
// export job runner to report progress and by tools submitting bundles.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/xmidt-org/hygieia/api"
	"github.com/xmidt-org/hygieia/model"
	"go.uber.org/zap"
)

var (
	ErrAddressEmpty = errors.New("hygieia address is required")
	ErrJobIDEmpty   = errors.New("job ID is required")
	ErrBadRequest   = errors.New("hygieia rejected the request as invalid")
	ErrNotFound     = errors.New("hygieia does not know the requested item")
	ErrThrottled    = errors.New("hygieia is throttling requests")
	ErrConflict     = errors.New("hygieia reported a conflicting write")
	ErrUnauthorized = errors.New("hygieia refused the requester")
)

var (
	errNonSuccessResponse = errors.New("hygieia responded with a non-success status code")
	errNewRequestFailure  = errors.New("failed creating an HTTP request")
	errDoRequestFailure   = errors.New("http client failed while sending request")
	errReadingBodyFailure = errors.New("failed while reading http response body")
	errJSONUnmarshal      = errors.New("failed unmarshaling JSON response payload")
	errJSONMarshal        = errors.New("failed marshaling JSON payload")
	errNoContentLocation  = errors.New("export was accepted without a Content-Location")
)

const (
	errWrappedFmt    = "%w: %s"
	errStatusCodeFmt = "%w: received status %v"
	errorHeaderKey   = "errorHeader"
)

// Config contains config data for the client.
type Config struct {
	// Address is the hygieia URL (i.e. https://example-hygieia.io:6600)
	Address string

	// TenantID is sent with every request when set.
	TenantID string

	// RequesterID identifies the caller to export admission.
	RequesterID string

	// HTTPClient refers to the client that will be used to send requests.
	// (Optional) Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger
}

// Client makes requests to the persistence API.
type Client struct {
	client      *http.Client
	baseURL     string
	tenantID    string
	requesterID string
	logger      *zap.Logger
}

type response struct {
	Body        []byte
	ErrorHeader string
	Code        int
	Header      http.Header
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &Client{
		client:      config.HTTPClient,
		baseURL:     config.Address + api.APIBase,
		tenantID:    config.TenantID,
		requesterID: config.RequesterID,
		logger:      config.Logger,
	}, nil
}

func validateConfig(config *Config) error {
	if config.Address == "" {
		return ErrAddressEmpty
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return nil
}

// SubmitBundle sends a transaction or batch bundle.
func (c *Client) SubmitBundle(ctx context.Context, mode model.BundleType, entries []model.BatchRequest) (model.BundleResponse, error) {
	data, err := json.Marshal(map[string]interface{}{"type": mode, "entries": entries})
	if err != nil {
		return model.BundleResponse{}, fmt.Errorf(errWrappedFmt, errJSONMarshal, err.Error())
	}
	resp, err := c.sendRequest(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(data))
	if err != nil {
		return model.BundleResponse{}, err
	}
	if resp.Code != http.StatusOK {
		return model.BundleResponse{}, c.failure(resp, "SubmitBundle")
	}
	var bundle model.BundleResponse
	if err := json.Unmarshal(resp.Body, &bundle); err != nil {
		return bundle, fmt.Errorf("SubmitBundle: %w: %s", errJSONUnmarshal, err.Error())
	}
	return bundle, nil
}

// InitiateExport starts a system level export of the given resource types
// and returns the id of the new job.
func (c *Client) InitiateExport(ctx context.Context, types, since string) (string, error) {
	q := url.Values{}
	if types != "" {
		q.Set("_type", types)
	}
	if since != "" {
		q.Set("_since", since)
	}
	target := c.baseURL + "/$export"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	resp, err := c.sendRequest(ctx, http.MethodPost, target, nil)
	if err != nil {
		return "", err
	}
	if resp.Code != http.StatusAccepted {
		return "", c.failure(resp, "InitiateExport")
	}
	location := resp.Header.Get("Content-Location")
	if location == "" {
		return "", errNoContentLocation
	}
	return path.Base(location), nil
}

// ExportStatus fetches the status of an export job.
func (c *Client) ExportStatus(ctx context.Context, jobID string) (model.ExportJobStatus, error) {
	if jobID == "" {
		return model.ExportJobStatus{}, ErrJobIDEmpty
	}
	resp, err := c.sendRequest(ctx, http.MethodGet, c.jobURL(jobID), nil)
	if err != nil {
		return model.ExportJobStatus{}, err
	}
	if resp.Code != http.StatusOK && resp.Code != http.StatusAccepted {
		return model.ExportJobStatus{}, c.failure(resp, "ExportStatus")
	}
	var status model.ExportJobStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return status, fmt.Errorf("ExportStatus: %w: %s", errJSONUnmarshal, err.Error())
	}
	return status, nil
}

// CancelExport asks a running export job to stop.
func (c *Client) CancelExport(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrJobIDEmpty
	}
	resp, err := c.sendRequest(ctx, http.MethodDelete, c.jobURL(jobID), nil)
	if err != nil {
		return err
	}
	if resp.Code != http.StatusAccepted {
		return c.failure(resp, "CancelExport")
	}
	return nil
}

// UpdateJobStatus reports the progress of an export job.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	if jobID == "" {
		return ErrJobIDEmpty
	}
	data, err := json.Marshal(map[string]model.JobStatus{"jobStatus": status})
	if err != nil {
		return fmt.Errorf(errWrappedFmt, errJSONMarshal, err.Error())
	}
	resp, err := c.sendRequest(ctx, http.MethodPut, c.jobURL(jobID)+"/status", bytes.NewReader(data))
	if err != nil {
		return err
	}
	if resp.Code != http.StatusOK {
		return c.failure(resp, "UpdateJobStatus")
	}
	return nil
}

func (c *Client) jobURL(jobID string) string {
	return fmt.Sprintf("%s/$export/%s", c.baseURL, url.PathEscape(jobID))
}

func (c *Client) failure(resp response, call string) error {
	c.logger.Error("hygieia responded with a non-successful status code",
		zap.String("call", call), zap.Int("code", resp.Code), zap.String(errorHeaderKey, resp.ErrorHeader))
	return fmt.Errorf(errStatusCodeFmt, translateNonSuccessStatusCode(resp.Code), resp.Code)
}

func (c *Client) sendRequest(ctx context.Context, method, target string, body io.Reader) (response, error) {
	r, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, fmt.Errorf(errWrappedFmt, errNewRequestFailure, err.Error())
	}
	if c.tenantID != "" {
		r.Header.Set(api.TenantHeaderKey, c.tenantID)
	}
	if c.requesterID != "" {
		r.Header.Set(api.RequesterHeaderKey, c.requesterID)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(r)
	if err != nil {
		return response{}, fmt.Errorf(errWrappedFmt, errDoRequestFailure, err.Error())
	}
	defer resp.Body.Close()
	sqResp := response{
		Code:        resp.StatusCode,
		ErrorHeader: resp.Header.Get(api.HygieiaErrorHeaderKey),
		Header:      resp.Header,
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return sqResp, fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}
	sqResp.Body = bodyBytes
	return sqResp, nil
}

// translateNonSuccessStatusCode returns as specific error
// for known status codes.
func translateNonSuccessStatusCode(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		return errNonSuccessResponse
	}
}

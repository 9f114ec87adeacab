// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/httpaux/erraux"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/persistence"
	"github.com/xmidt-org/hygieia/store"
)

func transferHeaders(headers map[string]string, r *http.Request) {
	for k, v := range headers {
		r.Header.Set(k, v)
	}
}

func TestResourceRequestDecoder(t *testing.T) {
	tcs := []struct {
		Description     string
		Config          store.Config
		URLVars         map[string]string
		Headers         map[string]string
		Body            string
		ExpectedRequest interface{}
		ExpectedErr     error
	}{
		{
			Description: "Read",
			URLVars:     map[string]string{"resourceType": "Patient", "id": "p1"},
			ExpectedRequest: &persistence.ResourceRequest{
				ResourceType: "Patient",
				ID:           "p1",
			},
		},
		{
			Description: "Tenant passed through",
			Config:      store.Config{EnableMultiTenancy: true},
			URLVars:     map[string]string{"resourceType": "Patient", "id": "p1"},
			Headers:     map[string]string{TenantHeaderKey: "t1"},
			ExpectedRequest: &persistence.ResourceRequest{
				TenantID:     "t1",
				ResourceType: "Patient",
				ID:           "p1",
			},
		},
		{
			Description: "Tenant with a separator",
			Config:      store.Config{EnableMultiTenancy: true},
			URLVars:     map[string]string{"resourceType": "Patient", "id": "p1"},
			Headers:     map[string]string{TenantHeaderKey: "t1|p1"},
			ExpectedErr: errInvalidTenant,
		},
		{
			Description: "Missing id",
			URLVars:     map[string]string{"resourceType": "Patient"},
			ExpectedErr: errInvalidID,
		},
		{
			Description: "Body",
			URLVars:     map[string]string{"resourceType": "Patient", "id": "p1"},
			Body:        `{"resourceType":"Patient","id":"p1","active":true}`,
			ExpectedRequest: &persistence.ResourceRequest{
				ResourceType: "Patient",
				ID:           "p1",
				Resource:     model.Resource{"resourceType": "Patient", "id": "p1", "active": true},
			},
		},
		{
			Description: "Null body",
			URLVars:     map[string]string{"resourceType": "Patient", "id": "p1"},
			Body:        `null`,
			ExpectedErr: errBodyUnreadable,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			config, err := newTransportConfig(InputValidationConfig{}, ExportConfig{}, tc.Config)
			require.NoError(t, err)

			r := httptest.NewRequest(http.MethodPut, "http://localhost/test", strings.NewReader(tc.Body))
			transferHeaders(tc.Headers, r)
			r = mux.SetURLVars(r, tc.URLVars)

			req, err := resourceRequestDecoder(config, true, false, tc.Body != "")(context.Background(), r)
			assert.Equal(tc.ExpectedErr, err)
			assert.Equal(tc.ExpectedRequest, req)
		})
	}
}

func TestBundleLimit(t *testing.T) {
	config, err := newTransportConfig(InputValidationConfig{MaxBundleEntries: 1}, ExportConfig{}, store.Config{})
	require.NoError(t, err)
	body := `{"type":"batch","entries":[
		{"operation":"read","resourceType":"Patient","id":"a"},
		{"operation":"read","resourceType":"Patient","id":"b"}
	]}`
	r := httptest.NewRequest(http.MethodPost, "http://localhost/", strings.NewReader(body))

	_, err = bundleRequestDecoder(config)(context.Background(), r)
	assert.Equal(t, store.BadRequestErr{Message: "Bundle has 2 entries, the maximum is 1."}, err)
}

func TestBundleEntryFormat(t *testing.T) {
	tcs := []struct {
		Description string
		Entry       string
		ExpectedErr error
	}{
		{
			Description: "Valid",
			Entry:       `{"operation":"read","resourceType":"Patient","id":"a"}`,
		},
		{
			Description: "Create without an id",
			Entry:       `{"operation":"create","resourceType":"Patient","resource":{}}`,
		},
		{
			Description: "Lower case resource type",
			Entry:       `{"operation":"read","resourceType":"patient","id":"a"}`,
			ExpectedErr: store.BadRequestErr{Message: "entry 0: Invalid resource type format."},
		},
		{
			Description: "Id with a separator",
			Entry:       `{"operation":"read","resourceType":"Patient","id":"a|b"}`,
			ExpectedErr: store.BadRequestErr{Message: "entry 0: Invalid id format."},
		},
		{
			Description: "Create with an id that is too long",
			Entry:       `{"operation":"create","resourceType":"Patient","id":"` + strings.Repeat("a", 65) + `","resource":{}}`,
			ExpectedErr: store.BadRequestErr{Message: "entry 0: Invalid id format."},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			config, err := newTransportConfig(InputValidationConfig{}, ExportConfig{}, store.Config{})
			require.NoError(t, err)
			r := httptest.NewRequest(http.MethodPost, "http://localhost/", strings.NewReader(`{"type":"batch","entries":[`+tc.Entry+`]}`))

			_, err = bundleRequestDecoder(config)(context.Background(), r)
			assert.Equal(t, tc.ExpectedErr, err)
		})
	}
}

func TestNewTransportConfig(t *testing.T) {
	_, err := newTransportConfig(InputValidationConfig{ResourceTypeFormatRegex: "[a-"}, ExportConfig{}, store.Config{})
	assert.ErrorIs(t, err, errRegexCompilation)

	config, err := newTransportConfig(InputValidationConfig{}, ExportConfig{}, store.Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxBundleEntries, config.MaxBundleEntries)
	assert.True(t, config.ResourceTypeFormatRegex.MatchString("Observation"))
}

func TestEncodeError(t *testing.T) {
	tcs := []struct {
		Description  string
		Err          error
		ExpectedCode int
		ExpectedMsg  string
	}{
		{
			Description:  "Coded",
			Err:          store.ThrottledError{},
			ExpectedCode: http.StatusTooManyRequests,
			ExpectedMsg:  "There is currently too many requests. Please try again later",
		},
		{
			Description:  "Uncoded",
			Err:          errors.New("connection reset"),
			ExpectedCode: http.StatusInternalServerError,
			ExpectedMsg:  "connection reset",
		},
		{
			Description: "Sanitized",
			Err: store.SanitizedError{
				Err:     errors.New("ValidationException: table missing"),
				ErrHTTP: &erraux.Error{Err: errors.New("Bad Request"), Code: http.StatusBadRequest},
			},
			ExpectedCode: http.StatusBadRequest,
			ExpectedMsg:  "Bad Request",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			rr := httptest.NewRecorder()
			encodeError(context.Background(), tc.Err, rr)
			assert.Equal(tc.ExpectedCode, rr.Code)
			assert.Equal(tc.ExpectedMsg, rr.Header().Get(HygieiaErrorHeaderKey))
		})
	}
}

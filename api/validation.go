// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/persistence"
	"github.com/xmidt-org/hygieia/store"
)

var errRegexCompilation = errors.New("regex could not be compiled")

// ResourceTypeFormatRegexSource is the default format of resource type path
// segments.
const ResourceTypeFormatRegexSource = "^[A-Z][A-Za-z]{0,63}$"

// defaultMaxBundleEntries bounds the entries accepted in one bundle.
const defaultMaxBundleEntries = 25

var (
	errInvalidResourceType = store.BadRequestErr{Message: "Invalid resource type format."}
	errInvalidID           = store.BadRequestErr{Message: "Invalid id format."}
	errTenantMissing       = store.BadRequestErr{Message: "Tenant id must be set when multi-tenancy is enabled."}
	errInvalidTenant       = store.BadRequestErr{Message: "Invalid tenant id format."}
	errRequesterMissing    = store.BadRequestErr{Message: "Requester id must be set."}
	errBodyUnreadable      = store.BadRequestErr{Message: "Failed to unmarshal json payload."}
	errEmptyBundle         = store.BadRequestErr{Message: "Bundle must have at least one entry."}
)

// InputValidationConfig is the user facing validation configuration.
type InputValidationConfig struct {
	ResourceTypeFormatRegex string
	MaxBundleEntries        int
}

// ExportConfig holds the export defaults applied by the transport.
type ExportConfig struct {
	// AllowedResourceTypes is used when the caller does not send its own list.
	AllowedResourceTypes []string
}

type transportConfig struct {
	ResourceTypeFormatRegex *regexp.Regexp
	IDFormatRegex           *regexp.Regexp
	MaxBundleEntries        int
	EnableMultiTenancy      bool
	AllowedResourceTypes    []string
	validate                *validator.Validate
}

func newTransportConfig(v InputValidationConfig, e ExportConfig, s store.Config) (*transportConfig, error) {
	source := v.ResourceTypeFormatRegex
	if source == "" {
		source = ResourceTypeFormatRegexSource
	}
	resourceTypeRegex, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("Resource type %w: %v", errRegexCompilation, err)
	}
	if v.MaxBundleEntries <= 0 {
		v.MaxBundleEntries = defaultMaxBundleEntries
	}
	return &transportConfig{
		ResourceTypeFormatRegex: resourceTypeRegex,
		IDFormatRegex:           regexp.MustCompile(persistence.IDFormatRegexSource),
		MaxBundleEntries:        v.MaxBundleEntries,
		EnableMultiTenancy:      s.EnableMultiTenancy,
		AllowedResourceTypes:    e.AllowedResourceTypes,
		validate:                validator.New(),
	}, nil
}

func (c *transportConfig) validateResourcePath(resourceType, id string) error {
	if !c.ResourceTypeFormatRegex.MatchString(resourceType) {
		return errInvalidResourceType
	}
	if id != "" && !c.IDFormatRegex.MatchString(id) {
		return errInvalidID
	}
	return nil
}

func (c *transportConfig) tenant(tenantID string) (string, error) {
	if !c.EnableMultiTenancy {
		return tenantID, nil
	}
	if tenantID == "" {
		return "", errTenantMissing
	}
	if !c.IDFormatRegex.MatchString(tenantID) {
		return "", errInvalidTenant
	}
	return tenantID, nil
}

// validateStruct turns validator failures into a client error naming the
// offending fields.
func (c *transportConfig) validateStruct(prefix string, v interface{}) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return store.BadRequestErr{Message: err.Error()}
	}
	fields := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
	return store.BadRequestErr{Message: fmt.Sprintf("%s: %s", prefix, strings.Join(fields, ", "))}
}

func (c *transportConfig) validateBundle(b bundleRequest) error {
	if b.Type != model.BundleTransaction && b.Type != model.BundleBatch {
		return store.BadRequestErr{Message: fmt.Sprintf("Unsupported bundle type %q.", b.Type)}
	}
	if len(b.Entries) == 0 {
		return errEmptyBundle
	}
	if len(b.Entries) > c.MaxBundleEntries {
		return store.BadRequestErr{Message: fmt.Sprintf("Bundle has %d entries, the maximum is %d.", len(b.Entries), c.MaxBundleEntries)}
	}
	for i, entry := range b.Entries {
		if err := c.validateStruct(fmt.Sprintf("entry %d", i), entry); err != nil {
			return err
		}
		if err := c.validateResourcePath(entry.ResourceType, entry.ID); err != nil {
			var bad store.BadRequestErr
			errors.As(err, &bad)
			return store.BadRequestErr{Message: fmt.Sprintf("entry %d: %s", i, bad.Message)}
		}
	}
	return nil
}

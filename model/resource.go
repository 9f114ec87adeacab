// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"strconv"
	"time"
)

// TimeLayout is the layout of every server stamped timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Resource is a FHIR resource body.
type Resource map[string]interface{}

// Key identifies one version of one resource.
type Key struct {
	// TenantID namespaces the key when multi-tenancy is enabled.
	TenantID string `json:"tenantId,omitempty"`

	// ID is the logical resource id, stable across versions.
	ID string `json:"id"`

	// VID is the version number, starting at 1.
	VID int `json:"vid"`
}

// Previous returns the key of the version before this one.
func (k Key) Previous() Key {
	k.VID--
	return k
}

// VersionRecord is what the store holds for each (id, vid).
type VersionRecord struct {
	Key
	ResourceType   string         `json:"resourceType"`
	DocumentStatus DocumentStatus `json:"documentStatus"`

	// LockEndTs is the unix millisecond instant a LOCKED record may be taken over.
	LockEndTs int64 `json:"lockEndTs,omitempty"`

	Resource Resource `json:"resource"`
}

// VersionID returns the string form of the version used in meta.versionId.
func (r VersionRecord) VersionID() string {
	return strconv.Itoa(r.VID)
}

// Clone returns a deep copy of the resource.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	return cloneValue(r).(Resource)
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Resource:
		out := make(Resource, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Stamp returns a copy of the resource with the server owned fields set:
// id, resourceType, meta.versionId and meta.lastUpdated. Other meta fields
// supplied by the caller are kept.
func (r Resource) Stamp(resourceType, id string, vid int, lastUpdated time.Time) Resource {
	out := r.Clone()
	if out == nil {
		out = Resource{}
	}
	meta := map[string]interface{}{}
	switch m := out["meta"].(type) {
	case map[string]interface{}:
		meta = m
	case Resource:
		meta = m
	}
	meta["versionId"] = strconv.Itoa(vid)
	meta["lastUpdated"] = lastUpdated.UTC().Format(TimeLayout)
	out["meta"] = meta
	out["id"] = id
	out["resourceType"] = resourceType
	return out
}

// LastUpdated returns meta.lastUpdated, or the empty string.
func (r Resource) LastUpdated() string {
	switch m := r["meta"].(type) {
	case map[string]interface{}:
		s, _ := m["lastUpdated"].(string)
		return s
	case Resource:
		s, _ := m["lastUpdated"].(string)
		return s
	}
	return ""
}

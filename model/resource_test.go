// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStamp(t *testing.T) {
	now := time.Date(2020, 6, 18, 20, 20, 12, 763000000, time.UTC)
	tcs := []struct {
		Description string
		Input       Resource
		Expected    Resource
	}{
		{
			Description: "No meta",
			Input:       Resource{"name": "Jameson"},
			Expected: Resource{
				"name":         "Jameson",
				"id":           "abc",
				"resourceType": "Patient",
				"meta": map[string]interface{}{
					"versionId":   "2",
					"lastUpdated": "2020-06-18T20:20:12.763Z",
				},
			},
		},
		{
			Description: "Caller meta is overwritten but extra fields kept",
			Input: Resource{
				"id": "ignored",
				"meta": map[string]interface{}{
					"versionId":   "shouldBeOverwritten",
					"lastUpdated": "yesterday",
					"security":    map[string]interface{}{"system": "skynet"},
				},
			},
			Expected: Resource{
				"id":           "abc",
				"resourceType": "Patient",
				"meta": map[string]interface{}{
					"versionId":   "2",
					"lastUpdated": "2020-06-18T20:20:12.763Z",
					"security":    map[string]interface{}{"system": "skynet"},
				},
			},
		},
		{
			Description: "Nil resource",
			Expected: Resource{
				"id":           "abc",
				"resourceType": "Patient",
				"meta": map[string]interface{}{
					"versionId":   "2",
					"lastUpdated": "2020-06-18T20:20:12.763Z",
				},
			},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			before := tc.Input.Clone()
			out := tc.Input.Stamp("Patient", "abc", 2, now)
			assert.Equal(tc.Expected, out)
			assert.Equal(before, tc.Input, "input must not be mutated")
			assert.Equal("2020-06-18T20:20:12.763Z", out.LastUpdated())
		})
	}
}

func TestKeyPrevious(t *testing.T) {
	k := Key{TenantID: "t1", ID: "a", VID: 3}
	assert.Equal(t, Key{TenantID: "t1", ID: "a", VID: 2}, k.Previous())
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTransitions(t *testing.T) {
	tcs := []struct {
		From     JobStatus
		To       JobStatus
		Expected bool
	}{
		{From: JobInProgress, To: JobCanceling, Expected: true},
		{From: JobInProgress, To: JobCompleted, Expected: true},
		{From: JobInProgress, To: JobFailed, Expected: true},
		{From: JobCanceling, To: JobCanceled, Expected: true},
		{From: JobCompleted, To: JobCanceling},
		{From: JobFailed, To: JobCanceling},
		{From: JobCanceled, To: JobInProgress},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.Expected, tc.From.CanTransitionTo(tc.To), "%s -> %s", tc.From, tc.To)
	}
}

func TestJobStatusValid(t *testing.T) {
	for _, s := range JobStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, JobStatus("not-a-valid-status").Valid())
	assert.False(t, JobStatus("").Valid())
}

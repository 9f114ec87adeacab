// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
)

// ErrConditionFailed is returned by backends when a conditioned write loses.
var ErrConditionFailed = errors.New("conditional write failed")

type BadRequestErr struct {
	Message string
}

func (bre BadRequestErr) Error() string {
	return bre.Message
}

func (bre BadRequestErr) StatusCode() int {
	return http.StatusBadRequest
}

// NotFoundError means the resource is absent, deleted, or of another type.
type NotFoundError struct {
	ResourceType string
	ID           string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("Resource %s/%s is not known", e.ResourceType, e.ID)
}

func (e NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type VersionNotFoundError struct {
	ResourceType string
	ID           string
	VID          string
}

func (e VersionNotFoundError) Error() string {
	return fmt.Sprintf("Version \"%s\" is not known for resource %s/%s", e.VID, e.ResourceType, e.ID)
}

func (e VersionNotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type InvalidResourceError struct {
	Message string
}

func (e InvalidResourceError) Error() string {
	return e.Message
}

func (e InvalidResourceError) StatusCode() int {
	return http.StatusBadRequest
}

type UnauthorizedError struct {
	Message string
}

func (e UnauthorizedError) Error() string {
	return e.Message
}

func (e UnauthorizedError) StatusCode() int {
	return http.StatusUnauthorized
}

// ThrottledError rejects work that would exceed a concurrency ceiling.
type ThrottledError struct{}

func (ThrottledError) Error() string {
	return "There is currently too many requests. Please try again later"
}

func (ThrottledError) StatusCode() int {
	return http.StatusTooManyRequests
}

type InvalidStateError struct {
	Message string
}

func (e InvalidStateError) Error() string {
	return e.Message
}

func (e InvalidStateError) StatusCode() int {
	return http.StatusBadRequest
}

// ConflictError is a lost conditioned write surfaced to a caller.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}

func (e ConflictError) StatusCode() int {
	return http.StatusConflict
}

// SanitizedError hides backend details from clients while keeping the
// original error around for logging.
type SanitizedError struct {
	Err     error
	ErrHTTP error
}

func (s SanitizedError) Error() string {
	return s.Err.Error()
}

func (s SanitizedError) Unwrap() error {
	return s.Err
}

// Sanitized returns the client facing error.
func (s SanitizedError) Sanitized() error {
	return s.ErrHTTP
}

func (s SanitizedError) StatusCode() int {
	var coder kithttp.StatusCoder
	if errors.As(s.ErrHTTP, &coder) {
		return coder.StatusCode()
	}
	return http.StatusInternalServerError
}

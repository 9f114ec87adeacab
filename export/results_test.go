// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/hygieia/model"
)

// pagedLister serves each slice of keys as one page.
type pagedLister struct {
	pages [][]string
	err   error
}

func (l *pagedLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if l.err != nil {
		return nil, l.err
	}
	page := 0
	if in.ContinuationToken != nil {
		page = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}
	out := &s3.ListObjectsV2Output{}
	for _, key := range l.pages[page] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	if page+1 < len(l.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

type mockPresigner struct {
	mock.Mock
}

func (m *mockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	args := m.Called(aws.ToString(params.Key), aws.ToString(params.ResponseContentType), opts.Expires)
	req, _ := args.Get(0).(*v4.PresignedHTTPRequest)
	return req, args.Error(1)
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "j1", Prefix("", "j1"))
	assert.Equal(t, "t1/j1", Prefix("t1", "j1"))
}

func TestResults(t *testing.T) {
	assert := assert.New(t)
	lister := &pagedLister{pages: [][]string{
		{"t1/j1/Patient-1.ndjson", "t1/j1/Observation-1.ndjson"},
		{"t1/j1/Patient-2.ndjson"},
	}}
	p := new(mockPresigner)
	for _, key := range []string{"t1/j1/Observation-1.ndjson", "t1/j1/Patient-1.ndjson", "t1/j1/Patient-2.ndjson"} {
		p.On("PresignGetObject", key, "application/fhir+ndjson", 10*time.Minute).
			Return(&v4.PresignedHTTPRequest{URL: "https://bucket/" + key + "?sig"}, nil)
	}

	files, err := newS3Results(lister, p, "results", 10*time.Minute).Results(context.Background(), "t1", "j1")
	require.NoError(t, err)
	assert.Equal([]model.ExportedFile{
		{Type: "Observation", URL: "https://bucket/t1/j1/Observation-1.ndjson?sig"},
		{Type: "Patient", URL: "https://bucket/t1/j1/Patient-1.ndjson?sig"},
		{Type: "Patient", URL: "https://bucket/t1/j1/Patient-2.ndjson?sig"},
	}, files)
	p.AssertExpectations(t)
}

func TestResultsFailures(t *testing.T) {
	tcs := []struct {
		Description string
		Lister      *pagedLister
		PresignErr  error
		ExpectedErr error
	}{
		{
			Description: "Unparseable file name",
			Lister:      &pagedLister{pages: [][]string{{"j1/Patient-1.ndjson", "j1/manifest.json"}}},
			ExpectedErr: errors.New("could not parse the name of bulk export result file: j1/manifest.json"),
		},
		{
			Description: "List failure",
			Lister:      &pagedLister{err: errors.New("access denied")},
			ExpectedErr: errors.New("access denied"),
		},
		{
			Description: "Presign failure",
			Lister:      &pagedLister{pages: [][]string{{"j1/Patient-1.ndjson"}}},
			PresignErr:  errors.New("expired credentials"),
			ExpectedErr: errors.New("expired credentials"),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			p := new(mockPresigner)
			p.On("PresignGetObject", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.PresignErr)

			files, err := newS3Results(tc.Lister, p, "results", time.Minute).Results(context.Background(), "", "j1")
			assert.Nil(t, files)
			assert.EqualError(t, err, tc.ExpectedErr.Error())
		})
	}
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/xmidt-org/hygieia/model"
	"golang.org/x/sync/errgroup"
)

const (
	exportContentType     = "application/fhir+ndjson"
	signerSessionName     = "signBulkExportResults"
	maxConcurrentPresigns = 10

	DefaultURLExpiration = 30 * time.Minute
)

// ResultsConfig locates the bucket export jobs write their files to.
type ResultsConfig struct {
	Bucket   string
	Region   string
	Endpoint string

	// SignerRoleArn, when set, is assumed to sign the download URLs.
	SignerRoleArn string

	URLExpiration time.Duration
	PathStyle     bool
}

// ResultsReader lists the downloadable files of a completed job.
type ResultsReader interface {
	Results(ctx context.Context, tenantID, jobID string) ([]model.ExportedFile, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Results reads export results from S3 and hands out presigned URLs.
type S3Results struct {
	lister     s3.ListObjectsV2APIClient
	presigner  presigner
	bucket     string
	expiration time.Duration
}

// NewS3Results builds the reader. URLs are signed with the assumed signer
// role when one is configured and with the default credentials otherwise.
func NewS3Results(ctx context.Context, c ResultsConfig) (*S3Results, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("export results bucket required")
	}
	if c.URLExpiration <= 0 {
		c.URLExpiration = DefaultURLExpiration
	}
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	s3Options := func(o *s3.Options) {
		o.UsePathStyle = c.PathStyle
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}
	client := s3.NewFromConfig(awsCfg, s3Options)

	signer := client
	if c.SignerRoleArn != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), c.SignerRoleArn, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = signerSessionName
			o.Duration = c.URLExpiration
		})
		signerCfg := awsCfg.Copy()
		signerCfg.Credentials = aws.NewCredentialsCache(provider)
		signer = s3.NewFromConfig(signerCfg, s3Options)
	}
	return newS3Results(client, s3.NewPresignClient(signer), c.Bucket, c.URLExpiration), nil
}

func newS3Results(lister s3.ListObjectsV2APIClient, p presigner, bucket string, expiration time.Duration) *S3Results {
	return &S3Results{
		lister:     lister,
		presigner:  p,
		bucket:     bucket,
		expiration: expiration,
	}
}

// Prefix is the key prefix a job's files are written under.
func Prefix(tenantID, jobID string) string {
	if tenantID == "" {
		return jobID
	}
	return tenantID + "/" + jobID
}

func (r *S3Results) keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(r.lister, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Results lists the files under the job's prefix and presigns a download
// URL for each one.
func (r *S3Results) Results(ctx context.Context, tenantID, jobID string) ([]model.ExportedFile, error) {
	prefix := Prefix(tenantID, jobID)
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	fileName := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `/([A-Za-z]+)-\d+\.ndjson$`)

	files := make([]model.ExportedFile, len(keys))
	for i, key := range keys {
		match := fileName.FindStringSubmatch(key)
		if match == nil {
			return nil, fmt.Errorf("could not parse the name of bulk export result file: %s", key)
		}
		files[i].Type = match[1]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPresigns)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket:              aws.String(r.bucket),
				Key:                 aws.String(key),
				ResponseContentType: aws.String(exportContentType),
			}, s3.WithPresignExpires(r.expiration))
			if err != nil {
				return err
			}
			files[i].URL = req.URL
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

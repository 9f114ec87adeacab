// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
	"github.com/xmidt-org/hygieia/store/db/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	exportResourceType    = "$export"
	typeNotAllowedMessage = "User does not have permission for requested resource type."
)

// Controller admits, cancels and reports on bulk export jobs. Admission is
// a check against the job-status index followed by a write; it holds no
// lock between the two.
type Controller struct {
	jobs       store.JobStore
	results    ResultsReader
	config     store.Config
	admissions *prometheus.CounterVec
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewController builds a Controller. results may be nil, in which case
// completed jobs are reported without file URLs.
func NewController(jobs store.JobStore, results ResultsReader, config store.Config, admissions *prometheus.CounterVec, logger *zap.Logger) *Controller {
	return &Controller{
		jobs:       jobs,
		results:    results,
		config:     config.WithDefaults(),
		admissions: admissions,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func allowedTypes(requested string, allowed []string) bool {
	if requested == "" {
		return true
	}
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	for _, t := range strings.Split(requested, ",") {
		if !set[strings.TrimSpace(t)] {
			return false
		}
	}
	return true
}

// activeJobs returns the in-progress and canceling jobs within the tenant.
func (c *Controller) activeJobs(ctx context.Context, tenantID string) ([]model.ExportJob, error) {
	found := make([][]model.ExportJob, len(model.ActiveJobStatuses))
	g, ctx := errgroup.WithContext(ctx)
	for i, status := range model.ActiveJobStatuses {
		i, status := i, status
		g.Go(func() error {
			jobs, err := c.jobs.QueryJobsByStatus(ctx, status, tenantID)
			found[i] = jobs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var jobs []model.ExportJob
	for _, f := range found {
		jobs = append(jobs, f...)
	}
	return jobs, nil
}

// Initiate admits a new export job and returns its id.
func (c *Controller) Initiate(ctx context.Context, req model.InitiateExportRequest) (string, error) {
	if !allowedTypes(req.Type, req.AllowedResourceTypes) {
		c.admissions.WithLabelValues(metric.UnauthorizedOutcome).Inc()
		return "", store.UnauthorizedError{Message: typeNotAllowedMessage}
	}

	tenantID := c.config.Tenant(req.TenantID)
	active, err := c.activeJobs(ctx, tenantID)
	if err != nil {
		return "", err
	}
	owned := 0
	for _, job := range active {
		if job.JobOwnerID == req.RequesterUserID {
			owned++
		}
	}
	if owned >= c.config.MaxConcurrentRequestsPerUser || len(active) >= c.config.MaxSystemLevelConcurrentRequests {
		c.admissions.WithLabelValues(metric.ThrottledOutcome).Inc()
		c.logger.Info("export job throttled",
			zap.String("requester", req.RequesterUserID),
			zap.String("tenant", tenantID),
			zap.Int("owned", owned),
			zap.Int("active", len(active)),
		)
		return "", store.ThrottledError{}
	}

	transactionTime := req.TransactionTime
	if transactionTime == "" {
		transactionTime = c.now().UTC().Format(model.TimeLayout)
	}
	job := model.ExportJob{
		JobID:                c.newID(),
		JobOwnerID:           req.RequesterUserID,
		TenantID:             tenantID,
		JobStatus:            model.JobInProgress,
		ExportType:           req.ExportType,
		TransactionTime:      transactionTime,
		Since:                req.Since,
		OutputFormat:         req.OutputFormat,
		Type:                 req.Type,
		GroupID:              req.GroupID,
		AllowedResourceTypes: req.AllowedResourceTypes,
		ErrorArray:           []string{},
	}
	if err := c.jobs.PutJob(ctx, job); err != nil {
		return "", err
	}
	c.admissions.WithLabelValues(metric.AdmittedOutcome).Inc()
	c.logger.Info("export job admitted", zap.String("jobId", job.JobID), zap.String("tenant", tenantID))
	return job.JobID, nil
}

func (c *Controller) getJob(ctx context.Context, tenantID, jobID string) (model.ExportJob, error) {
	job, ok, err := c.jobs.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return model.ExportJob{}, err
	}
	if !ok {
		return model.ExportJob{}, store.NotFoundError{ResourceType: exportResourceType, ID: jobID}
	}
	return job, nil
}

// Cancel asks a running job to stop.
func (c *Controller) Cancel(ctx context.Context, tenantID, jobID string) error {
	tenantID = c.config.Tenant(tenantID)
	job, err := c.getJob(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if !slices.Contains(model.ActiveJobStatuses, job.JobStatus) {
		return cannot("canceled", job.JobStatus)
	}
	return c.updateStatus(ctx, tenantID, jobID, model.ActiveJobStatuses, model.JobCanceling, "canceled")
}

// GetStatus projects the job record for callers. File URLs are only listed
// once the job completed.
func (c *Controller) GetStatus(ctx context.Context, tenantID, jobID string) (model.ExportJobStatus, error) {
	tenantID = c.config.Tenant(tenantID)
	job, err := c.getJob(ctx, tenantID, jobID)
	if err != nil {
		return model.ExportJobStatus{}, err
	}
	status := model.ExportJobStatus{
		JobOwnerID:       job.JobOwnerID,
		JobStatus:        job.JobStatus,
		ExportedFileURLs: []model.ExportedFile{},
		TransactionTime:  job.TransactionTime,
		ExportType:       job.ExportType,
		OutputFormat:     job.OutputFormat,
		Since:            job.Since,
		Type:             job.Type,
		GroupID:          job.GroupID,
		ErrorArray:       job.ErrorArray,
		ErrorMessage:     job.JobFailedMessage,
	}
	if job.JobStatus == model.JobCompleted && c.results != nil {
		files, err := c.results.Results(ctx, tenantID, jobID)
		if err != nil {
			return model.ExportJobStatus{}, err
		}
		status.ExportedFileURLs = files
	}
	return status, nil
}

// UpdateJobStatus is the callback the job runner reports progress through.
func (c *Controller) UpdateJobStatus(ctx context.Context, tenantID, jobID string, status model.JobStatus) error {
	if !status.Valid() {
		return store.BadRequestErr{Message: fmt.Sprintf("Invalid status \"%s\"", status)}
	}
	tenantID = c.config.Tenant(tenantID)
	job, err := c.getJob(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.JobStatus == status:
		return nil
	case !job.JobStatus.CanTransitionTo(status):
		return cannot("moved to "+string(status), job.JobStatus)
	}
	return c.updateStatus(ctx, tenantID, jobID, []model.JobStatus{job.JobStatus}, status, "moved to "+string(status))
}

// updateStatus writes status only while the job is still in one of from.
// When another writer got there first the job is read again to report
// where it ended up.
func (c *Controller) updateStatus(ctx context.Context, tenantID, jobID string, from []model.JobStatus, status model.JobStatus, action string) error {
	err := c.jobs.UpdateJobStatus(ctx, tenantID, jobID, from, status)
	if !errors.Is(err, store.ErrConditionFailed) {
		return err
	}
	c.logger.Info("job status changed concurrently", zap.String("jobId", jobID), zap.String("status", string(status)))
	job, err := c.getJob(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	return cannot(action, job.JobStatus)
}

func cannot(action string, current model.JobStatus) error {
	return store.InvalidStateError{
		Message: fmt.Sprintf("Job cannot be %s because job is already in %s state", action, current),
	}
}

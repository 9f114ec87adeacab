// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xmidt-org/hygieia/model"
	"github.com/xmidt-org/hygieia/store"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentResolutions bounds the store queries a single bundle has in flight.
const maxConcurrentResolutions = 10

// IDFormatRegexSource is the format a caller supplied resource id must match.
const IDFormatRegexSource = `^[A-Za-z0-9\-.]{1,64}$`

var idFormatRegex = regexp.MustCompile(IDFormatRegexSource)

// ValidID reports whether id may be used as a caller supplied resource id.
func ValidID(id string) bool {
	return idFormatRegex.MatchString(id)
}

// Outcome is what the store has accepted for one bundle entry so far.
type Outcome struct {
	// Locked is set once the prior version is LOCKED, or PENDING_DELETE for deletes.
	Locked bool
	// Written is set once the new PENDING version is stored.
	Written bool
	// Confirmed is set once a delete has reached DELETED.
	Confirmed bool
	// Committed is set once every step that can still be rolled back is done.
	Committed bool
}

// Applied reports whether the entry left anything in the store that a
// rollback has to undo.
func (o Outcome) Applied() bool {
	return o.Locked || o.Written
}

// Entry carries one bundle entry through every step by its original
// position, independent of the order the store answers in.
type Entry struct {
	Index     int
	Operation model.Operation
	Outcome   Outcome

	// Created is set for an update that creates the resource. It holds no
	// prior version.
	Created bool

	// Markers are the versions this entry holds while the bundle is in flight.
	Markers []model.LockMarker

	// Err is the typed failure behind the response error, if any.
	Err error
}

// Staged is a bundle converted into store native writes.
type Staged struct {
	TenantID  string
	Entries   []Entry
	Responses []model.BatchResponse

	// Puts are the new PENDING versions of creates and updates.
	Puts []store.IndexedPut
	// Locks move the prior version of each update from AVAILABLE to LOCKED.
	Locks []store.IndexedChange
	// Deletes move the current version of each delete to PENDING_DELETE.
	Deletes []store.IndexedChange
}

// Fail records err on the entry and its response. The first failure wins.
func (s *Staged) Fail(index int, code, message string, err error) {
	if s.Responses[index].Error != "" {
		return
	}
	s.Responses[index].Error = fmt.Sprintf("%s %s", code, message)
	s.Entries[index].Err = err
}

// Writes is the number of store writes the bundle needs before commit.
func (s *Staged) Writes() int {
	return len(s.Puts) + len(s.Locks) + len(s.Deletes)
}

// Failed reports whether any entry already carries an error.
func (s *Staged) Failed() bool {
	for _, r := range s.Responses {
		if r.Failed() {
			return true
		}
	}
	return false
}

// Stager turns bundle requests into grouped writes, lock markers and
// response skeletons.
type Stager struct {
	resolver     *Resolver
	updateCreate bool
	lockDuration time.Duration
	now          func() time.Time
	newID        func() string
}

func NewStager(resolver *Resolver, config store.Config) *Stager {
	config = config.WithDefaults()
	return &Stager{
		resolver:     resolver,
		updateCreate: config.UpdateCreateSupported,
		lockDuration: config.LockDuration,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// resolve looks up the history of every entry that names an id. A store
// failure aborts the whole bundle.
func (s *Stager) resolve(ctx context.Context, tenantID string, requests []model.BatchRequest) ([]lookup, error) {
	resolved := make([]lookup, len(requests))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentResolutions)
	for i, req := range requests {
		if req.ID == "" {
			continue
		}
		i, req := i, req
		g.Go(func() error {
			l, err := s.resolver.lookup(ctx, req.ResourceType, req.ID, tenantID)
			if err != nil {
				return err
			}
			resolved[i] = l
			return nil
		})
	}
	return resolved, g.Wait()
}

// Stage classifies every request, in order. Entries that cannot be staged
// get an error response and no writes.
func (s *Stager) Stage(ctx context.Context, tenantID string, requests []model.BatchRequest) (*Staged, error) {
	resolved, err := s.resolve(ctx, tenantID, requests)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	st := &Staged{
		TenantID:  tenantID,
		Entries:   make([]Entry, len(requests)),
		Responses: make([]model.BatchResponse, len(requests)),
	}
	c := stageContext{
		lastModified: now.Format(model.TimeLayout),
		now:          now,
		lockEndTs:    now.Add(s.lockDuration).UnixMilli(),
		staleBefore:  now.UnixMilli(),
		written:      map[string]bool{},
	}
	for i, req := range requests {
		st.Entries[i] = Entry{Index: i, Operation: req.Operation}
		st.Responses[i] = model.BatchResponse{
			ID:           req.ID,
			ResourceType: req.ResourceType,
			Operation:    req.Operation,
		}
		switch req.Operation {
		case model.OperationRead:
			s.stageRead(st, i, resolved[i])
		case model.OperationCreate:
			s.stageCreate(st, c, i, req, resolved[i])
		case model.OperationUpdate:
			s.stageUpdate(st, c, i, req, resolved[i])
		case model.OperationDelete:
			s.stageDelete(st, c, i, req, resolved[i])
		default:
			st.Fail(i, "400", "Bad Request", store.BadRequestErr{Message: fmt.Sprintf("unknown operation %q", req.Operation)})
			st.Responses[i].VID = "0"
			st.Responses[i].Resource = model.Resource{}
		}
	}
	return st, nil
}

type stageContext struct {
	lastModified string
	now          time.Time
	lockEndTs    int64
	staleBefore  int64

	// written tracks ids already written by an earlier entry of the bundle.
	written map[string]bool
}

func (s *Stager) notFound(st *Staged, i int) {
	resp := &st.Responses[i]
	resp.VID = "0"
	resp.Resource = model.Resource{}
	resp.LastModified = ""
	st.Fail(i, "404", "Not Found", store.NotFoundError{ResourceType: resp.ResourceType, ID: resp.ID})
}

// claim marks id as written by entry i and fails the entry when an earlier
// entry of the same bundle already writes it.
func (s *Stager) claim(st *Staged, c stageContext, i int, id string) bool {
	if c.written[id] {
		st.Responses[i].VID = "0"
		st.Responses[i].Resource = model.Resource{}
		st.Fail(i, "409", "Conflict", store.ConflictError{
			Message: fmt.Sprintf("Resource %s/%s is written more than once in the bundle", st.Responses[i].ResourceType, id),
		})
		return false
	}
	c.written[id] = true
	return true
}

// collision fails entry i whose id already belongs to another resource.
func (s *Stager) collision(st *Staged, i int) {
	st.Responses[i].VID = "0"
	st.Responses[i].Resource = model.Resource{}
	st.Fail(i, "409", "Conflict", store.InvalidResourceError{Message: "Resource creation failed, id matches an existing resource"})
}

func (s *Stager) invalidID(st *Staged, i int, id string) {
	msg := fmt.Sprintf("Resource creation failed, id %s is not valid", id)
	st.Responses[i].VID = "0"
	st.Responses[i].Resource = model.Resource{}
	st.Fail(i, "400", msg, store.InvalidResourceError{Message: msg})
}

func (s *Stager) stageRead(st *Staged, i int, r lookup) {
	if !r.found {
		s.notFound(st, i)
		return
	}
	st.Responses[i].VID = r.record.VersionID()
	st.Responses[i].Resource = r.record.Resource
}

func (s *Stager) stageCreate(st *Staged, c stageContext, i int, req model.BatchRequest, r lookup) {
	id, vid := req.ID, 1
	if id == "" {
		id = s.newID()
	} else {
		if !ValidID(id) {
			s.invalidID(st, i, id)
			return
		}
		var ok bool
		if vid, ok = r.nextVID(req.ResourceType); !ok {
			s.collision(st, i)
			return
		}
	}
	if !s.claim(st, c, i, id) {
		return
	}
	s.stagePending(st, c, i, req.ResourceType, id, vid, req.Resource)
	st.Responses[i].Resource = st.Puts[len(st.Puts)-1].Record.Resource
}

// stagePending adds the new PENDING version for entry i.
func (s *Stager) stagePending(st *Staged, c stageContext, i int, resourceType, id string, vid int, body model.Resource) {
	key := model.Key{TenantID: st.TenantID, ID: id, VID: vid}
	st.Puts = append(st.Puts, store.IndexedPut{
		Index: i,
		Record: model.VersionRecord{
			Key:            key,
			ResourceType:   resourceType,
			DocumentStatus: model.MustNext(model.StatusRemoved, model.EventStage),
			Resource:       body.Stamp(resourceType, id, vid, c.now),
		},
	})
	st.Entries[i].Markers = append(st.Entries[i].Markers, model.LockMarker{Key: key, ResourceType: resourceType})
	st.Responses[i].ID = id
	st.Responses[i].VID = strconv.Itoa(vid)
	st.Responses[i].LastModified = c.lastModified
}

func (s *Stager) stageUpdate(st *Staged, c stageContext, i int, req model.BatchRequest, r lookup) {
	if !r.found {
		if !s.updateCreate {
			s.notFound(st, i)
			return
		}
		if !ValidID(req.ID) {
			s.invalidID(st, i, req.ID)
			return
		}
		vid, ok := r.nextVID(req.ResourceType)
		if !ok {
			s.collision(st, i)
			return
		}
		if !s.claim(st, c, i, req.ID) {
			return
		}
		st.Entries[i].Created = true
		s.stagePending(st, c, i, req.ResourceType, req.ID, vid, req.Resource)
		st.Responses[i].Resource = st.Puts[len(st.Puts)-1].Record.Resource
		return
	}
	if !s.claim(st, c, i, req.ID) {
		return
	}

	prior := model.Key{TenantID: st.TenantID, ID: req.ID, VID: r.record.VID}
	lock := store.StatusChange{
		Key:       prior,
		From:      model.StatusAvailable,
		To:        model.MustNext(model.StatusAvailable, model.EventLock),
		LockEndTs: c.lockEndTs,
	}
	// an expired lock may be taken over in the same write
	if to, ok := model.Next(lock.To, model.EventTakeover); ok && to == lock.To {
		lock.StaleBefore = c.staleBefore
	}
	st.Locks = append(st.Locks, store.IndexedChange{Index: i, Change: lock})
	st.Entries[i].Markers = append(st.Entries[i].Markers, model.LockMarker{Key: prior, ResourceType: req.ResourceType})
	s.stagePending(st, c, i, req.ResourceType, req.ID, r.record.VID+1, req.Resource)
	st.Responses[i].Resource = model.Resource{}
}

func (s *Stager) stageDelete(st *Staged, c stageContext, i int, req model.BatchRequest, r lookup) {
	if !r.found {
		s.notFound(st, i)
		return
	}
	if !s.claim(st, c, i, req.ID) {
		return
	}
	key := model.Key{TenantID: st.TenantID, ID: req.ID, VID: r.record.VID}
	st.Deletes = append(st.Deletes, store.IndexedChange{
		Index: i,
		Change: store.StatusChange{
			Key:  key,
			From: model.StatusAvailable,
			To:   model.MustNext(model.StatusAvailable, model.EventMarkDelete),
		},
	})
	st.Entries[i].Markers = append(st.Entries[i].Markers, model.LockMarker{Key: key, ResourceType: req.ResourceType})
	st.Responses[i].VID = r.record.VersionID()
	st.Responses[i].Resource = model.Resource{}
	st.Responses[i].LastModified = c.lastModified
}

// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import "fmt"

// DocumentStatus is the internal lifecycle tag carried by every version record.
// It is never part of the resource body handed back to callers.
type DocumentStatus string

// Document statuses. StatusRemoved is not stored; it is the target of
// transitions that delete the version record itself.
const (
	StatusPending       DocumentStatus = "PENDING"
	StatusLocked        DocumentStatus = "LOCKED"
	StatusAvailable     DocumentStatus = "AVAILABLE"
	StatusPendingDelete DocumentStatus = "PENDING_DELETE"
	StatusDeleted       DocumentStatus = "DELETED"

	StatusRemoved DocumentStatus = ""
)

// Event names a step of the write protocol that moves a version record
// from one status to another.
type Event string

const (
	// EventStage writes a brand new version that is not yet visible.
	EventStage Event = "stage"
	// EventLock holds the current version while a bundle replaces it.
	EventLock Event = "lock"
	// EventTakeover re-locks a version whose previous lock expired.
	EventTakeover Event = "takeover"
	// EventCommit makes a staged version the readable one.
	EventCommit Event = "commit"
	// EventUnlock releases a held version, on commit or on rollback.
	EventUnlock Event = "unlock"
	// EventMarkDelete starts a bundle delete.
	EventMarkDelete Event = "markDelete"
	// EventConfirmDelete finishes a bundle delete.
	EventConfirmDelete Event = "confirmDelete"
	// EventRevertDelete undoes a bundle delete.
	EventRevertDelete Event = "revertDelete"
	// EventDelete is the single-resource delete.
	EventDelete Event = "delete"
	// EventDiscard removes a version written by a bundle that is rolled back.
	EventDiscard Event = "discard"
	// EventRestore undoes a bundle delete that was already confirmed.
	EventRestore Event = "restore"
)

// Transition is one legal edge of the document status state machine.
type Transition struct {
	From  DocumentStatus
	Event Event
	To    DocumentStatus
}

// Transitions enumerates every legal (status, event) pair. Anything absent
// from this table is rejected by Next.
var Transitions = []Transition{
	{From: StatusRemoved, Event: EventStage, To: StatusPending},
	{From: StatusPending, Event: EventCommit, To: StatusAvailable},
	{From: StatusPending, Event: EventDiscard, To: StatusRemoved},
	{From: StatusAvailable, Event: EventDiscard, To: StatusRemoved},
	{From: StatusAvailable, Event: EventLock, To: StatusLocked},
	{From: StatusLocked, Event: EventTakeover, To: StatusLocked},
	{From: StatusLocked, Event: EventUnlock, To: StatusAvailable},
	{From: StatusAvailable, Event: EventMarkDelete, To: StatusPendingDelete},
	{From: StatusPendingDelete, Event: EventConfirmDelete, To: StatusDeleted},
	{From: StatusPendingDelete, Event: EventRevertDelete, To: StatusAvailable},
	{From: StatusAvailable, Event: EventDelete, To: StatusDeleted},
	{From: StatusDeleted, Event: EventRestore, To: StatusAvailable},
}

// Next returns the status reached by applying event to a record in status
// from, and false when the pair is not a legal transition.
func Next(from DocumentStatus, event Event) (DocumentStatus, bool) {
	for _, t := range Transitions {
		if t.From == from && t.Event == event {
			return t.To, true
		}
	}
	return from, false
}

// MustNext is like Next but panics when the pair is not a legal transition.
// The write protocol derives every status it writes through it.
func MustNext(from DocumentStatus, event Event) DocumentStatus {
	to, ok := Next(from, event)
	if !ok {
		panic(fmt.Sprintf("model: no %s transition out of %q", event, from))
	}
	return to
}

// Readable reports whether a record at the newest position with this status
// may be returned to readers as-is.
func (s DocumentStatus) Readable() bool {
	switch s {
	case StatusAvailable, StatusLocked, StatusPendingDelete:
		return true
	}
	return false
}

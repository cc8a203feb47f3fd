// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package tiered

import (
	"weak"

	"github.com/google/uuid"
)

// Job is a unit of background work the tiered controller submits to its
// JobQueue (C8). Each variant carries a weak reference to the owning
// Controller: promotion to a strong reference at the top of Execute is the
// sole liveness check, so a dropped index silently no-ops a job instead of
// being kept alive by it (§9 "weak ownership from jobs").
type Job interface {
	Execute()
	Trace() uuid.UUID
}

// InsertJob promotes a just-added vector from the flat buffer into HNSW
// (§4.11 InsertJob.Execute).
type InsertJob struct {
	Label      int64
	FlatID     int32
	TraceID    uuid.UUID
	controller weak.Pointer[Controller]
}

// Trace returns the job's correlation id for logging.
func (j *InsertJob) Trace() uuid.UUID { return j.TraceID }

// Execute implements §4.11's InsertJob.Execute: promote the weak
// controller reference, store the vector into HNSW (id allocation under
// the exclusive lock, connection phase under per-node locks), delete the
// flat-buffer entry, and clear the job's bookkeeping.
func (j *InsertJob) Execute() {
	c := j.controller.Value()
	if c == nil {
		return // index gone; drop silently (§7 weak-reference protection)
	}
	vector := c.flat.VectorAt(j.FlatID)
	if vector == nil {
		// the flat id was reclaimed by an intervening delete before this
		// job ran; nothing to promote.
		c.removePendingInsert(j.Label, j)
		return
	}
	id, err := c.hnsw.StoreNewElement(vector, j.Label)
	if err != nil {
		c.removePendingInsert(j.Label, j)
		return
	}
	c.hnsw.Connect(id)
	c.flat.DeleteID(j.FlatID)
	c.removePendingInsert(j.Label, j)
	c.memUsage.Add(int64(len(vector) * 4))
}

// RepairJob re-derives node_affected's neighbor set at level after one of
// its neighbors became a tombstone (§4.8, §4.11 RepairJob.Execute).
type RepairJob struct {
	NodeAffected int32
	Level        int
	Tombstone    int32 // the id whose pending-repair count this decrements
	TraceID      uuid.UUID
	controller   weak.Pointer[Controller]
}

// Trace returns the job's correlation id for logging.
func (j *RepairJob) Trace() uuid.UUID { return j.TraceID }

// Execute repairs node_affected's connections, then — once the last
// pending repair for Tombstone completes — enqueues its SwapDeleteJob.
func (j *RepairJob) Execute() {
	c := j.controller.Value()
	if c == nil {
		return
	}
	c.hnsw.RepairNodeConnections(j.NodeAffected, j.Level)

	c.mu.Lock()
	c.pendingRepairs[j.Tombstone]--
	done := c.pendingRepairs[j.Tombstone] <= 0
	if done {
		delete(c.pendingRepairs, j.Tombstone)
	}
	c.mu.Unlock()

	if done {
		c.enqueueSwapDelete(j.Tombstone)
	}
}

// SwapDeleteJob physically reclaims a tombstoned id once every repair
// targeting it has completed (§4.8 swap-with-last, §4.11
// SwapDeleteJob.Execute).
type SwapDeleteJob struct {
	ID         int32
	TraceID    uuid.UUID
	controller weak.Pointer[Controller]
}

// Trace returns the job's correlation id for logging.
func (j *SwapDeleteJob) Trace() uuid.UUID { return j.TraceID }

// Execute calls removeAndSwapDeletedElement under the HNSW data lock.
func (j *SwapDeleteJob) Execute() {
	c := j.controller.Value()
	if c == nil {
		return
	}
	c.hnsw.RemoveAndSwapDeletedElement(j.ID)
}

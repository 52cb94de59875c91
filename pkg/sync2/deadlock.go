package sync2

import "sync"

// DeadlockTable runs the banker's algorithm over one process's resources of
// a single class (all its mutexes, or all its semaphores — the two classes
// are kept in separate tables), answering "would granting this request
// leave the system in a state every task can still finish from?" before the
// caller actually blocks on or acquires the underlying primitive.
type DeadlockTable struct {
	mu    sync.Mutex
	avail []int
	alloc map[int][]int // taskID -> units held, per resource
	need  map[int][]int // taskID -> units requested but not yet granted, per resource
}

// NewDeadlockTable returns an empty table.
func NewDeadlockTable() *DeadlockTable {
	return &DeadlockTable{alloc: make(map[int][]int), need: make(map[int][]int)}
}

// AddResource registers a new resource with the given initial availability
// and returns its id. Every already-registered task gets a zeroed
// alloc/need column for it.
func (t *DeadlockTable) AddResource(initialAvail int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := len(t.avail)
	t.avail = append(t.avail, initialAvail)
	for tid := range t.alloc {
		t.alloc[tid] = append(t.alloc[tid], 0)
		t.need[tid] = append(t.need[tid], 0)
	}
	return id
}

// AddTask registers taskID, with zero allocation/need against every
// currently registered resource.
func (t *DeadlockTable) AddTask(taskID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alloc[taskID] = make([]int, len(t.avail))
	t.need[taskID] = make([]int, len(t.avail))
}

// RemoveTask drops taskID's rows (it has exited).
func (t *DeadlockTable) RemoveTask(taskID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.alloc, taskID)
	delete(t.need, taskID)
}

// RequestIsSafe records taskID's request for one unit of resourceID and
// runs the banker's safety check as if that request were immediately
// granted. If the request is unsafe, the speculative need is rolled back
// before returning false, so a refused request leaves no trace in the
// table — the caller is free to try a different resource, or retry the
// same one later, without RequestIsSafe's bookkeeping compounding across
// refusals.
func (t *DeadlockTable) RequestIsSafe(taskID, resourceID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.need[taskID][resourceID]++
	if t.isSafeLocked(taskID, resourceID) {
		return true
	}
	t.need[taskID][resourceID]--
	return false
}

// isSafeLocked runs the banker's algorithm's safety check, simulating
// taskID's request for one unit of resourceID having already been granted.
// LOCKS_REQUIRED(t.mu).
func (t *DeadlockTable) isSafeLocked(taskID, resourceID int) bool {
	work := append([]int(nil), t.avail...)
	work[resourceID]--
	if work[resourceID] < 0 {
		return false
	}

	simAlloc := make(map[int][]int, len(t.alloc))
	simNeed := make(map[int][]int, len(t.need))
	for tid, row := range t.alloc {
		simAlloc[tid] = append([]int(nil), row...)
	}
	for tid, row := range t.need {
		simNeed[tid] = append([]int(nil), row...)
	}
	simAlloc[taskID][resourceID]++
	simNeed[taskID][resourceID]--

	finished := make(map[int]bool, len(simNeed))
	for progressed := true; progressed; {
		progressed = false
		for tid, need := range simNeed {
			if finished[tid] {
				continue
			}
			canFinish := true
			for i, v := range need {
				if v > work[i] {
					canFinish = false
					break
				}
			}
			if !canFinish {
				continue
			}
			for i, v := range simAlloc[tid] {
				work[i] += v
			}
			finished[tid] = true
			progressed = true
		}
	}

	for tid := range simNeed {
		if !finished[tid] {
			return false
		}
	}
	return true
}

// Grant records that taskID actually received one unit of resourceID, after
// the underlying mutex/semaphore itself granted it.
func (t *DeadlockTable) Grant(taskID, resourceID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.avail[resourceID]--
	t.alloc[taskID][resourceID]++
	if t.need[taskID][resourceID] > 0 {
		t.need[taskID][resourceID]--
	}
}

// Release records that taskID gave one unit of resourceID back.
func (t *DeadlockTable) Release(taskID, resourceID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.avail[resourceID]++
	t.alloc[taskID][resourceID]--
}

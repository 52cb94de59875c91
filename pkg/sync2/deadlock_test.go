package sync2

import "testing"

func TestDeadlockTableAllowsSafeSequence(t *testing.T) {
	dt := NewDeadlockTable()
	r := dt.AddResource(1)
	dt.AddTask(0)
	dt.AddTask(1)

	if !dt.RequestIsSafe(0, r) {
		t.Fatal("task 0 should be able to acquire the sole unit")
	}
	dt.Grant(0, r)

	if dt.RequestIsSafe(1, r) {
		t.Fatal("task 1 requesting an already-held, single-unit resource should be unsafe")
	}

	dt.Release(0, r)
	if !dt.RequestIsSafe(1, r) {
		t.Fatal("task 1 should be able to acquire the resource once released")
	}
}

func TestDeadlockTableRefusalRollsBackNeed(t *testing.T) {
	dt := NewDeadlockTable()
	r := dt.AddResource(1)
	dt.AddTask(0)
	dt.AddTask(1)

	dt.Grant(0, r) // bypass the safety check to force task 0 to hold the unit
	if dt.RequestIsSafe(1, r) {
		t.Fatal("expected unsafe request")
	}

	// A second identical request must evaluate the same way: if the
	// speculative need increment from the refused request above weren't
	// rolled back, this would look even less safe (or panic on double count)
	// instead of reproducing the same, stable verdict.
	if dt.RequestIsSafe(1, r) {
		t.Fatal("a repeat of the refused request should be refused again")
	}

	dt.Release(0, r)
	if !dt.RequestIsSafe(1, r) {
		t.Fatal("after release, task 1's request should become safe")
	}
}

func TestDeadlockTableRemoveTask(t *testing.T) {
	dt := NewDeadlockTable()
	r := dt.AddResource(2)
	dt.AddTask(0)
	dt.AddTask(1)

	dt.RemoveTask(1)
	if !dt.RequestIsSafe(0, r) {
		t.Fatal("task 0's request should still be safe after task 1 is removed")
	}
}

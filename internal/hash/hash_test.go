// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hash

import "testing"

func TestComputeIsPure(t *testing.T) {
	children := []string{"b.txt", "a.txt"}
	childHashes := map[string]uint64{}

	h1 := Compute("/tmp/dir", 1000, children, childHashes)
	h2 := Compute("/tmp/dir", 1000, children, childHashes)

	if h1 != h2 {
		t.Fatalf("identical inputs produced different hashes: %d != %d", h1, h2)
	}
}

func TestComputeSensitiveToAddedChild(t *testing.T) {
	base := Compute("/tmp/dir", 1000, []string{"a.txt"}, nil)
	added := Compute("/tmp/dir", 1000, []string{"a.txt", "b.txt"}, nil)

	if base == added {
		t.Fatal("adding a child did not change the hash")
	}
}

func TestComputeSensitiveToRemovedChild(t *testing.T) {
	base := Compute("/tmp/dir", 1000, []string{"a.txt", "b.txt"}, nil)
	removed := Compute("/tmp/dir", 1000, []string{"a.txt"}, nil)

	if base == removed {
		t.Fatal("removing a child did not change the hash")
	}
}

func TestComputeSensitiveToRenamedChild(t *testing.T) {
	base := Compute("/tmp/dir", 1000, []string{"a.txt"}, nil)
	renamed := Compute("/tmp/dir", 1000, []string{"renamed.txt"}, nil)

	if base == renamed {
		t.Fatal("renaming a child did not change the hash")
	}
}

func TestComputeOrderIndependentOfChildSliceOrder(t *testing.T) {
	h1 := Compute("/tmp/dir", 1000, []string{"a.txt", "b.txt", "c.txt"}, nil)
	h2 := Compute("/tmp/dir", 1000, []string{"c.txt", "a.txt", "b.txt"}, nil)

	if h1 != h2 {
		t.Fatal("hash should not depend on in-memory child ordering")
	}
}

func TestComputePropagatesChildHashChange(t *testing.T) {
	parent := "/parent"
	child := "/parent/child"

	hashes1 := map[string]uint64{child: 111}
	hashes2 := map[string]uint64{child: 222}

	h1 := Compute(parent, 1000, []string{"child"}, hashes1)
	h2 := Compute(parent, 1000, []string{"child"}, hashes2)

	if h1 == h2 {
		t.Fatal("child hash change should alter parent hash")
	}
}

func TestComputeIgnoresNonDirectChildren(t *testing.T) {
	parent := "/parent"
	grandchild := "/parent/child/grandchild"

	withGrandchild := map[string]uint64{grandchild: 999}

	h1 := Compute(parent, 1000, nil, withGrandchild)
	h2 := Compute(parent, 1000, nil, nil)

	if h1 != h2 {
		t.Fatal("non-direct-child entries must not affect the hash")
	}
}

func TestChanged(t *testing.T) {
	if Changed(5, 5) {
		t.Fatal("equal hashes should not report a change")
	}
	if !Changed(5, 6) {
		t.Fatal("differing hashes should report a change")
	}
}

package grid

import "testing"

func TestParentOfChildIsIdentity(t *testing.T) {
	for z := 0; z < WorkingZoom; z++ {
		n := span(z)
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				a := Address{Z: z, X: x, Y: y}
				for i := 0; i < Splits; i++ {
					for j := 0; j < Splits; j++ {
						child := a.Child(i, j)
						if !child.Valid() {
							t.Fatalf("child %v of %v is invalid", child, a)
						}
						p, ok := child.Parent()
						if !ok || p != a {
							t.Fatalf("parent(child(%v, %d, %d)) = %v", a, i, j, p)
						}
					}
				}
			}
		}
	}
}

func TestDescentToMiddleSubCell(t *testing.T) {
	a := Address{Z: 1, X: 2, Y: 3}
	got := a.Child(2, 2)
	want := Address{Z: 2, X: 12, Y: 17}
	if got != want {
		t.Fatalf("Child(2, 2) = %v, want %v", got, want)
	}
}

func TestParentOfWorkCell(t *testing.T) {
	p, ok := Address{Z: 2, X: 12, Y: 17}.Parent()
	if !ok || p != (Address{Z: 1, X: 2, Y: 3}) {
		t.Fatalf("Parent = %v, %v", p, ok)
	}
	if _, ok := (Address{}).Parent(); ok {
		t.Fatal("level 0 must not have a parent")
	}
}

func TestChildrenCount(t *testing.T) {
	children := Address{Z: 0}.Children()
	if len(children) != 25 {
		t.Fatalf("expected 25 children, got %d", len(children))
	}
	seen := make(map[Address]bool)
	for _, c := range children {
		if seen[c] {
			t.Fatalf("duplicate child %v", c)
		}
		seen[c] = true
	}
}

func TestParseID(t *testing.T) {
	a, err := ParseID("2_12_17")
	if err != nil {
		t.Fatal(err)
	}
	if a != (Address{Z: 2, X: 12, Y: 17}) || a.ID() != "2_12_17" {
		t.Fatalf("unexpected address %v", a)
	}

	for _, bad := range []string{"", "1_2", "a_b_c", "3_0_0", "1_5_0", "0_0_-1"} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("ParseID(%q) succeeded", bad)
		}
	}
}

func TestMapZoom(t *testing.T) {
	want := map[int]int{0: 5, 1: 8, 2: 12}
	for z, mz := range want {
		if got := MapZoom(z); got != mz {
			t.Errorf("MapZoom(%d) = %d, want %d", z, got, mz)
		}
	}
}

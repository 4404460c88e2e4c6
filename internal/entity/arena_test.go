package entity

import "testing"

func TestArena_StaleHandleRejected(t *testing.T) {
	a := NewArena[int](4)
	h1 := a.Insert(10)
	h2 := a.Insert(20)

	if !a.Remove(h1) {
		t.Fatalf("remove h1 failed")
	}
	if _, ok := a.Get(h1); ok {
		t.Fatalf("removed handle still readable")
	}

	h3 := a.Insert(30)
	if h3.Index != h1.Index {
		t.Fatalf("expected slot reuse: got index %d want %d", h3.Index, h1.Index)
	}
	if h3.Gen == h1.Gen {
		t.Fatalf("generation not bumped on reuse")
	}
	if a.Set(h1, 99) {
		t.Fatalf("stale handle accepted by Set")
	}
	if v, _ := a.Get(h3); v != 30 {
		t.Fatalf("h3 value: got %d want 30", v)
	}
	if v, _ := a.Get(h2); v != 20 {
		t.Fatalf("h2 value: got %d want 20", v)
	}
	if a.Len() != 2 {
		t.Fatalf("len: got %d want 2", a.Len())
	}
}

func TestArena_EachIsIndexOrdered(t *testing.T) {
	a := NewArena[string](0)
	hs := []Handle{a.Insert("a"), a.Insert("b"), a.Insert("c"), a.Insert("d")}
	a.Remove(hs[3])
	a.Remove(hs[1])
	a.Insert("e") // reuses index 1

	var got []string
	a.Each(func(_ Handle, v string) bool {
		got = append(got, v)
		return true
	})
	want := []string{"a", "e", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestArena_ReadModifyWrite(t *testing.T) {
	type pos struct{ X, Y int }
	a := NewArena[pos](1)
	h := a.Insert(pos{1, 2})

	p, _ := a.Get(h)
	p.X = 7
	if cur, _ := a.Get(h); cur.X != 1 {
		t.Fatalf("Get must return a copy")
	}
	a.Set(h, p)
	if cur, _ := a.Get(h); cur.X != 7 {
		t.Fatalf("write back lost: %+v", cur)
	}
}

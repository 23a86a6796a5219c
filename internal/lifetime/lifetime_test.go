package lifetime

import "testing"

type fakeReleasable struct {
	name    string
	finied  bool
	unmaped bool
	order   *[]string
}

func (f *fakeReleasable) RunFini() {
	f.finied = true
	*f.order = append(*f.order, "fini:"+f.name)
}

func (f *fakeReleasable) Unmap() error {
	f.unmaped = true
	*f.order = append(*f.order, "unmap:"+f.name)
	return nil
}

func TestGraphLoadReusesExistingNode(t *testing.T) {
	g := NewGraph()
	calls := 0
	build := func() (*Node, error) {
		calls++
		return &Node{Name: "libfoo", Obj: &fakeReleasable{name: "libfoo", order: &[]string{}}}, nil
	}

	n1, err := g.Load("libfoo", build)
	if err != nil {
		t.Fatal(err)
	}
	n2, err := g.Load("libfoo", build)
	if err != nil {
		t.Fatal(err)
	}
	if n1 != n2 {
		t.Fatal("expected the same Node instance on repeated Load")
	}
	if calls != 1 {
		t.Fatalf("expected build called once, got %d", calls)
	}
}

func TestGraphDetectsCycle(t *testing.T) {
	g := NewGraph()

	var buildB func() (*Node, error)
	buildA := func() (*Node, error) {
		_, err := g.Load("b", buildB)
		if err != nil {
			return nil, err
		}
		return &Node{Name: "a", Obj: &fakeReleasable{name: "a", order: &[]string{}}}, nil
	}
	buildB = func() (*Node, error) {
		_, err := g.Load("a", buildA)
		if err != nil {
			return nil, err
		}
		return &Node{Name: "b", Obj: &fakeReleasable{name: "b", order: &[]string{}}}, nil
	}

	_, err := g.Load("a", buildA)
	if err == nil {
		t.Fatal("expected ErrCircularDependency")
	}
	if _, ok := err.(*ErrCircularDependency); !ok {
		t.Fatalf("expected *ErrCircularDependency, got %T: %v", err, err)
	}
}

func TestReleaseOrderIsDependentBeforeDependency(t *testing.T) {
	var order []string

	dep := &Node{Name: "dep", Obj: &fakeReleasable{name: "dep", order: &order}, refCount: 1}
	main := &Node{Name: "main", Obj: &fakeReleasable{name: "main", order: &order}, refCount: 1}
	main.AddDep(dep) // main takes over dep's initial reference

	if err := main.Release(); err != nil {
		t.Fatal(err)
	}
	want := []string{"fini:main", "unmap:main", "fini:dep", "unmap:dep"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestReleaseKeepsSharedDepAliveUntilLastReferenceDrops(t *testing.T) {
	var order []string

	dep := &Node{Name: "dep", Obj: &fakeReleasable{name: "dep", order: &order}, refCount: 1}
	main1 := &Node{Name: "main1", Obj: &fakeReleasable{name: "main1", order: &order}, refCount: 1}
	main2 := &Node{Name: "main2", Obj: &fakeReleasable{name: "main2", order: &order}, refCount: 1}
	main1.AddDep(dep)
	main2.AddDep(dep) // dep.refCount == 2

	if err := main1.Release(); err != nil {
		t.Fatal(err)
	}
	if dep.Obj.(*fakeReleasable).finied {
		t.Fatal("dep should survive while main2 still holds a reference")
	}

	if err := main2.Release(); err != nil {
		t.Fatal(err)
	}
	if !dep.Obj.(*fakeReleasable).finied {
		t.Fatal("dep should be released once its last referent releases")
	}
}

func TestNextTLSModuleIDIsMonotonic(t *testing.T) {
	a := NextTLSModuleID()
	b := NextTLSModuleID()
	if b <= a {
		t.Fatalf("expected increasing ids, got %d then %d", a, b)
	}
}

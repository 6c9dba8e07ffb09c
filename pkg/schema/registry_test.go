package schema

import (
	"reflect"
	"testing"
)

type fooRow struct {
	X int
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry(0)

	ti1, err := r.Register(NewTableInfo("foo", reflect.TypeOf((*fooRow)(nil))))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ti1.Id == 0 {
		t.Fatalf("expected non-zero table id")
	}

	type barRow struct{}
	ti2, err := r.Register(NewTableInfo("bar", reflect.TypeOf((*barRow)(nil))))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ti2.Id <= ti1.Id {
		t.Fatalf("expected increasing ids, got %d then %d", ti1.Id, ti2.Id)
	}
}

func TestRegisterDuplicateTypeFails(t *testing.T) {
	r := NewRegistry(0)
	typ := reflect.TypeOf((*fooRow)(nil))

	if _, err := r.Register(NewTableInfo("foo", typ)); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := r.Register(NewTableInfo("foo2", typ)); err == nil {
		t.Fatalf("expected error registering the same type twice")
	}
}

func TestGetOrRegisterCreatesOnce(t *testing.T) {
	r := NewRegistry(0)
	typ := reflect.TypeOf((*fooRow)(nil))
	builds := 0
	build := func() *TableInfo {
		builds++
		return NewTableInfo("foo", typ)
	}

	ti1, created1, err := r.GetOrRegister(typ, build)
	if err != nil || !created1 {
		t.Fatalf("expected first call to create: created=%v err=%v", created1, err)
	}
	ti2, created2, err := r.GetOrRegister(typ, build)
	if err != nil || created2 {
		t.Fatalf("expected second call to reuse: created=%v err=%v", created2, err)
	}
	if ti1 != ti2 {
		t.Fatalf("expected the same TableInfo instance")
	}
	if builds != 1 {
		t.Fatalf("build called %d times, want 1", builds)
	}
}

func TestAllReturnsTableIDOrder(t *testing.T) {
	r := NewRegistry(0)
	type a struct{}
	type b struct{}
	type c struct{}
	for i, typ := range []reflect.Type{
		reflect.TypeOf((*c)(nil)),
		reflect.TypeOf((*a)(nil)),
		reflect.TypeOf((*b)(nil)),
	} {
		ti := NewTableInfo(typ.String(), typ)
		ti.Id = uint64(10 - i)
		if _, err := r.Register(ti); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	all := r.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Id > all[i].Id {
			t.Fatalf("All() not sorted by id: %v", all)
		}
	}
}

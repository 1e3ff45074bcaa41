package permstore

import (
	"context"
	"errors"
	"testing"
)

type mapKV struct {
	m       map[string]string
	failSet bool
	failGet bool
}

func newMapKV() *mapKV { return &mapKV{m: map[string]string{}} }

func (k *mapKV) SetItem(_ context.Context, key, value string) error {
	if k.failSet {
		return errors.New("set failed")
	}
	k.m[key] = value
	return nil
}

func (k *mapKV) GetItem(_ context.Context, key string) (string, error) {
	if k.failGet {
		return "", errors.New("get failed")
	}
	v, ok := k.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (k *mapKV) RemoveItem(_ context.Context, key string) error {
	delete(k.m, key)
	return nil
}

func TestLoadPrefersCloud(t *testing.T) {
	cloud, local := newMapKV(), newMapKV()
	cloud.m[Key] = "granted"
	local.m[Key] = "denied"

	s := New(cloud, local)
	if got := s.Load(context.Background()); got != Granted {
		t.Fatalf("load = %v, want granted from cloud", got)
	}
}

func TestLoadFallsBackToLocal(t *testing.T) {
	cloud, local := newMapKV(), newMapKV()
	cloud.failGet = true
	local.m[Key] = "denied"

	s := New(cloud, local)
	if got := s.Load(context.Background()); got != Denied {
		t.Fatalf("load = %v, want denied from local", got)
	}
}

func TestLoadNeverFails(t *testing.T) {
	cloud, local := newMapKV(), newMapKV()
	cloud.failGet = true
	local.failGet = true

	s := New(cloud, local)
	if got := s.Load(context.Background()); got != Undetermined {
		t.Fatalf("load = %v, want undetermined", got)
	}

	var nilStore *Store
	if got := nilStore.Load(context.Background()); got != Undetermined {
		t.Fatalf("nil store load = %v", got)
	}
}

func TestSaveFallsBackToLocalOnCloudFailure(t *testing.T) {
	cloud, local := newMapKV(), newMapKV()
	cloud.failSet = true

	s := New(cloud, local)
	if err := s.Save(context.Background(), Granted); err != nil {
		t.Fatalf("save: %v", err)
	}
	if local.m[Key] != "granted" {
		t.Fatalf("local store = %q, want granted", local.m[Key])
	}
}

func TestSaveWithoutCloudUsesLocal(t *testing.T) {
	local := newMapKV()
	s := New(nil, local)
	if err := s.Save(context.Background(), Denied); err != nil {
		t.Fatalf("save: %v", err)
	}
	if local.m[Key] != "denied" {
		t.Fatalf("local store = %q", local.m[Key])
	}
}

func TestClearRemovesBothBackends(t *testing.T) {
	cloud, local := newMapKV(), newMapKV()
	cloud.m[Key] = "granted"
	local.m[Key] = "granted"

	s := New(cloud, local)
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := cloud.m[Key]; ok {
		t.Fatal("cloud entry survived clear")
	}
	if _, ok := local.m[Key]; ok {
		t.Fatal("local entry survived clear")
	}
}

func TestParseStateRoundTrip(t *testing.T) {
	for _, st := range []State{Undetermined, Granted, Denied} {
		if got := ParseState(st.String()); got != st {
			t.Errorf("round trip %v -> %v", st, got)
		}
	}
	if got := ParseState("garbage"); got != Undetermined {
		t.Errorf("ParseState(garbage) = %v", got)
	}
}

package mapspec

import "testing"

func TestCompatibleNoRegistrationIsPermissive(t *testing.T) {
	if !Compatible(Helper(999), Hash) {
		t.Error("a helper with no registered entries should be treated as map-type-agnostic")
	}
}

func TestAllowAndCompatible(t *testing.T) {
	h := Helper(1234)
	if !Compatible(h, Array) {
		t.Fatal("a helper with no registrations should be map-type-agnostic before any Allow call")
	}
	Allow(h, Array)
	if !Compatible(h, Array) {
		t.Error("Allow(h, Array) should make Compatible(h, Array) true")
	}
	if Compatible(h, Hash) {
		t.Error("Allow(h, Array) should not imply Compatible(h, Hash)")
	}
}

func TestTypeString(t *testing.T) {
	cases := map[Type]string{
		Hash:    "hash",
		Array:   "array",
		LPMTrie: "lpm_trie",
		Unspec:  "unspec",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}

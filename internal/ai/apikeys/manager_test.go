package apikeys

import (
	"errors"
	"testing"
)

func TestNewManagerRejectsBlankKeys(t *testing.T) {
	for _, keys := range [][]string{nil, {""}, {" ", ""}} {
		if _, err := NewManager(keys); !errors.Is(err, ErrNoKeysAvailable) {
			t.Errorf("NewManager(%q) error = %v", keys, err)
		}
	}
}

func TestRotateWrapsAround(t *testing.T) {
	km, err := NewManager(ParseList("a, b,,c"))
	if err != nil {
		t.Fatal(err)
	}
	if km.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", km.Len())
	}

	var seen []string
	for i := 0; i < km.Len(); i++ {
		seen = append(seen, km.GetCurrentKey())
		err := km.RotateKey()
		if i < km.Len()-1 && err != nil {
			t.Fatalf("RotateKey() #%d error = %v", i, err)
		}
		if i == km.Len()-1 && !errors.Is(err, ErrAllKeysExhausted) {
			t.Fatalf("last RotateKey() error = %v", err)
		}
	}

	if seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Errorf("rotation order = %v", seen)
	}
	if km.GetCurrentKey() != "a" {
		t.Errorf("did not wrap to first key")
	}
}

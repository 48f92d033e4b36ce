package strings

import (
	"reflect"
	"testing"
)

func TestDedupeAndTrim(t *testing.T) {
	got := DedupeAndTrim([]string{" node-a ", "node-b", "node-a", "", "  "})
	want := []string{"node-a", "node-b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DedupeAndTrim = %v, want %v", got, want)
	}
}

func TestDedupeAndTrimEmpty(t *testing.T) {
	if got := DedupeAndTrim(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

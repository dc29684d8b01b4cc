package envutil

import (
	"testing"
	"time"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "nope")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 7 {
		t.Fatalf("Int: want=%d got=%d", 7, got)
	}
	t.Setenv("ENVUTIL_TEST_INT", " 12 ")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 12 {
		t.Fatalf("Int: want=%d got=%d", 12, got)
	}
}

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_DUR", "90")
	if got := Duration("ENVUTIL_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration: want=%s got=%s", 90*time.Second, got)
	}
	t.Setenv("ENVUTIL_TEST_DUR", "1m30s")
	if got := Duration("ENVUTIL_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration: want=%s got=%s", 90*time.Second, got)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_BOOL", "off")
	if Bool("ENVUTIL_TEST_BOOL", true) {
		t.Fatalf("Bool: want=false got=true")
	}
	t.Setenv("ENVUTIL_TEST_LIST", "a, ,b,")
	got := List("ENVUTIL_TEST_LIST")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List: got=%v", got)
	}
	t.Setenv("ENVUTIL_TEST_STR", "  ")
	if got := String("ENVUTIL_TEST_STR", "def"); got != "def" {
		t.Fatalf("String: want=%q got=%q", "def", got)
	}
}

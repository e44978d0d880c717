package logs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func writeLog(t *testing.T, path, content string, flag int) {
	t.Helper()
	f, err := os.OpenFile(path, flag|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winecellard.log")
	writeLog(t, path, "one\ntwo\nthree\nfour\n", os.O_TRUNC)

	lines, offset, err := Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if want := []string{"three", "four"}; !reflect.DeepEqual(lines, want) {
		t.Fatalf("Last = %v, want %v", lines, want)
	}
	if offset != int64(len("one\ntwo\nthree\nfour\n")) {
		t.Fatalf("unexpected offset %d", offset)
	}

	lines, _, err = Last(path, 10)
	if err != nil || len(lines) != 4 {
		t.Fatalf("expected all 4 lines, got %v (%v)", lines, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := Last(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", lines, offset, err)
	}
}

func TestLastHoldsBackPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winecellard.log")
	writeLog(t, path, "done\npartial", os.O_TRUNC)
	lines, offset, err := Last(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lines, []string{"done"}) || offset != 5 {
		t.Fatalf("got %v at %d", lines, offset)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winecellard.log")
	writeLog(t, path, "old\n", os.O_TRUNC)
	_, offset, err := Last(path, 0)
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu  sync.Mutex
		got []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, offset, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	writeLog(t, path, "new 1\nnew 2\n", os.O_APPEND)
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for followed lines")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(got, []string{"new 1", "new 2"}) {
		t.Fatalf("followed %v", got)
	}
}

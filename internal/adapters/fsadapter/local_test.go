/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package fsadapter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kubesentry/investigator/internal/adapters/fsadapter"
)

func TestLocalWriteAtomicThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	local := fsadapter.NewLocal()
	path := filepath.Join(dir, "reports", "inv-1.json")

	if err := local.WriteAtomic(context.Background(), path, []byte(`{"id":"inv-1"}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	data, err := local.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"id":"inv-1"}` {
		t.Fatalf("expected round-tripped content, got %q", data)
	}

	// No stray temp files should remain in the destination directory.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "inv-1.json" {
		t.Fatalf("expected only the final file to remain, got %+v", entries)
	}
}

func TestLocalListReturnsSortedFilenames(t *testing.T) {
	dir := t.TempDir()
	local := fsadapter.NewLocal()
	for _, name := range []string{"b.json", "a.json", "c.json"} {
		if err := local.WriteAtomic(context.Background(), filepath.Join(dir, name), []byte("{}")); err != nil {
			t.Fatalf("WriteAtomic(%s): %v", name, err)
		}
	}

	names, err := local.List(context.Background(), dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a.json", "b.json", "c.json"}
	if len(names) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), names)
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("expected sorted order %v, got %v", want, names)
		}
	}
}

func TestLocalAcquireLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	local := fsadapter.NewLocal()

	release, err := local.AcquireLock(dir)
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer release()

	if _, err := local.AcquireLock(dir); err == nil {
		t.Fatal("expected a second AcquireLock on the same directory to fail")
	}
}

func TestLocalAcquireLockCanBeReacquiredAfterRelease(t *testing.T) {
	dir := t.TempDir()
	local := fsadapter.NewLocal()

	release, err := local.AcquireLock(dir)
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	release2, err := local.AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	release2()
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	applog "imannotate/internal/log"
	"imannotate/internal/storage"
)

const sampleCSV = `width,height,Object,Type,Label,X,Y
64,48,0,Polygon,nucleus,2,2
64,48,0,Polygon,nucleus,20,2
64,48,0,Polygon,nucleus,20,20
64,48,1,Point,spot,30,10
`

func TestImportCSVWritesDocument(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "plate.csv")
	if err := os.WriteFile(in, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "plate.json")
	n, err := importCSV(in, "plate.png", out)
	if err != nil {
		t.Fatalf("importCSV: %v", err)
	}
	if n != 2 {
		t.Fatalf("objects = %d, want 2", n)
	}
	d, err := storage.Load(out)
	if err != nil {
		t.Fatalf("load imported: %v", err)
	}
	if d.ImagePath != "plate.png" || d.Width() != 64 || d.Label[1] != "spot" {
		t.Fatalf("unexpected document: %+v", d)
	}

	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("width,height\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := importCSV(bad, "x.png", filepath.Join(dir, "bad.json")); err == nil {
		t.Fatalf("expected error for incomplete table")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.json")); err == nil {
		t.Fatalf("nothing should be written for a rejected table")
	}
}

func TestEnsureCatalogCreatesAndRepairs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "plate.csv")
	if err := os.WriteFile(in, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := importCSV(in, "plate.png", filepath.Join(dir, "plate.json")); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	l := applog.WithComponent("cli-test")

	if err := ensureCatalog(ctx, l, dir); err != nil {
		t.Fatalf("create: %v", err)
	}
	docs, err := storage.ListDocuments(ctx, dir)
	if err != nil || len(docs) != 1 {
		t.Fatalf("catalog after create: %v %v", docs, err)
	}

	if err := os.WriteFile(storage.IndexPath(dir), []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureCatalog(ctx, l, dir); err != nil {
		t.Fatalf("repair: %v", err)
	}
	docs, err = storage.ListDocuments(ctx, dir)
	if err != nil || len(docs) != 1 || docs[0].Objects != 2 {
		t.Fatalf("catalog after repair: %v %v", docs, err)
	}
}

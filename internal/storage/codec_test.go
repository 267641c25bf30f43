/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"imannotate/internal/annotation"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	a := sampleAnnotations()
	d, rows := Serialize(a, ImageMeta{Path: "img.png", Width: 640, Height: 480}, SaveOptions{})
	if len(rows) != 6 || rows[5].Object != 3 || rows[5].Type != "Point" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if d.ImageData != "" {
		t.Fatalf("image data must be omitted unless embedding is requested")
	}
	data, err := Encode(d)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := Deserialize(back)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(got.Records) != len(a.Records) {
		t.Fatalf("record count %d, want %d", len(got.Records), len(a.Records))
	}
	for i, r := range got.Records {
		w := a.Records[i]
		if r.Type != w.Type || r.Label != w.Label || r.Color != w.Color || len(r.Points) != len(w.Points) {
			t.Fatalf("record %d mismatch: %+v vs %+v", i, r, w)
		}
		for j := range r.Points {
			if !r.Points[j].Eq(w.Points[j]) {
				t.Fatalf("record %d point %d: %v vs %v", i, j, r.Points[j], w.Points[j])
			}
		}
	}
	if len(got.Classes) != 2 || got.Classes[0].Name != "cell" || got.Classes[1].Name != "default" {
		t.Fatalf("classes not rebuilt in first-seen order: %+v", got.Classes)
	}

	s := annotation.NewScene(annotation.DefaultStyle())
	if err := s.Load(got); err != nil {
		t.Fatalf("scene load: %v", err)
	}
	if s.Len() != 3 || !s.Shapes()[0].Closed || s.Shapes()[1].Closed {
		t.Fatalf("closure should follow type after load")
	}
	if owner := s.FindOwner(s.Shapes()[2].ID); owner == nil || owner.Name != "cell" {
		t.Fatalf("label assignment lost")
	}
}

func TestSerializeEmbedsImage(t *testing.T) {
	d, _ := Serialize(sampleAnnotations(), ImageMeta{Data: []byte{1, 2, 3}}, SaveOptions{EmbedImage: true})
	b, err := DecodeImageData(d)
	if err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("embedded data round trip failed: %v %v", b, err)
	}
}

func TestDeserializeRejectsBadArity(t *testing.T) {
	d, _ := sampleDocument()
	d.Type[2] = "Polygon"
	if _, err := Deserialize(d); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDeserializeSameLabelDifferentColors(t *testing.T) {
	d, _ := sampleDocument()
	d.LineColor.Values[2] = "#00ff00"
	a, err := Deserialize(d)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Classes) != 2 || a.Classes[0].Color != annotation.MustColor("#ff0000") {
		t.Fatalf("first color should define the class: %+v", a.Classes)
	}
	if a.Records[2].Color != annotation.MustColor("#00ff00") {
		t.Fatalf("object should keep its own color")
	}
}

func TestCSVReadBack(t *testing.T) {
	_, rows := sampleDocument()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != len(rows) || got[1] != rows[1] {
		t.Fatalf("rows differ: %+v vs %+v", got, rows)
	}
	d := DocumentFromRows(got)
	if len(d.Objects) != 3 || d.Type[1] != "Line" || len(d.LineColor.Values) != 3 {
		t.Fatalf("unexpected regrouped document: %+v", d)
	}
}

func TestReadCSVWithIndexColumnAndNoType(t *testing.T) {
	in := ",width,height,Object,X,Y\n0,10,10,1,1,1\n1,10,10,1,5,1\n2,10,10,1,5,5\n"
	rows, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	d := DocumentFromRows(rows)
	if len(d.Objects) != 1 || d.Type[0] != "Polygon" || d.Label[0] != "default" {
		t.Fatalf("unexpected document: %+v", d)
	}
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2\n")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing columns, got %v", err)
	}
}

func TestImportCSV(t *testing.T) {
	_, rows := sampleDocument()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatal(err)
	}
	d, err := ImportCSV(&buf, "plate/img.png")
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if d.ImagePath != "plate/img.png" || len(d.Objects) != 3 {
		t.Fatalf("unexpected import: %+v", d)
	}
	if got := Rows(d); len(got) != len(rows) {
		t.Fatalf("round trip lost rows: %d vs %d", len(got), len(rows))
	}

	if _, err := ImportCSV(strings.NewReader("width,height,Object,X,Y\n"), "x.png"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty table: %v", err)
	}
	twoPointPolygon := "width,height,Object,Type,Label,X,Y\n10,10,0,Polygon,a,1,1\n10,10,0,Polygon,a,2,2\n"
	if _, err := ImportCSV(strings.NewReader(twoPointPolygon), "x.png"); err == nil {
		t.Fatalf("expected degenerate polygon to be rejected")
	}
}

func TestCSVPath(t *testing.T) {
	if got := CSVPath("/x/y/img.json"); got != "/x/y/img.csv" {
		t.Fatalf("CSVPath = %s", got)
	}
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/base64"
	"fmt"

	"imannotate/internal/annotation"
	"imannotate/internal/geom"
)

// ImageMeta describes the image a document annotates.
type ImageMeta struct {
	Path   string
	Width  int
	Height int
	Data   []byte
}

// SaveOptions control what is written alongside the annotations.
type SaveOptions struct {
	// EmbedImage stores the original image bytes base64-encoded in imageData.
	EmbedImage bool
}

// Row is one (object, point) line of the tabular export.
type Row struct {
	Width, Height int
	Object        int
	Type          string
	Label         string
	X, Y          float64
}

// Serialize builds the persisted document and the tabular rows for a.
func Serialize(a annotation.Annotations, meta ImageMeta, opts SaveOptions) (*Document, []Row) {
	n := len(a.Records)
	d := &Document{
		Objects:   make([][][2]float64, 0, n),
		Type:      make([]string, 0, n),
		Label:     make(LabelList, 0, n),
		Size:      [2]int{meta.Width, meta.Height},
		LineColor: ColorList{Values: make([]string, 0, n)},
		ImagePath: meta.Path,
	}
	if opts.EmbedImage && len(meta.Data) > 0 {
		d.ImageData = base64.StdEncoding.EncodeToString(meta.Data)
	}
	var rows []Row
	for i, r := range a.Records {
		pts := make([][2]float64, 0, len(r.Points))
		for _, p := range r.Points {
			pts = append(pts, [2]float64{p.X, p.Y})
			rows = append(rows, Row{
				Width: meta.Width, Height: meta.Height,
				Object: i + 1,
				Type:   r.Type.String(),
				Label:  r.Label,
				X:      p.X, Y: p.Y,
			})
		}
		d.Objects = append(d.Objects, pts)
		d.Type = append(d.Type, r.Type.String())
		d.Label = append(d.Label, r.Label)
		d.LineColor.Values = append(d.LineColor.Values, r.Color.Hex())
	}
	return d, rows
}

// Rows derives the tabular export from a document.
func Rows(d *Document) []Row {
	var rows []Row
	for i, obj := range d.Objects {
		var ty, label string
		if i < len(d.Type) {
			ty = d.Type[i]
		}
		if i < len(d.Label) {
			label = d.Label[i]
		}
		for _, p := range obj {
			rows = append(rows, Row{
				Width: d.Width(), Height: d.Height(),
				Object: i + 1, Type: ty, Label: label,
				X: p[0], Y: p[1],
			})
		}
	}
	return rows
}

// Deserialize rebuilds annotations from d. Label classes come from the
// distinct (label, color) pairs in first-seen order; when one name appears
// with several colors the first one defines the class and later objects keep
// their own color. Any inconsistency matches ErrMalformed.
func Deserialize(d *Document) (annotation.Annotations, error) {
	if d == nil {
		return annotation.Annotations{}, fmt.Errorf("%w: nil document", ErrMalformed)
	}
	if err := d.Check(); err != nil {
		return annotation.Annotations{}, err
	}
	a := annotation.Annotations{Records: make([]annotation.Record, 0, len(d.Objects))}
	seen := map[string]bool{}
	for i, obj := range d.Objects {
		ty, err := annotation.ParseObjectType(d.Type[i])
		if err != nil {
			return annotation.Annotations{}, fmt.Errorf("%w: object %d: %v", ErrMalformed, i+1, err)
		}
		if !ty.ValidCount(len(obj)) {
			return annotation.Annotations{}, fmt.Errorf("%w: object %d: %d points for %s", ErrMalformed, i+1, len(obj), ty)
		}
		c, err := annotation.ParseColor(d.LineColor.At(i))
		if err != nil {
			return annotation.Annotations{}, fmt.Errorf("%w: object %d: %v", ErrMalformed, i+1, err)
		}
		label := d.Label[i]
		if !seen[label] {
			seen[label] = true
			a.Classes = append(a.Classes, annotation.LabelDef{Name: label, Color: c})
		}
		pts := make([]geom.Point, 0, len(obj))
		for _, p := range obj {
			pts = append(pts, geom.Pt(p[0], p[1]))
		}
		a.Records = append(a.Records, annotation.Record{Points: pts, Type: ty, Label: label, Color: c})
	}
	return a, nil
}

// DecodeImageData returns the embedded image bytes, or nil when absent.
func DecodeImageData(d *Document) ([]byte, error) {
	if d.ImageData == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(d.ImageData)
	if err != nil {
		return nil, fmt.Errorf("%w: imageData: %v", ErrMalformed, err)
	}
	return b, nil
}

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
	"encoding/json"
	"errors"
	"fmt"

	"imannotate/internal/annotation"
)

var (
	// ErrMalformed marks a document that cannot be installed into a scene.
	ErrMalformed = errors.New("malformed annotation document")
	// ErrSaveFailed wraps every failure while writing a document.
	ErrSaveFailed = errors.New("save failed")
)

// Document mirrors the persisted JSON annotation file.
type Document struct {
	Objects   [][][2]float64 `json:"objects"`
	Type      []string       `json:"type"`
	Label     LabelList      `json:"label"`
	Size      [2]int         `json:"width/height"`
	LineColor ColorList      `json:"lineColor"`
	ImagePath string         `json:"imagePath"`
	ImageData string         `json:"imageData,omitempty"`
}

// Width and Height of the annotated image in pixels.
func (d *Document) Width() int  { return d.Size[0] }
func (d *Document) Height() int { return d.Size[1] }

// Check verifies the parallel arrays line up. It does not look at geometry.
func (d *Document) Check() error {
	n := len(d.Objects)
	if len(d.Type) != n {
		return fmt.Errorf("%w: %d objects but %d types", ErrMalformed, n, len(d.Type))
	}
	if len(d.Label) != n {
		return fmt.Errorf("%w: %d objects but %d labels", ErrMalformed, n, len(d.Label))
	}
	if !d.LineColor.Legacy && len(d.LineColor.Values) != n {
		return fmt.Errorf("%w: %d objects but %d colors", ErrMalformed, n, len(d.LineColor.Values))
	}
	return nil
}

// LabelList decodes null entries as the default label.
type LabelList []string

func (l *LabelList) UnmarshalJSON(b []byte) error {
	var raw []*string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(LabelList, len(raw))
	for i, s := range raw {
		if s == nil || *s == "" {
			out[i] = annotation.DefaultLabel
			continue
		}
		out[i] = *s
	}
	*l = out
	return nil
}

// ColorList holds per-object colors. Older single-class documents store one
// scalar color for all objects; those decode with Legacy set. Encoding
// always produces an array.
type ColorList struct {
	Values []string
	Legacy bool
}

func (c ColorList) MarshalJSON() ([]byte, error) {
	if c.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Values)
}

func (c *ColorList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*c = ColorList{Legacy: true}
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ColorList{Values: []string{s}, Legacy: true}
		return nil
	}
	var vs []string
	if err := json.Unmarshal(b, &vs); err != nil {
		return err
	}
	*c = ColorList{Values: vs}
	return nil
}

// At returns the color for object i; legacy documents share one color and
// an absent color falls back to the default class color.
func (c ColorList) At(i int) string {
	if c.Legacy {
		if len(c.Values) > 0 {
			return c.Values[0]
		}
		return annotation.DefaultLabelColor.Hex()
	}
	if i < 0 || i >= len(c.Values) {
		return annotation.DefaultLabelColor.Hex()
	}
	return c.Values[i]
}

// Normalize expands a legacy scalar color into one entry per object.
func (d *Document) Normalize() {
	if !d.LineColor.Legacy {
		return
	}
	vs := make([]string, len(d.Objects))
	for i := range vs {
		vs[i] = d.LineColor.At(i)
	}
	d.LineColor = ColorList{Values: vs}
}

// Decode validates data against the document schema and unmarshals it. Any
// failure matches ErrMalformed.
func Decode(data []byte) (*Document, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	d.Normalize()
	return &d, nil
}

// Encode renders the document as indented JSON with a trailing newline.
func Encode(d *Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

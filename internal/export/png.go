/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"

	"imannotate/internal/annotation"
)

// OverlayOptions controls overlay rendering. A zero Style selects the
// default style.
type OverlayOptions struct {
	Style annotation.Style
}

// MaskOptions controls binary mask export. When Labels is non-empty only
// polygons carrying one of those labels are painted.
type MaskOptions struct {
	Labels []string
}

// Overlay draws the annotations over a copy of base, the same way the
// interactive canvas shows them.
func Overlay(base image.Image, a annotation.Annotations, opt OverlayOptions) (*image.NRGBA, error) {
	if base == nil {
		return nil, fmt.Errorf("overlay: base image is nil")
	}
	style := opt.Style
	if style == (annotation.Style{}) {
		style = annotation.DefaultStyle()
	}
	s := annotation.NewScene(style)
	if err := s.Load(a); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	dst := imaging.Clone(base)
	annotation.Render(s, NewRaster(dst))
	return dst, nil
}

// Mask paints every polygon white on a black width x height canvas.
// Lines and points carry no area and are skipped.
func Mask(a annotation.Annotations, width, height int, opt MaskOptions) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask: invalid size %dx%d", width, height)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	r := NewRaster(img)
	for _, rec := range a.Records {
		if rec.Type != annotation.TypePolygon {
			continue
		}
		if len(opt.Labels) > 0 && !slices.Contains(opt.Labels, rec.Label) {
			continue
		}
		r.FillPolygon(rec.Points, annotation.White)
	}
	// anti-aliased edges are snapped so the mask stays two-valued
	for i, v := range img.Pix {
		if v >= 128 {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
	return img, nil
}

// CountMasked returns the number of foreground pixels in a mask.
func CountMasked(m *image.Gray) int {
	n := 0
	for _, v := range m.Pix {
		if v == 255 {
			n++
		}
	}
	return n
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

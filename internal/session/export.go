/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"imannotate/internal/annotation"
	"imannotate/internal/export"
	"imannotate/internal/geom"
	"imannotate/internal/imaging"
)

// ExportOverlay writes the image with the annotations drawn on top as PNG.
func (s *Session) ExportOverlay(path string) error {
	if s.image == nil {
		return ErrNoDocument
	}
	img, err := export.Overlay(s.image.Img, s.scene.Export(), export.OverlayOptions{Style: s.scene.Style()})
	if err != nil {
		return err
	}
	return export.WritePNG(path, img)
}

// ExportMask writes a binary polygon mask as PNG and returns the number of
// foreground pixels. Labels restrict the painted polygons when given.
func (s *Session) ExportMask(path string, labels ...string) (int, error) {
	if s.image == nil {
		return 0, ErrNoDocument
	}
	m, err := export.Mask(s.scene.Export(), s.image.Width(), s.image.Height(), export.MaskOptions{Labels: labels})
	if err != nil {
		return 0, err
	}
	if err := export.WritePNG(path, m); err != nil {
		return 0, err
	}
	return export.CountMasked(m), nil
}

// ExportSVG writes the annotations as SVG referencing the image.
func (s *Session) ExportSVG(path string) error {
	if s.image == nil {
		return ErrNoDocument
	}
	opt := export.SVGOptions{ImageHref: s.imagePath, LineWidth: s.scene.Style().LineWidth}
	return export.WriteSVG(path, s.scene.Export(), s.image.Width(), s.image.Height(), opt)
}

// ExportPDF writes a one-page PDF with the image and labelled annotations.
func (s *Session) ExportPDF(path string) error {
	if s.image == nil {
		return ErrNoDocument
	}
	opt := export.PDFOptions{
		Title:      s.name,
		Background: s.image.Img,
		LineWidth:  s.scene.Style().LineWidth,
		ShowLabels: true,
	}
	return export.WritePDF(path, s.scene.Export(), s.image.Width(), s.image.Height(), opt)
}

// CropPatches saves a square patch around every annotation (its point, or
// the centroid of its vertices) as <prefix>_<n>.tif.
func (s *Session) CropPatches(prefix string) ([]string, error) {
	if s.image == nil {
		return nil, ErrNoDocument
	}
	return imaging.SavePatches(s.image.Img, Centers(s.scene.Export()), s.opts.CropSize, prefix)
}

// Centers returns one anchor per record: the point itself for Point
// objects and the vertex centroid otherwise.
func Centers(a annotation.Annotations) []geom.Point {
	out := make([]geom.Point, 0, len(a.Records))
	for _, r := range a.Records {
		if len(r.Points) == 0 {
			continue
		}
		if r.Type == annotation.TypePoint {
			out = append(out, r.Points[0])
			continue
		}
		out = append(out, geom.Centroid(r.Points))
	}
	return out
}

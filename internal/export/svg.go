/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imannotate/internal/annotation"
	"imannotate/internal/geom"
)

// SVGOptions controls SVG export behavior.
// - ImageHref, when set, references the source image as the bottom layer.
// - LineWidth and PointRadius default to 1 and 3.
type SVGOptions struct {
	ImageHref   string
	LineWidth   float64
	PointRadius float64
}

// SVG renders the annotations as a standalone SVG document sized to the
// image. Each shape carries its label in a data-label attribute.
func SVG(a annotation.Annotations, width, height int, opt SVGOptions) ([]byte, error) {
	lw := opt.LineWidth
	if lw <= 0 {
		lw = 1
	}
	pr := opt.PointRadius
	if pr <= 0 {
		pr = 3
	}

	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">\n", width, height, width, height)
	if opt.ImageHref != "" {
		wf("  <image x=\"0\" y=\"0\" width=\"%d\" height=\"%d\" xlink:href=\"%s\"/>\n", width, height, escAttr(opt.ImageHref))
	}

	for i, r := range a.Records {
		c := r.Color.Hex()
		label := escAttr(r.Label)
		switch r.Type {
		case annotation.TypePolygon:
			wf("  <polygon id=\"obj-%d\" data-label=\"%s\" points=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"%g\"/>\n", i+1, label, svgPoints(r.Points), c, lw)
		case annotation.TypeLine:
			wf("  <polyline id=\"obj-%d\" data-label=\"%s\" points=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"%g\"/>\n", i+1, label, svgPoints(r.Points), c, lw)
		case annotation.TypePoint:
			if len(r.Points) == 0 {
				continue
			}
			p := r.Points[0]
			wf("  <circle id=\"obj-%d\" data-label=\"%s\" cx=\"%g\" cy=\"%g\" r=\"%g\" fill=\"%s\"/>\n", i+1, label, p.X, p.Y, pr, c)
		}
	}

	wf("</svg>\n")
	if werr != nil {
		return nil, fmt.Errorf("build svg: %w", werr)
	}
	return buf.Bytes(), nil
}

// WriteSVG renders and writes an SVG file, creating parent directories.
func WriteSVG(path string, a annotation.Annotations, width, height int, opt SVGOptions) error {
	data, err := SVG(a, width, height, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func svgPoints(pts []geom.Point) string {
	var sb strings.Builder
	for i, p := range pts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%g,%g", p.X, p.Y)
	}
	return sb.String()
}

func escAttr(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '"':
			out = append(out, "&quot;"...)
		case '\n':
			out = append(out, ' ')
		case '\r':
			// skip
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

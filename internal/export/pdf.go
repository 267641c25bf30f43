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
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"imannotate/internal/annotation"
	"imannotate/internal/version"
)

// PDFOptions controls PDF export behavior.
// The page is sized to the image with one point per image pixel, so
// annotation coordinates map onto the page without scaling.
//
//nolint:revive // keep options grouped and explicit for clarity
type PDFOptions struct {
	Title       string
	Background  image.Image // drawn below the shapes when set
	LineWidth   float64
	PointRadius float64
	ShowLabels  bool
}

// WritePDF exports a single-page PDF of the annotations to path.
func WritePDF(path string, a annotation.Annotations, width, height int, opt PDFOptions) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("pdf: invalid size %dx%d", width, height)
	}
	lw := opt.LineWidth
	if lw <= 0 {
		lw = 1
	}
	pr := opt.PointRadius
	if pr <= 0 {
		pr = 3
	}
	w, h := float64(width), float64(height)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
		OrientationStr: "P",
	})
	if opt.Title != "" {
		pdf.SetTitle(opt.Title, true)
	}
	pdf.SetCreator("imannotate "+version.String(), false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})

	if opt.Background != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, opt.Background); err != nil {
			return fmt.Errorf("encode background: %w", err)
		}
		imgOpt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("background", imgOpt, &buf)
		pdf.ImageOptions("background", 0, 0, w, h, false, imgOpt, 0, "")
	}

	pdf.SetLineWidth(lw)
	pdf.SetFont("Helvetica", "", 8)
	for _, r := range a.Records {
		if len(r.Points) == 0 {
			continue
		}
		setDrawColor(pdf, r.Color)
		setFillColor(pdf, r.Color)
		switch r.Type {
		case annotation.TypePolygon:
			pts := make([]gofpdf.PointType, len(r.Points))
			for i, p := range r.Points {
				pts[i] = gofpdf.PointType{X: p.X, Y: p.Y}
			}
			pdf.Polygon(pts, "D")
		case annotation.TypeLine:
			pdf.MoveTo(r.Points[0].X, r.Points[0].Y)
			for _, p := range r.Points[1:] {
				pdf.LineTo(p.X, p.Y)
			}
			pdf.DrawPath("D")
		case annotation.TypePoint:
			pdf.Circle(r.Points[0].X, r.Points[0].Y, pr, "F")
		}
		if opt.ShowLabels {
			pdf.SetTextColor(int(r.Color.R), int(r.Color.G), int(r.Color.B))
			pdf.Text(r.Points[0].X+pr, r.Points[0].Y-pr, r.Label)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c annotation.Color) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c annotation.Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"imannotate/internal/annotation"
)

// CSVHeader is the fixed header row of the tabular export.
var CSVHeader = []string{"width", "height", "Object", "Type", "Label", "X", "Y"}

// CSVPath derives the tabular export path from a document path.
func CSVPath(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".csv"
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Width), strconv.Itoa(r.Height),
			strconv.Itoa(r.Object), r.Type, r.Label,
			fmtFloat(r.X), fmtFloat(r.Y),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a tabular export. Columns are located by header name so
// exports with a leading index column are accepted as well.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, need := range []string{"width", "height", "Object", "X", "Y"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("%w: csv missing column %q", ErrMalformed, need)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		var row Row
		var perr error
		parseInt := func(name string) int {
			v, err := strconv.ParseFloat(field(rec, name), 64)
			if err != nil && perr == nil {
				perr = fmt.Errorf("%w: line %d column %s: %v", ErrMalformed, line, name, err)
			}
			return int(v)
		}
		parseFloat := func(name string) float64 {
			v, err := strconv.ParseFloat(field(rec, name), 64)
			if err != nil && perr == nil {
				perr = fmt.Errorf("%w: line %d column %s: %v", ErrMalformed, line, name, err)
			}
			return v
		}
		row.Width = parseInt("width")
		row.Height = parseInt("height")
		row.Object = parseInt("Object")
		row.X = parseFloat("X")
		row.Y = parseFloat("Y")
		row.Type = field(rec, "Type")
		row.Label = field(rec, "Label")
		if perr != nil {
			return nil, perr
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DocumentFromRows regroups rows into a document. Objects without a type
// column are treated as polygons.
func DocumentFromRows(rows []Row) *Document {
	d := &Document{}
	idx := map[int]int{}
	for _, r := range rows {
		d.Size = [2]int{r.Width, r.Height}
		i, ok := idx[r.Object]
		if !ok {
			i = len(d.Objects)
			idx[r.Object] = i
			ty := r.Type
			if ty == "" {
				ty = "Polygon"
			}
			d.Objects = append(d.Objects, nil)
			d.Type = append(d.Type, ty)
			label := r.Label
			if label == "" {
				label = annotation.DefaultLabel
			}
			d.Label = append(d.Label, label)
		}
		d.Objects[i] = append(d.Objects[i], [2]float64{r.X, r.Y})
	}
	d.LineColor = ColorList{Legacy: true}
	d.Normalize()
	return d
}

// ImportCSV rebuilds a document from a tabular export. The table carries no
// image reference, so imagePath is recorded as given. The result is checked
// the same way a loaded document is.
func ImportCSV(r io.Reader, imagePath string) (*Document, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: csv has no rows", ErrMalformed)
	}
	d := DocumentFromRows(rows)
	d.ImagePath = imagePath
	if _, err := Deserialize(d); err != nil {
		return nil, err
	}
	return d, nil
}

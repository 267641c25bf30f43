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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imannotate/internal/config"
	"imannotate/internal/crash"
	"imannotate/internal/geom"
	applog "imannotate/internal/log"
	"imannotate/internal/session"
	"imannotate/internal/storage"
	"imannotate/internal/ui"
	"imannotate/internal/version"
)

func usage() {
	fmt.Println("imannotate - image annotation")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  imannotate version|-v|--version              Show version")
	fmt.Println("  imannotate ui [<image|doc.json>]             Launch desktop UI (build with -tags fyne for full UI)")
	fmt.Println("  imannotate info <doc.json>                   Print a summary of an annotation document")
	fmt.Println("  imannotate validate <doc.json>               Check a document against the schema")
	fmt.Println("  imannotate csv <doc.json> [out.csv]          Write the per-vertex CSV table")
	fmt.Println("  imannotate import <in.csv> <image> [out.json]  Rebuild a document from a CSV table")
	fmt.Println("  imannotate overlay <doc.json> <out.png>      Render annotations over the image")
	fmt.Println("  imannotate mask <doc.json> <out.png> [label...]  Write a binary polygon mask")
	fmt.Println("  imannotate svg <doc.json> <out.svg>          Export annotations as SVG")
	fmt.Println("  imannotate pdf <doc.json> <out.pdf>          Export image and annotations as PDF")
	fmt.Println("  imannotate crop <doc.json> <prefix>          Save one patch per annotation")
	fmt.Println("  imannotate list <dir>                        List catalogued documents and label counts")
	fmt.Println("  imannotate search <dir> <label> [type]       Find documents with objects of a label")
	fmt.Println("  imannotate reindex <dir>                     Rebuild the folder catalog")
	fmt.Println("  imannotate restore <doc.json>                Restore the newest backup of a document")
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

func need(args []string, n int, what string) {
	if len(args) < n {
		fmt.Println(what)
		usage()
		os.Exit(2)
	}
}

func main() {
	cfg, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cfgErr))
		cfg = config.Defaults()
	}
	sess := session.New(session.OptionsFromConfig(cfg))
	defer crash.Recover(sess)

	ctx := context.Background()
	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	open := func(path string) {
		if err := sess.Open(ctx, path); err != nil {
			fail(l, "open failed", err)
		}
	}

	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("imannotate")
		fmt.Println(version.String())
	case "ui":
		var path string
		if len(args) >= 3 {
			path = args[2]
		}
		if err := ui.Run(path); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	case "info":
		need(args, 3, "info requires <doc.json>")
		d, err := storage.Load(args[2])
		if err != nil {
			fail(l, "load failed", err)
		}
		printInfo(args[2], d)
	case "validate":
		need(args, 3, "validate requires <doc.json>")
		data, err := os.ReadFile(args[2])
		if err != nil {
			fail(l, "read failed", err)
		}
		if err := storage.Validate(data); err != nil {
			fail(l, "validation failed", err)
		}
		fmt.Println("OK")
	case "csv":
		need(args, 3, "csv requires <doc.json>")
		d, err := storage.Load(args[2])
		if err != nil {
			fail(l, "load failed", err)
		}
		out := storage.CSVPath(args[2])
		if len(args) >= 4 {
			out = args[3]
		}
		if err := writeCSV(out, d); err != nil {
			fail(l, "csv failed", err)
		}
		fmt.Println("Wrote", out)
	case "import":
		need(args, 4, "import requires <in.csv> and <image>")
		out := strings.TrimSuffix(args[2], filepath.Ext(args[2])) + ".json"
		if len(args) >= 5 {
			out = args[4]
		}
		n, err := importCSV(args[2], args[3], out)
		if err != nil {
			fail(l, "import failed", err)
		}
		fmt.Printf("Wrote %s (%d objects)\n", out, n)
	case "overlay", "svg", "pdf":
		need(args, 4, args[1]+" requires <doc.json> and <out>")
		open(args[2])
		run := map[string]func(string) error{
			"overlay": sess.ExportOverlay,
			"svg":     sess.ExportSVG,
			"pdf":     sess.ExportPDF,
		}[args[1]]
		if err := run(args[3]); err != nil {
			fail(l, "export failed", err)
		}
		fmt.Println("Exported", args[3])
	case "mask":
		need(args, 4, "mask requires <doc.json> and <out.png>")
		open(args[2])
		n, err := sess.ExportMask(args[3], args[4:]...)
		if err != nil {
			fail(l, "mask failed", err)
		}
		fmt.Printf("Exported %s (%d pixels masked)\n", args[3], n)
	case "crop":
		need(args, 4, "crop requires <doc.json> and <prefix>")
		open(args[2])
		files, err := sess.CropPatches(args[3])
		if err != nil {
			fail(l, "crop failed", err)
		}
		fmt.Printf("Saved %d patches\n", len(files))
	case "list":
		need(args, 3, "list requires <dir>")
		if err := ensureCatalog(ctx, l, args[2]); err != nil {
			fail(l, "catalog check failed", err)
		}
		if err := printCatalog(ctx, args[2]); err != nil {
			fail(l, "list failed", err)
		}
	case "search":
		need(args, 4, "search requires <dir> and <label>")
		q := storage.SearchQuery{Labels: []string{args[3]}}
		if len(args) >= 5 {
			q.Types = []string{args[4]}
		}
		if err := ensureCatalog(ctx, l, args[2]); err != nil {
			fail(l, "catalog check failed", err)
		}
		res, err := storage.Search(ctx, args[2], q)
		if err != nil {
			fail(l, "search failed", err)
		}
		for _, r := range res {
			fmt.Printf("%4d  %s\n", r.Matches, r.Path)
		}
	case "reindex":
		need(args, 3, "reindex requires <dir>")
		n, err := storage.RebuildIndex(ctx, args[2])
		if err != nil {
			fail(l, "reindex failed", err)
		}
		fmt.Printf("Indexed %d documents\n", n)
	case "restore":
		need(args, 3, "restore requires <doc.json>")
		d, from, err := storage.LatestBackup(args[2])
		if err != nil {
			fail(l, "restore failed", err)
		}
		if err := storage.Save(args[2], d, storage.Rows(d)); err != nil {
			fail(l, "restore save failed", err)
		}
		l.Info("restored", slog.String("from", from), slog.String("to", args[2]))
		fmt.Println("Restored", args[2], "from", filepath.Base(from))
	default:
		usage()
		os.Exit(2)
	}
}

func printInfo(path string, d *storage.Document) {
	fmt.Println("Document:", path)
	fmt.Println("Image:", d.ImagePath)
	fmt.Printf("Size: %dx%d\n", d.Width(), d.Height())
	fmt.Printf("Embedded image: %v\n", d.ImageData != "")
	fmt.Printf("Objects: %d\n", len(d.Objects))
	type tally struct {
		n    int
		area float64
	}
	counts := map[string]*tally{}
	for i, obj := range d.Objects {
		ty := "?"
		if i < len(d.Type) {
			ty = d.Type[i]
		}
		key := ty
		if i < len(d.Label) {
			key = d.Label[i] + " / " + ty
		}
		t := counts[key]
		if t == nil {
			t = &tally{}
			counts[key] = t
		}
		t.n++
		if ty == "Polygon" {
			t.area += geom.Area(objectPoints(obj))
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t := counts[k]; t.area > 0 {
			fmt.Printf("  %-30s %d  area %.1f px\n", k, t.n, t.area)
		} else {
			fmt.Printf("  %-30s %d\n", k, t.n)
		}
	}
}

func objectPoints(obj [][2]float64) []geom.Point {
	pts := make([]geom.Point, len(obj))
	for i, p := range obj {
		pts[i] = geom.Pt(p[0], p[1])
	}
	return pts
}

// importCSV rebuilds a document from a CSV table and saves it to out. It
// returns the number of objects written.
func importCSV(in, image, out string) (int, error) {
	f, err := os.Open(in)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	d, err := storage.ImportCSV(f, image)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(in), err)
	}
	if err := storage.Save(out, d, storage.Rows(d)); err != nil {
		return 0, err
	}
	return len(d.Objects), nil
}

// ensureCatalog builds the folder catalog when it is missing and rebuilds it
// when it is unreadable.
func ensureCatalog(ctx context.Context, l *slog.Logger, dir string) error {
	if _, err := os.Stat(storage.IndexPath(dir)); errors.Is(err, os.ErrNotExist) {
		n, err := storage.RebuildIndex(ctx, dir)
		if err != nil {
			return err
		}
		l.Info("catalog created", slog.String("dir", dir), slog.Int("documents", n))
		return nil
	}
	rebuilt, err := storage.DetectAndRebuildIndex(ctx, dir)
	if err != nil {
		return err
	}
	if rebuilt {
		l.Warn("catalog was damaged and has been rebuilt", slog.String("dir", dir))
	}
	return nil
}

func writeCSV(path string, d *storage.Document) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return storage.WriteCSV(f, storage.Rows(d))
}

func printCatalog(ctx context.Context, dir string) error {
	docs, err := storage.ListDocuments(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range docs {
		fmt.Printf("%-40s %5dx%-5d %4d objects  %s\n", filepath.Base(e.Path), e.Width, e.Height, e.Objects, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	counts, err := storage.LabelCounts(ctx, dir)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		fmt.Println()
		for _, c := range counts {
			fmt.Printf("%-24s %-8s %d\n", c.Label, strings.ToLower(c.Type), c.Count)
		}
	}
	return nil
}

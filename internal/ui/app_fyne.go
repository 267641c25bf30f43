//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/lucasb-eyer/go-colorful"

	"imannotate/internal/annotation"
	"imannotate/internal/config"
	"imannotate/internal/crash"
	applog "imannotate/internal/log"
	"imannotate/internal/session"
	"imannotate/internal/storage"
	"imannotate/internal/version"
	"imannotate/internal/viewport"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif"}

// Run starts the desktop annotator. path may name an image or an annotation
// document to open right away.
func Run(path string) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	cfg, err := config.Load()
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}
	prompter := &presetPrompter{}
	opts := session.OptionsFromConfig(cfg)
	opts.Prompter = prompter
	sess := session.New(opts)
	defer crash.Recover(sess)

	fyneApp := app.NewWithID("imannotate")
	w := fyneApp.NewWindow("imannotate")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 800 {
		winW = 800
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	scene := sess.Scene()
	status := widget.NewLabel(sess.Status())
	cv := NewAnnotationCanvas(sess)

	// Label classes (right)
	classes := scene.Classes()
	classList := widget.NewList(
		func() int { return len(classes) },
		func() fyne.CanvasObject {
			sw := canvas.NewRectangle(color.Black)
			sw.SetMinSize(fyne.NewSize(14, 14))
			return container.NewHBox(sw, widget.NewLabel(""))
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			row := o.(*fyne.Container)
			sw := row.Objects[0].(*canvas.Rectangle)
			lbl := row.Objects[1].(*widget.Label)
			if i < 0 || int(i) >= len(classes) {
				lbl.SetText("")
				return
			}
			c := classes[i]
			sw.FillColor = c.FillColor.RGBA()
			sw.Refresh()
			lbl.SetText(fmt.Sprintf("%s (%d)", c.Name, c.Len()))
		},
	)
	classSig := ""
	refreshClasses := func() {
		classes = scene.Classes()
		var b strings.Builder
		for _, c := range classes {
			fmt.Fprintf(&b, "%s%s%d;", c.Name, c.FillColor.Hex(), c.Len())
		}
		fmt.Fprintf(&b, "@%d", scene.ActiveLabelIndex())
		if b.String() == classSig {
			return
		}
		classSig = b.String()
		classList.Refresh()
		if i := scene.ActiveLabelIndex(); i >= 0 && i < len(classes) {
			classList.Select(widget.ListItemID(i))
		}
	}
	classList.OnSelected = func(id widget.ListItemID) {
		if int(id) == scene.ActiveLabelIndex() {
			return
		}
		if err := scene.SetActiveLabel(int(id)); err != nil {
			l.Warn("select label failed", slog.Any("err", err))
		}
	}
	colorBtn := widget.NewButton("Color…", func() {
		picker := dialog.NewColorPicker("Label Color", "Color for the active label", func(c color.Color) {
			cc, ok := colorful.MakeColor(c)
			if !ok {
				return
			}
			parsed, err := annotation.ParseColor(cc.Hex())
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			scene.SetActiveColor(parsed)
		}, w)
		picker.Advanced = true
		picker.Show()
	})
	widthLabel := widget.NewLabel("")
	widthSlider := widget.NewSlider(1, 12)
	widthSlider.Step = 1
	widthSlider.SetValue(scene.Style().LineWidth)
	widthLabel.SetText(fmt.Sprintf("Line width: %.0f", widthSlider.Value))
	widthSlider.OnChanged = func(v float64) {
		widthLabel.SetText(fmt.Sprintf("Line width: %.0f", v))
		scene.SetLineWidth(v)
	}
	right := container.NewBorder(
		container.NewVBox(widget.NewLabel("Labels"), widget.NewSeparator()),
		container.NewVBox(colorBtn, widthLabel, widthSlider),
		nil, nil, classList,
	)

	// Sibling images (left)
	var siblings []string
	siblingList := widget.NewList(
		func() int { return len(siblings) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i >= 0 && int(i) < len(siblings) {
				o.(*widget.Label).SetText(siblings[i])
			} else {
				o.(*widget.Label).SetText("")
			}
		},
	)
	left := container.NewBorder(container.NewVBox(widget.NewLabel("Folder"), widget.NewSeparator()), nil, nil, nil, siblingList)

	var undoItem *fyne.MenuItem
	syncUndo := func() {
		if undoItem == nil || undoItem.Disabled == !sess.CanUndo() {
			return
		}
		undoItem.Disabled = !sess.CanUndo()
		if mm := w.MainMenu(); mm != nil {
			mm.Refresh()
		}
	}
	scene.OnChange(func() {
		status.SetText(sess.Status())
		refreshClasses()
		syncUndo()
	})
	scene.OnProperties(func(req annotation.PropertyRequest) {
		sel := widget.NewSelect(req.Labels, nil)
		sel.SetSelected(req.Label)
		form := dialog.NewForm("Properties", "Apply", "Cancel", []*widget.FormItem{
			widget.NewFormItem("Object", widget.NewLabel(req.Type.String())),
			widget.NewFormItem("Label", sel),
		}, func(ok bool) {
			if !ok || sel.Selected == "" || sel.Selected == req.Label {
				return
			}
			if err := scene.ReassignLabel(req.ShapeID, sel.Selected); err != nil {
				dialog.ShowError(err, w)
				return
			}
			cv.Refresh()
		}, w)
		form.Show()
	})

	var rebuildRecent func()
	afterOpen := func(p string) {
		l.Info("document opened", slog.String("path", p))
		addRecent(prefs, p)
		rebuildRecent()
		w.SetTitle(fmt.Sprintf("imannotate - %s", sess.Name()))
		status.SetText(sess.Status())
		if names, err := sess.ImageList(); err == nil {
			siblings = names
		} else {
			siblings = nil
		}
		siblingList.UnselectAll()
		siblingList.Refresh()
		cv.ImageChanged()
		refreshClasses()
		syncUndo()
	}

	var openWith func(p string, answers presetPrompter)
	openWith = func(p string, answers presetPrompter) {
		*prompter = answers
		err := sess.Open(context.Background(), p)
		prompter.reset()
		var need *storage.NeedImageError
		switch {
		case err == nil:
			afterOpen(p)
		case errors.As(err, &need) && answers.image == "":
			dialog.ShowConfirm("Image not found",
				fmt.Sprintf("The image %q could not be found.\nSelect a replacement?", need.Path),
				func(ok bool) {
					if !ok {
						return
					}
					pickFile(w, imageExtensions, func(img string) {
						answers.image = img
						openWith(p, answers)
					})
				}, w)
		default:
			l.Error("open failed", slog.String("path", p), slog.Any("err", err))
			dialog.ShowError(err, w)
		}
	}
	openPath := func(p string) {
		if strings.EqualFold(filepath.Ext(p), ".json") {
			openWith(p, presetPrompter{})
			return
		}
		dialog.ShowConfirm("Labels", "Load label classes from an annotation file?", func(ok bool) {
			if !ok {
				openWith(p, presetPrompter{})
				return
			}
			pickFile(w, []string{".json"}, func(lp string) {
				openWith(p, presetPrompter{labels: lp})
			})
		}, w)
	}
	siblingList.OnSelected = func(id widget.ListItemID) {
		if id < 0 || int(id) >= len(siblings) {
			return
		}
		cur := sess.SuggestedPath()
		next := filepath.Join(filepath.Dir(cur), siblings[id])
		if next == sess.SuggestedPath() || (sess.Image() != nil && next == sess.Image().Path) {
			return
		}
		openPath(next)
	}

	saveTo := func(p string) {
		if err := sess.Save(context.Background(), p); err != nil {
			if errors.Is(err, session.ErrNoDocument) {
				dialog.ShowInformation("Save", "No image open.", w)
				return
			}
			dialog.ShowError(err, w)
			return
		}
		addRecent(prefs, sess.DocumentPath())
		rebuildRecent()
		status.SetText(sess.Status())
	}
	saveAs := func() {
		if sess.Image() == nil {
			dialog.ShowInformation("Save", "No image open.", w)
			return
		}
		saveFile(w, filepath.Base(sess.SuggestedPath()), ".json", saveTo)
	}

	openImageItem := fyne.NewMenuItem("Open Image…", func() {
		l.Info("menu: open image")
		pickFile(w, imageExtensions, openPath)
	})
	openDocItem := fyne.NewMenuItem("Open Annotations…", func() {
		l.Info("menu: open annotations")
		pickFile(w, []string{".json"}, openPath)
	})
	recentItem := fyne.NewMenuItem("Open Recent", nil)
	rebuildRecent = func() {
		var items []*fyne.MenuItem
		for _, p := range loadRecent(prefs) {
			items = append(items, fyne.NewMenuItem(p, func() { openPath(p) }))
		}
		if len(items) == 0 {
			none := fyne.NewMenuItem("(none)", nil)
			none.Disabled = true
			items = append(items, none)
		}
		recentItem.ChildMenu = fyne.NewMenu("", items...)
		if mm := w.MainMenu(); mm != nil {
			mm.Refresh()
		}
	}
	rebuildRecent()
	saveItem := fyne.NewMenuItem("Save", func() {
		l.Info("menu: save")
		if sess.DocumentPath() == "" {
			saveAs()
			return
		}
		saveTo(sess.DocumentPath())
	})
	saveAsItem := fyne.NewMenuItem("Save As…", saveAs)
	labelsItem := fyne.NewMenuItem("Edit Labels…", func() {
		defs := scene.Export().Classes
		entry := widget.NewMultiLineEntry()
		entry.SetText(FormatLabelLines(defs))
		entry.SetMinRowsVisible(8)
		form := dialog.NewForm("Labels", "Apply", "Cancel", []*widget.FormItem{
			hinted("Classes", entry, "One per line: name #rrggbb"),
		}, func(ok bool) {
			if !ok {
				return
			}
			next, err := ParseLabelLines(entry.Text)
			if err == nil {
				err = scene.ReinitializeClasses(next)
			}
			if err != nil {
				dialog.ShowError(err, w)
			}
		}, w)
		form.Resize(fyne.NewSize(420, 360))
		form.Show()
	})
	prefsItem := fyne.NewMenuItem("Preferences…", func() {
		showPreferencesDialog(w, &cfg, sess, l)
	})
	closeItem := fyne.NewMenuItem("Close Image", func() {
		l.Info("menu: close image")
		sess.Reset()
		siblings = nil
		siblingList.Refresh()
		w.SetTitle("imannotate")
		cv.ImageChanged()
		status.SetText(sess.Status())
	})
	openImageItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierControl}
	saveItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierControl}
	closeItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: fyne.KeyModifierControl}
	fileMenu := fyne.NewMenu("File", openImageItem, openDocItem, recentItem, fyne.NewMenuItemSeparator(),
		saveItem, saveAsItem, fyne.NewMenuItemSeparator(), labelsItem, prefsItem, fyne.NewMenuItemSeparator(), closeItem)

	undoItem = fyne.NewMenuItem("Undo", func() {
		if !cv.HandleKey(viewport.KeyZ, annotation.ModCtrl) {
			status.SetText("Nothing to undo.")
		}
		syncUndo()
	})
	undoItem.Disabled = !sess.CanUndo()
	undoItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierControl}
	copyItem := fyne.NewMenuItem("Copy Selected (K)", func() { cv.HandleKey(viewport.KeyK, 0) })
	deleteItem := fyne.NewMenuItem("Delete Selected (Del)", func() { cv.HandleKey(viewport.KeyDelete, 0) })
	completeItem := fyne.NewMenuItem("Complete Annotation (C)", func() { cv.HandleKey(viewport.KeyC, 0) })
	editMenu := fyne.NewMenu("Edit", undoItem, fyne.NewMenuItemSeparator(), copyItem, deleteItem, completeItem)

	modeMenu := fyne.NewMenu("Mode",
		fyne.NewMenuItem("Navigation (N)", func() { cv.HandleKey(viewport.KeyN, 0) }),
		fyne.NewMenuItem("Drawing (E)", func() { cv.HandleKey(viewport.KeyE, 0) }),
		fyne.NewMenuItem("Moving (M)", func() { cv.HandleKey(viewport.KeyM, 0) }),
	)
	zoom := func(steps float64) {
		cv.View().ZoomAt(cv.View().ViewSize().Scale(0.5), steps)
		cv.Refresh()
	}
	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", func() { zoom(1) }),
		fyne.NewMenuItem("Zoom Out", func() { zoom(-1) }),
		fyne.NewMenuItem("Fit to Window", cv.FitView),
	)

	exportTo := func(title, ext string, run func(string) error) func() {
		return func() {
			if sess.Image() == nil {
				dialog.ShowInformation(title, "No image open.", w)
				return
			}
			def := strings.TrimSuffix(filepath.Base(sess.SuggestedPath()), ".json") + ext
			saveFile(w, def, filepath.Ext(ext), func(p string) {
				if err := run(p); err != nil {
					l.Error("export failed", slog.String("kind", title), slog.Any("err", err))
					dialog.ShowError(err, w)
					return
				}
				dialog.ShowInformation(title, "Exported to "+p, w)
			})
		}
	}
	cropItem := fyne.NewMenuItem("Crop Patches…", func() {
		if sess.Image() == nil {
			dialog.ShowInformation("Crop Patches", "No image open.", w)
			return
		}
		fd := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			if uri == nil {
				return
			}
			prefix := filepath.Join(uri.Path(), sess.Name())
			files, err := sess.CropPatches(prefix)
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			dialog.ShowInformation("Crop Patches", fmt.Sprintf("Saved %d patches to %s", len(files), uri.Path()), w)
		}, w)
		fd.Show()
	})
	exportMenu := fyne.NewMenu("Export",
		fyne.NewMenuItem("Overlay PNG…", exportTo("Export Overlay", "_overlay.png", sess.ExportOverlay)),
		fyne.NewMenuItem("Mask PNG…", exportTo("Export Mask", "_mask.png", func(p string) error {
			n, err := sess.ExportMask(p)
			if err == nil {
				l.Info("mask exported", slog.String("path", p), slog.Int("pixels", n))
			}
			return err
		})),
		fyne.NewMenuItem("SVG…", exportTo("Export SVG", ".svg", sess.ExportSVG)),
		fyne.NewMenuItem("PDF…", exportTo("Export PDF", ".pdf", sess.ExportPDF)),
		fyne.NewMenuItemSeparator(),
		cropItem,
	)

	aboutItem := fyne.NewMenuItem("About imannotate", func() {
		l.Info("menu: about")
		exe, _ := os.Executable()
		cfgPath, _ := config.ConfigPath()
		info := fmt.Sprintf("imannotate\nVersion: %s\nOS: %s\nArch: %s\nGo: %s\nExecutable: %s\nConfig: %s",
			version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version(), exe, cfgPath)
		dialog.ShowInformation("About", info, w)
	})
	keysItem := fyne.NewMenuItem("Shortcuts", func() {
		dialog.ShowInformation("Shortcuts", strings.Join([]string{
			"E  drawing mode",
			"M  moving mode",
			"N  navigation mode",
			"C  complete line or point",
			"K  copy selected",
			"Del  delete selected",
			"Ctrl+Z  undo",
			"Shift+drag  move a whole line",
			"Right click  properties",
			"Wheel  zoom, middle drag  pan",
		}, "\n"), w)
	})
	helpMenu := fyne.NewMenu("Help", keysItem, aboutItem)

	w.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, modeMenu, viewMenu, exportMenu, helpMenu))

	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		cv.HandleKey(viewport.Key(ev.Name), 0)
	})

	inner := container.NewHSplit(cv, right)
	inner.SetOffset(0.8)
	split := container.NewHSplit(left, inner)
	split.SetOffset(0.15)
	w.SetContent(container.NewBorder(nil, status, nil, nil, split))

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		w.Close()
	})

	refreshClasses()
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		openWith(path, presetPrompter{})
	}

	w.ShowAndRun()
	return nil
}

func hinted(text string, obj fyne.CanvasObject, hint string) *widget.FormItem {
	it := widget.NewFormItem(text, obj)
	it.HintText = hint
	return it
}

// pickFile shows an open dialog restricted to exts and reports the chosen path.
func pickFile(w fyne.Window, exts []string, done func(string)) {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if rc == nil {
			return
		}
		p := rc.URI().Path()
		_ = rc.Close()
		done(p)
	}, w)
	fd.SetFilter(fstorage.NewExtensionFileFilter(exts))
	fd.Show()
}

// saveFile shows a save dialog with a suggested name.
func saveFile(w fyne.Window, name, ext string, done func(string)) {
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if uc == nil {
			return
		}
		p := uc.URI().Path()
		_ = uc.Close()
		done(p)
	}, w)
	fd.SetFileName(name)
	if ext != "" {
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{ext}))
	}
	fd.Show()
}

// showPreferencesDialog edits the annotation settings and persists them to
// the config file. Epsilon and preview color apply immediately.
func showPreferencesDialog(w fyne.Window, cfg *config.AppConfig, sess *session.Session, l *slog.Logger) {
	epsEntry := widget.NewEntry()
	epsEntry.SetText(strconv.FormatFloat(cfg.Annotation.Epsilon, 'f', -1, 64))
	cropEntry := widget.NewEntry()
	cropEntry.SetText(strconv.Itoa(cfg.Annotation.CropSize))
	previewEntry := widget.NewEntry()
	previewEntry.SetText(cfg.Annotation.PreviewColor)
	embedCheck := widget.NewCheck("Embed image in saved documents", nil)
	embedCheck.SetChecked(cfg.Annotation.EmbedImage)
	catalogCheck := widget.NewCheck("Record saved documents in the folder catalog", nil)
	catalogCheck.SetChecked(cfg.General.UpdateCatalog)

	epsHint, epsEnv := prefHint("annotation.epsilon", "Squared pixels")
	cropHint, cropEnv := prefHint("annotation.crop_size", "")
	embedHint, embedEnv := prefHint("annotation.embed_image", "")
	if epsEnv {
		epsEntry.Disable()
	}
	if cropEnv {
		cropEntry.Disable()
	}
	if embedEnv {
		embedCheck.Disable()
	}

	form := dialog.NewForm("Preferences", "Save", "Cancel", []*widget.FormItem{
		hinted("Snap distance", epsEntry, epsHint),
		hinted("Patch size", cropEntry, cropHint),
		hinted("Preview color", previewEntry, "#rrggbb"),
		hinted("", embedCheck, embedHint),
		widget.NewFormItem("", catalogCheck),
	}, func(ok bool) {
		if !ok {
			return
		}
		eps, err := strconv.ParseFloat(strings.TrimSpace(epsEntry.Text), 64)
		if err != nil || eps <= 0 {
			dialog.ShowError(fmt.Errorf("snap distance must be a positive number"), w)
			return
		}
		crop, err := strconv.Atoi(strings.TrimSpace(cropEntry.Text))
		if err != nil || crop <= 0 {
			dialog.ShowError(fmt.Errorf("patch size must be a positive integer"), w)
			return
		}
		preview, err := annotation.ParseColor(previewEntry.Text)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		cfg.Annotation.Epsilon = eps
		cfg.Annotation.CropSize = crop
		cfg.Annotation.PreviewColor = preview.Hex()
		cfg.Annotation.EmbedImage = embedCheck.Checked
		cfg.General.UpdateCatalog = catalogCheck.Checked
		sess.Scene().SetEpsilon(eps)
		sess.Scene().SetPreviewColor(preview)
		sess.Configure(session.OptionsFromConfig(*cfg))
		if err := config.Save(*cfg); err != nil {
			l.Error("save config failed", slog.Any("err", err))
			dialog.ShowError(err, w)
		}
	}, w)
	form.Resize(fyne.NewSize(460, 320))
	form.Show()
}

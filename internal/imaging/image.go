/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imaging decodes annotated images, lists the images of a folder and
// cuts fixed-size patches around annotations.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// ErrUnsupported is returned for data no registered decoder understands.
var ErrUnsupported = errors.New("unsupported image format")

// Image is a decoded image together with its original bytes.
type Image struct {
	Path   string
	Data   []byte
	Img    image.Image
	Format string
}

func (i *Image) Width() int  { return i.Img.Bounds().Dx() }
func (i *Image) Height() int { return i.Img.Bounds().Dy() }

// Decode turns raw bytes into an Image. Pixels keep their stored layout; EXIF
// orientation is ignored so annotation coordinates match the raw raster.
func Decode(data []byte) (*Image, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return &Image{Data: data, Img: img, Format: format}, nil
}

// Open reads and decodes the image at path.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	im, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	im.Path = path
	return im, nil
}

// listed are the extensions shown in the folder image list; annotation
// documents are listed next to the images they belong to.
var listed = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".json": true,
}

// IsImagePath reports whether p has an image extension (documents excluded).
func IsImagePath(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return listed[ext] && ext != ".json"
}

// ListImages returns the names of images and annotation documents in dir,
// sorted case-insensitively.
func ListImages(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if listed[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, e.Name())
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}

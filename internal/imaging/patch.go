/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"github.com/disintegration/imaging"

	"imannotate/internal/geom"
)

// DefaultPatchSize is the edge length of cropped patches in pixels.
const DefaultPatchSize = 400

// CropPatch cuts a size×size patch centered on c. Areas outside the image
// are filled with black so every patch has the same dimensions.
func CropPatch(img image.Image, c geom.Point, size int) *image.NRGBA {
	half := size / 2
	x0 := int(math.Round(c.X)) - half
	y0 := int(math.Round(c.Y)) - half
	want := image.Rect(x0, y0, x0+size, y0+size)
	patch := imaging.New(size, size, color.NRGBA{A: 255})
	visible := want.Intersect(img.Bounds())
	if visible.Empty() {
		return patch
	}
	part := imaging.Crop(img, visible)
	return imaging.Paste(patch, part, visible.Min.Sub(want.Min))
}

// SavePatches crops one patch per center and writes them as
// <prefix>_<n>.tif (1-based). It returns the written paths.
func SavePatches(img image.Image, centers []geom.Point, size int, prefix string) ([]string, error) {
	if size <= 0 {
		size = DefaultPatchSize
	}
	out := make([]string, 0, len(centers))
	for i, c := range centers {
		p := fmt.Sprintf("%s_%d.tif", prefix, i+1)
		if err := imaging.Save(CropPatch(img, c, size), p); err != nil {
			return out, fmt.Errorf("save patch %s: %w", filepath.Base(p), err)
		}
		out = append(out, p)
	}
	return out, nil
}

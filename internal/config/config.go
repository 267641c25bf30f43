/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"imannotate/internal/annotation"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type LabelConfig struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type AnnotationConfig struct {
	Epsilon       float64       `yaml:"epsilon"`
	PointSize     float64       `yaml:"point_size"`
	HighlightSize float64       `yaml:"highlight_size"`
	LineWidth     float64       `yaml:"line_width"`
	PreviewColor  string        `yaml:"preview_color"`
	LabelColor    string        `yaml:"label_color"`
	EmbedImage    bool          `yaml:"embed_image"`
	CropSize      int           `yaml:"crop_size"`
	Labels        []LabelConfig `yaml:"labels,omitempty"`
}

type GeneralConfig struct {
	Theme         string `yaml:"theme"` // "system" | "light" | "dark"
	UpdateCatalog bool   `yaml:"update_catalog"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Annotation    AnnotationConfig `yaml:"annotation"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	st := annotation.DefaultStyle()
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system", UpdateCatalog: true},
		Annotation: AnnotationConfig{
			Epsilon:       annotation.DefaultEpsilon,
			PointSize:     st.PointSize,
			HighlightSize: st.HighlightSize,
			LineWidth:     st.LineWidth,
			PreviewColor:  annotation.DefaultPreviewColor.Hex(),
			LabelColor:    annotation.DefaultLabelColor.Hex(),
			EmbedImage:    false,
			CropSize:      400,
		},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile = "IMA_CONFIG"
	EnvEpsilon    = "IMA_EPSILON"
	EnvEmbedImage = "IMA_EMBED_IMAGE"
	EnvCropSize   = "IMA_CROP_SIZE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "IMA_LOG_LEVEL"
	EnvLogFormat = "IMA_LOG_FORMAT"
	EnvLogSource = "IMA_LOG_SOURCE"
	EnvLogFile   = "IMA_LOG_FILE"
)

// ConfigPath returns the per-user config file path. IMA_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "imannotate")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "imannotate")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "imannotate")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit file. A missing file yields defaults;
// a file that does not parse is reported.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg to an explicit path.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.UpdateCatalog = src.General.UpdateCatalog
	// annotation
	a, s := &dst.Annotation, &src.Annotation
	if s.Epsilon > 0 {
		a.Epsilon = s.Epsilon
	}
	if s.PointSize > 0 {
		a.PointSize = s.PointSize
	}
	if s.HighlightSize > 0 {
		a.HighlightSize = s.HighlightSize
	}
	if s.LineWidth > 0 {
		a.LineWidth = s.LineWidth
	}
	if strings.TrimSpace(s.PreviewColor) != "" {
		a.PreviewColor = strings.TrimSpace(s.PreviewColor)
	}
	if strings.TrimSpace(s.LabelColor) != "" {
		a.LabelColor = strings.TrimSpace(s.LabelColor)
	}
	a.EmbedImage = s.EmbedImage
	if s.CropSize > 0 {
		a.CropSize = s.CropSize
	}
	if len(s.Labels) > 0 {
		a.Labels = append([]LabelConfig(nil), s.Labels...)
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvEpsilon)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Annotation.Epsilon = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvEmbedImage)); v != "" {
		cfg.Annotation.EmbedImage = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCropSize)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Annotation.CropSize = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var env string
	switch key {
	case "annotation.epsilon":
		env = EnvEpsilon
	case "annotation.embed_image":
		env = EnvEmbedImage
	case "annotation.crop_size":
		env = EnvCropSize
	case "logging.level":
		env = EnvLogLevel
	case "logging.format":
		env = EnvLogFormat
	case "logging.source":
		env = EnvLogSource
	case "logging.file":
		env = EnvLogFile
	default:
		return "", false
	}
	if os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Style builds the shape style from the configured sizes.
func (a AnnotationConfig) Style() annotation.Style {
	st := annotation.DefaultStyle()
	if a.PointSize > 0 {
		st.PointSize = a.PointSize
	}
	if a.HighlightSize > 0 {
		st.HighlightSize = a.HighlightSize
	}
	if a.LineWidth > 0 {
		st.LineWidth = a.LineWidth
	}
	return st
}

// Preview returns the rubber-band color.
func (a AnnotationConfig) Preview() annotation.Color {
	if c, err := annotation.ParseColor(a.PreviewColor); err == nil {
		return c
	}
	return annotation.DefaultPreviewColor
}

// LabelDefs returns the configured starting classes, or nil when none are
// configured or any entry is unusable.
func (a AnnotationConfig) LabelDefs() []annotation.LabelDef {
	if len(a.Labels) == 0 {
		return nil
	}
	fallback := annotation.DefaultLabelColor
	if c, err := annotation.ParseColor(a.LabelColor); err == nil {
		fallback = c
	}
	defs := make([]annotation.LabelDef, 0, len(a.Labels))
	for _, l := range a.Labels {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return nil
		}
		c := fallback
		if l.Color != "" {
			pc, err := annotation.ParseColor(l.Color)
			if err != nil {
				return nil
			}
			c = pc
		}
		defs = append(defs, annotation.LabelDef{Name: name, Color: c})
	}
	return defs
}

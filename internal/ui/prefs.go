/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import "imannotate/internal/config"

// prefHint returns the form hint for the setting key and whether an
// environment variable currently overrides it. Overridden settings name the
// variable so users know why an edit has no effect.
func prefHint(key, hint string) (string, bool) {
	env, ok := config.EnvOverrideFor(key)
	if !ok {
		return hint, false
	}
	if hint == "" {
		return "Set by " + env, true
	}
	return hint + ", set by " + env, true
}

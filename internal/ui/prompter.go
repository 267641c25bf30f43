/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

// presetPrompter answers session prompts with choices collected from dialogs
// before the open call. Empty answers decline.
type presetPrompter struct {
	image  string
	labels string
}

func (p *presetPrompter) SubstituteImage(string) (string, bool) { return p.image, p.image != "" }
func (p *presetPrompter) ChooseLabelFile(string) (string, bool) { return p.labels, p.labels != "" }

func (p *presetPrompter) reset() { p.image, p.labels = "", "" }

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements annotation document persistence and indexing.
// It reads and writes the JSON annotation document and its CSV companion with
// transactional writes and timestamped backups, resolves the referenced image,
// and maintains a per-directory SQLite catalog at <dir>/.imannotate/catalog.sqlite.
// The catalog is derived from the documents and can be rebuilt at any time.
package storage

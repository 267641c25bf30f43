/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchQuery filters the catalog. Labels and Types restrict to documents
// holding at least one matching object; Path matches a substring of the
// document file name. Limit/Offset implement pagination; reasonable defaults
// applied if zero.
type SearchQuery struct {
	Labels []string
	Types  []string
	Path   string
	Limit  int
	Offset int
}

// SearchResult is one matching document with the number of matching objects.
type SearchResult struct {
	Path    string
	Matches int
}

// Search queries the catalog of dir.
func Search(ctx context.Context, dir string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("directory is required")
	}
	db, err := InitOrOpenIndex(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	sb.WriteString("SELECT d.path, COALESCE(SUM(l.count),0)\n")
	sb.WriteString("FROM documents d LEFT JOIN labels l ON l.path = d.path\n")
	sb.WriteString("WHERE 1=1\n")
	if len(q.Labels) > 0 {
		sb.WriteString(" AND l.label IN (" + placeholders(len(q.Labels)) + ")\n")
		for _, s := range q.Labels {
			args = append(args, s)
		}
	}
	if len(q.Types) > 0 {
		sb.WriteString(" AND l.type IN (" + placeholders(len(q.Types)) + ")\n")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	if s := strings.TrimSpace(q.Path); s != "" {
		sb.WriteString(" AND lower(d.path) LIKE ?\n")
		args = append(args, likeContains(strings.ToLower(s)))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("GROUP BY d.path\n")
	if len(q.Labels) > 0 || len(q.Types) > 0 {
		sb.WriteString("HAVING SUM(l.count) > 0\n")
	}
	sb.WriteString("ORDER BY d.path\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Matches); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func likeContains(s string) string { return "%" + s + "%" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

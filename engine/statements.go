package engine

import "regexp"

// The driver issues exactly six statement shapes verbatim (spec.md §6);
// these patterns recognize them by shape rather than parsing a grammar,
// since a real Cypher front end is out of scope for this module.
var (
	createTableRe     = regexp.MustCompile(`(?is)^CREATE\s+NODE\s+TABLE\s+(\w+)\s*\(([^)]*)\)\s*;?\s*$`)
	copyFromRe        = regexp.MustCompile(`(?is)^COPY\s+(\w+)\s+FROM\s+'([^']+)'\s*;?\s*$`)
	checkpointRe      = regexp.MustCompile(`(?is)^CHECKPOINT\s*;?\s*$`)
	dropTableRe       = regexp.MustCompile(`(?is)^DROP\s+TABLE\s+(\w+)\s*;?\s*$`)
	alterDropColumnRe = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(\w+)\s+DROP\s+COLUMN\s+(\w+)\s*;?\s*$`)
	deleteSliceRe     = regexp.MustCompile(`(?is)^MATCH\s*\(n:(\w+)\)\s*WHERE\s+n\.id\s*>\s*(\d+)\s+AND\s+n\.id\s*<\s*(\d+)\)?\s*DELETE\s+n.*$`)
)

// Package fingerprint derives stable structural hashes for query shapes.
// The digest depends on the namespace, the field names, the operator
// sequence, and bounded structural depth of a query document, never on the
// literal values it matches against.
package fingerprint

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	commandTokenRE = regexp.MustCompile(`(?i)command\s+(\w+)`)
	whitespaceRE   = regexp.MustCompile(`\s+`)
)

// Generate returns the fingerprint of queryText within database.collection.
// It never fails: unparseable or unusual input degrades to a deterministic
// free-text token sequence before hashing.
func Generate(database, collection, queryText string) string {
	if database == "" {
		database = "unknown"
	}
	if collection == "" {
		collection = "unknown"
	}

	parts := []string{database + "." + collection}
	trimmed := strings.TrimSpace(queryText)

	switch {
	case trimmed == "":
		parts = append(parts, "query:unknown")
	case strings.HasPrefix(trimmed, "{"):
		if doc, ok := ParseDocument(trimmed); ok {
			parts = append(parts, documentTokens(doc)...)
		} else {
			parts = append(parts, normalizeTextQuery(trimmed))
		}
	default:
		parts = append(parts, normalizeTextQuery(trimmed))
	}

	nonEmpty := parts[:0]
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return Hash(strings.Join(nonEmpty, "|"))
}

// shapeOperations are checked in order to label the document's verb.
var shapeOperations = []string{"find", "aggregate", "update", "delete", "insert", "command"}

func documentTokens(doc bson.D) []string {
	var parts []string

	opFound := false
	for _, op := range shapeOperations {
		if _, ok := Lookup(doc, op); ok {
			parts = append(parts, "op:"+op)
			opFound = true
			break
		}
	}
	if !opFound {
		parts = append(parts, "op:filter")
		if tok := fieldToken(FieldNames(doc)); tok != "" {
			parts = append(parts, "filter:"+tok)
		}
	}

	if filter, ok := Lookup(doc, "filter"); ok {
		if tok := fieldToken(FieldNames(filter)); tok != "" {
			parts = append(parts, "filter:"+tok)
		}
	}

	if raw, ok := Lookup(doc, "pipeline"); ok {
		if pipeline, ok := AsArray(raw); ok {
			parts = append(parts, pipelineTokens(pipeline)...)
		}
	}

	for _, spec := range []struct{ key, token string }{
		{"updates", "updates_filter"},
		{"deletes", "deletes_filter"},
	} {
		raw, ok := Lookup(doc, spec.key)
		if !ok {
			continue
		}
		arr, ok := AsArray(raw)
		if !ok {
			continue
		}
		names := make(map[string]struct{})
		for _, item := range arr {
			itemDoc, ok := AsDocument(item)
			if !ok {
				continue
			}
			if q, ok := Lookup(itemDoc, "q"); ok {
				for name := range FieldNames(q) {
					names[name] = struct{}{}
				}
			}
		}
		if tok := fieldToken(names); tok != "" {
			parts = append(parts, spec.token+":"+tok)
		}
	}

	if raw, ok := Lookup(doc, "sort"); ok {
		if sortDoc, ok := AsDocument(raw); ok {
			if tok := sortToken(sortDoc); tok != "" {
				parts = append(parts, "sort:"+tok)
			}
		}
	}

	return parts
}

func pipelineTokens(pipeline bson.A) []string {
	var (
		ops         []string
		sortPairs   []string
		matchFields = make(map[string]struct{})
	)
	for _, raw := range pipeline {
		stage, ok := AsDocument(raw)
		if !ok {
			continue
		}
		for _, e := range stage {
			if strings.HasPrefix(e.Key, "$") {
				ops = append(ops, e.Key)
			}
		}
		if v, ok := Lookup(stage, "$sort"); ok {
			if sortDoc, ok := AsDocument(v); ok {
				for _, e := range sortDoc {
					sortPairs = append(sortPairs, e.Key+":"+strconv.Itoa(DirectionValue(e.Value)))
				}
			}
		}
		if v, ok := Lookup(stage, "$match"); ok {
			if matchDoc, ok := AsDocument(v); ok {
				for name := range FieldNames(matchDoc) {
					matchFields[name] = struct{}{}
				}
				// Hash of the stage's literal content: two $match stages on
				// the same fields but different constants stay distinct.
				matchFields["match_values_"+ShortHash(Canonical(matchDoc))] = struct{}{}
			}
		}
	}

	var parts []string
	if len(ops) > 0 {
		parts = append(parts, "pipeline:"+strings.Join(ops, ","))
	}
	if len(sortPairs) > 0 {
		parts = append(parts, "pipeline_sort:"+strings.Join(sortPairs, ","))
	}
	if len(matchFields) > 0 {
		parts = append(parts, "pipeline_match:"+fieldToken(matchFields))
	}
	return parts
}

func sortToken(sortDoc bson.D) string {
	pairs := make([]string, 0, len(sortDoc))
	for _, e := range sortDoc {
		pairs = append(pairs, e.Key+":"+strconv.Itoa(DirectionValue(e.Value)))
	}
	return strings.Join(pairs, ",")
}

func fieldToken(names map[string]struct{}) string {
	if len(names) == 0 {
		return ""
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func normalizeTextQuery(query string) string {
	lowered := strings.ToLower(query)
	if strings.Contains(lowered, "command") {
		if m := commandTokenRE.FindStringSubmatch(query); m != nil {
			return "command:" + m[1]
		}
	}
	if strings.Contains(lowered, "slow query") {
		return "slow_query"
	}
	head := query
	if len(head) > 50 {
		head = head[:50]
	}
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(head, " "))
}

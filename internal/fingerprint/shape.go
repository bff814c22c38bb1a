package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// maxFieldDepth bounds structural extraction so deeply nested predicates
// cannot explode the token set.
const maxFieldDepth = 2

// ParseDocument parses extended-JSON query text into an ordered document.
// Order preservation matters: sort specifications are fingerprinted in
// insertion order.
func ParseDocument(text string) (bson.D, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(trimmed), false, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// AsDocument reports v as an ordered document when it is document-shaped.
// Unordered map forms are stabilised by sorting their keys.
func AsDocument(v any) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.M:
		return sortedDoc(map[string]any(d)), true
	case map[string]any:
		return sortedDoc(d), true
	}
	return nil, false
}

func sortedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(m))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

// AsArray reports v as an array when it is array-shaped.
func AsArray(v any) (bson.A, bool) {
	switch a := v.(type) {
	case bson.A:
		return a, true
	case []any:
		return bson.A(a), true
	}
	return nil, false
}

// Lookup returns the first value stored under key.
func Lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// FieldNames extracts non-operator field names from a filter document down to
// the bounded depth. A field whose value carries a regex predicate also
// yields a "<field>_regex_<hash>" token derived from the pattern text, so
// different patterns fingerprint differently while literal match values do not.
func FieldNames(v any) map[string]struct{} {
	names := make(map[string]struct{})
	collectFieldNames(v, 0, names)
	return names
}

func collectFieldNames(v any, depth int, names map[string]struct{}) {
	if depth >= maxFieldDepth {
		return
	}
	doc, ok := AsDocument(v)
	if !ok {
		return
	}
	for _, e := range doc {
		if !strings.HasPrefix(e.Key, "$") {
			names[e.Key] = struct{}{}
			if pattern, ok := regexPattern(e.Value); ok {
				names[e.Key+"_regex_"+ShortHash(pattern)] = struct{}{}
			}
		}
		if _, isDoc := AsDocument(e.Value); isDoc {
			collectFieldNames(e.Value, depth+1, names)
		} else if arr, isArr := AsArray(e.Value); isArr {
			for _, item := range arr {
				if _, isDoc := AsDocument(item); isDoc {
					collectFieldNames(item, depth+1, names)
				}
			}
		}
	}
}

// regexPattern extracts a regex pattern from a predicate value, accepting
// both the query form ({$regex: ...}) and decoded extended-JSON regexes.
func regexPattern(v any) (string, bool) {
	if re, ok := v.(bson.Regex); ok {
		return re.Pattern, true
	}
	doc, ok := AsDocument(v)
	if !ok {
		return "", false
	}
	raw, ok := Lookup(doc, "$regex")
	if !ok {
		return "", false
	}
	switch p := raw.(type) {
	case string:
		return p, true
	case bson.Regex:
		return p.Pattern, true
	}
	if wrapper, ok := AsDocument(raw); ok {
		if inner, ok := Lookup(wrapper, "$regularExpression"); ok {
			if innerDoc, ok := AsDocument(inner); ok {
				if pattern, ok := Lookup(innerDoc, "pattern"); ok {
					return fmt.Sprintf("%v", pattern), true
				}
			}
		}
	}
	return fmt.Sprintf("%v", raw), true
}

// Canonical renders a value deterministically with document keys sorted.
// Used for hashing literal stage content, not for round-tripping.
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bson.D:
		pairs := make([]string, 0, len(t))
		for _, e := range sortedByKey(t) {
			pairs = append(pairs, strconv.Quote(e.Key)+":"+Canonical(e.Value))
		}
		return "{" + strings.Join(pairs, ",") + "}"
	case bson.M:
		return Canonical(sortedDoc(map[string]any(t)))
	case map[string]any:
		return Canonical(sortedDoc(t))
	case bson.A:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, Canonical(item))
		}
		return "[" + strings.Join(items, ",") + "]"
	case []any:
		return Canonical(bson.A(t))
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func sortedByKey(doc bson.D) bson.D {
	out := append(bson.D(nil), doc...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DirectionValue coerces a sort direction to an int, defaulting to 1.
func DirectionValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return 1
}

// Hash returns the hex MD5 digest of s.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 8 hex characters of the MD5 digest of s.
func ShortHash(s string) string {
	return Hash(s)[:8]
}

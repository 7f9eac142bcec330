// Package thought turns an assistant's raw reasoning trace into display steps.
package thought

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Delimiter separates steps in a reasoning trace. It is matched literally.
const Delimiter = "\nPREFIX\n"

// Kind tells how a Segment renders
type Kind int

const (
	KindText Kind = iota
	KindStructured
)

func (k Kind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "text"
}

// Entry is one key of a structured step, in the order the object declared it
type Entry struct {
	Key   string
	Value string
}

// Segment is one display step. Text is set for KindText, Entries for KindStructured.
type Segment struct {
	Kind    Kind
	Text    string
	Entries []Entry
}

// TextSegment builds a KindText segment
func TextSegment(s string) Segment {
	return Segment{Kind: KindText, Text: s}
}

// Split cuts raw on Delimiter and parses every chunk. A chunk holding a JSON array
// becomes one text step per item, a JSON object becomes one structured step, and
// anything else (including invalid JSON) is kept as text. Blank chunks produce nothing.
func Split(raw string) []Segment {
	var out []Segment
	for _, chunk := range strings.Split(raw, Delimiter) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		out = append(out, parseChunk(chunk)...)
	}
	return out
}

func parseChunk(chunk string) []Segment {
	if !gjson.Valid(chunk) {
		return []Segment{TextSegment(chunk)}
	}

	parsed := gjson.Parse(chunk)
	switch {
	case parsed.IsArray():
		items := parsed.Array()
		segs := make([]Segment, 0, len(items))
		for _, item := range items {
			segs = append(segs, TextSegment(item.String()))
		}
		return segs
	case parsed.IsObject():
		return []Segment{{Kind: KindStructured, Entries: objectEntries(parsed)}}
	default:
		return []Segment{TextSegment(chunk)}
	}
}

func objectEntries(obj gjson.Result) []Entry {
	var entries []Entry
	seen := map[string]int{}
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		v := renderValue(value)
		// a repeated key keeps its first position and its last value
		if i, ok := seen[k]; ok {
			entries[i].Value = v
			return true
		}
		seen[k] = len(entries)
		entries = append(entries, Entry{Key: k, Value: v})
		return true
	})
	return entries
}

var dumpOptions = &pretty.Options{Width: 0, Prefix: "", Indent: "  ", SortKeys: false}

var dumpStripper = strings.NewReplacer("{", "", "}", "", `"`, "")

func renderValue(v gjson.Result) string {
	switch {
	case v.IsObject():
		dump := string(pretty.PrettyOptions([]byte(v.Raw), dumpOptions))
		return strings.TrimSpace(dumpStripper.Replace(dump))
	case v.IsArray():
		items := v.Array()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = renderValue(item)
		}
		return strings.Join(parts, ",")
	case v.Type == gjson.Null:
		return "null"
	default:
		return v.String()
	}
}

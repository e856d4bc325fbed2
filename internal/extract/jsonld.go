package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ldFields is what the JSON-LD layer can contribute. Each field is filled by
// the first Product/Offer node that carries it; later candidates never
// replace an earlier match.
type ldFields struct {
	name     string
	price    string
	currency string
	image    string
}

func (f ldFields) complete() bool {
	return f.name != "" && f.price != "" && f.currency != "" && f.image != ""
}

// scanJSONLD decodes each structured-data block and walks it for Product or
// Offer objects. Malformed blocks are skipped silently rather than aborting
// the extraction.
func scanJSONLD(blocks []string) ldFields {
	var out ldFields
	for _, block := range blocks {
		var root any
		if err := json.Unmarshal([]byte(block), &root); err != nil {
			continue
		}
		walkLD(root, &out)
		if out.complete() {
			break
		}
	}
	return out
}

// walkLD recursively searches a decoded JSON value. The shape is untrusted,
// so every step switches on the concrete type: objects are inspected for a
// Product/Offer @type, arrays (including @graph) are walked element-wise.
func walkLD(v any, out *ldFields) {
	switch node := v.(type) {
	case []any:
		for _, el := range node {
			if out.complete() {
				return
			}
			walkLD(el, out)
		}
	case map[string]any:
		if isType(node, "Product") || isType(node, "Offer") {
			readProduct(node, out)
		}
		for _, key := range []string{"@graph", "mainEntity", "itemListElement", "item"} {
			if child, ok := node[key]; ok && !out.complete() {
				walkLD(child, out)
			}
		}
	}
}

func isType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, el := range t {
			if s, ok := el.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func readProduct(node map[string]any, out *ldFields) {
	if out.name == "" {
		out.name = asString(node["name"])
	}
	if out.image == "" {
		out.image = firstString(node["image"])
	}
	if out.price == "" {
		out.price = asString(node["price"])
	}
	if out.currency == "" {
		out.currency = asString(node["priceCurrency"])
	}

	// offers may be a single object or a list; take the first element.
	if out.price != "" {
		return
	}
	offer := firstObject(node["offers"])
	if offer == nil {
		return
	}
	out.price = asString(offer["price"])
	if out.currency == "" {
		out.currency = asString(offer["priceCurrency"])
	}
	if out.image == "" {
		out.image = firstString(offer["image"])
	}
}

// asString renders a scalar JSON value as a string. JSON-LD prices appear
// both quoted and bare.
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

// firstString handles string-or-list-of-strings values, taking the first.
func firstString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case []any:
		for _, el := range s {
			if str, ok := el.(string); ok && str != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

// firstObject handles object-or-list-of-objects values, taking the first.
func firstObject(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case []any:
		for _, el := range o {
			if m, ok := el.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

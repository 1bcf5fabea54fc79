package logging

import "slices"

// redactedKeys may carry request payloads, which can hold message text or
// identity tokens.
var redactedKeys = map[ExtraKey]bool{
	RequestBody:  true,
	ResponseBody: true,
}

// fieldPairs flattens extra into key/value pairs sorted by key, so every line
// for the same event lists its fields in the same order.
func fieldPairs(extra map[ExtraKey]any) []any {
	keys := make([]ExtraKey, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		v := extra[k]
		switch {
		case redactedKeys[k]:
			v = "[redacted]"
		case v == nil:
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		pairs = append(pairs, string(k), v)
	}
	return pairs
}

package process

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Checksum fingerprints a run: the process identity plus its input values.
// Two runs of the same process version with equal inputs share a checksum,
// which is what cached persistence keys reuse on.
func Checksum(input map[string]any, slug, version string) string {
	hash := sha1.New()
	hash.Write(canonicalJSON(input))
	hash.Write([]byte(slug))
	hash.Write([]byte(version))
	return hex.EncodeToString(hash.Sum(nil))
}

// canonicalJSON renders a value with sorted map keys so the checksum does
// not depend on map iteration order.
func canonicalJSON(value any) []byte {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, key := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, []byte(fmt.Sprintf("%q:", key))...)
			out = append(out, canonicalJSON(v[key])...)
		}
		return append(out, '}')
	case []any:
		out := []byte{'['}
		for i, item := range v {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, canonicalJSON(item)...)
		}
		return append(out, ']')
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return []byte(fmt.Sprintf("%q", fmt.Sprint(v)))
		}
		return encoded
	}
}

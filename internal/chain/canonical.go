package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// HashPrefix marks all chain hashes on the wire.
const HashPrefix = "sha256:"

// GenesisHash is the prev hash for the first record in a new chain.
const GenesisHash = HashPrefix + "0000000000000000000000000000000000000000000000000000000000000000"

// HashBytes returns "sha256:<hex>" of the given bytes.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(h[:])
}

// CanonicalJSON produces a deterministic serialization: object keys
// sorted lexicographically at every nesting level, so the same payload
// hashes identically regardless of insertion order. Payloads round-trip
// through generic JSON values first, which also normalizes struct input.
func CanonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize payload: %w", err)
	}
	out, err := json.Marshal(sortKeys(generic))
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return out, nil
}

// sortKeys recursively rebuilds maps so every nesting level is
// key-ordered before the final marshal.
func sortKeys(value any) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(v))
		for _, k := range keys {
			out[k] = sortKeys(v[k])
		}
		return out
	case []any:
		for i := range v {
			v[i] = sortKeys(v[i])
		}
		return v
	default:
		return value
	}
}

// chainHash links a record to its predecessor. The timestamp is part
// of the preimage so a record cannot be silently re-dated.
func chainHash(prevChainHash, contentHash, ts string) string {
	return HashBytes([]byte(prevChainHash + contentHash + ts))
}

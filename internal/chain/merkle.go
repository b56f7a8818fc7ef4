package chain

// MerkleRoot folds a batch of content hashes into a single root.
// Levels pair left-to-right; an odd tail node is promoted unchanged,
// so a single-leaf batch roots to its own hash.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return GenesisHash
	}
	level := make([]string, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, HashBytes([]byte(level[i]+level[i+1])))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

package password

// Hasher is the one-way credential hashing capability the engine depends on.
// Verify must compare in constant time; Hash must salt per call.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)

	// NeedsRehash reports whether the stored hash was produced with weaker
	// parameters than currently configured.
	NeedsRehash(encodedHash string) (bool, error)
}

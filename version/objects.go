package version

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// treeFilename is the single fixed entry every Tree object carries — a
// note has exactly one file, so there is no real directory structure to
// model, only the one-entry shape a git tree would have for it.
const treeFilename = "note.txt"

// Blob is the raw text of one committed version of the note.
type Blob struct {
	Content string
}

// Tree maps a filename to the hash of its Blob. A note only ever has the
// one entry named by treeFilename, but the type stays map-shaped to match
// the git object model this store imitates.
type Tree struct {
	Entries map[string]string `json:"tree"`
}

// Commit is a snapshot-with-parent: the hash of the Tree it records, the
// hash of the parent Commit (absent for the initial commit), a message,
// and a timestamp. Commit.Timestamp is a Unix millisecond value rather
// than time.Time so that the JSON encoding used for hashing has one
// unambiguous textual form.
type Commit struct {
	Tree      string `json:"tree"`
	Parent    string `json:"parent,omitempty"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// hashBlob hashes a blob's raw UTF-8 bytes directly — no JSON envelope,
// matching git's "store the content as-is" treatment of blobs.
func hashBlob(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// hashTree and hashCommit hash the deterministic JSON encoding of their
// argument. encoding/json preserves struct field order (not map key
// order), which is why Tree and Commit declare their fields in a fixed
// order rather than relying on map iteration.
func hashTree(t Tree) (string, []byte) {
	// Tree.Entries is a map, but every note has exactly one entry, so its
	// iteration order never varies across calls with the same content;
	// json.Marshal of a map does sort keys, which keeps this reproducible
	// even if a future revision allows more than one file.
	b, err := json.Marshal(t)
	if err != nil {
		panic(err) // Tree only ever holds strings; it cannot fail to marshal.
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), b
}

func hashCommit(c Commit) (string, []byte) {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err) // Commit only ever holds strings and an int64; it cannot fail to marshal.
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), b
}

package objectdb

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashPayload computes the content hash of an object, mixing in its kind tag
// so a blob and a tree that happen to share bytes never collide.
func hashPayload(kind Kind, payload []byte) string {
	h := sha256.New()
	h.Write([]byte{byte(kind)})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// HashBytes is the ETag-identity hash used by the collection store: the
// strong ETag of a resource is defined as the hash of its raw
// content, independent of any object-database kind tag.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

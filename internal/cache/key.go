package cache

import (
	digest "github.com/opencontainers/go-digest"
)

// EntryName derives the on-disk filename for key: the hex SHA-256 digest of
// the UTF-8 key bytes. The result is stable across processes and platforms.
func EntryName(key string) string {
	return digest.SHA256.FromString(key).Encoded()
}

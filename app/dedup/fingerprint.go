// Package dedup recognizes posts that were already delivered even when their
// dates claim they are new.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint identifies a post by the name of its feed and its permalink.
// Title and body are left out on purpose so that edited posts still match.
func Fingerprint(feedName, link string) string {
	h := md5.New()
	h.Write([]byte(feedName))
	h.Write([]byte(link))
	return hex.EncodeToString(h.Sum(nil))
}

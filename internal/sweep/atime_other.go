//go:build !linux

package sweep

import (
	"io/fs"
	"time"
)

// accessTime reports no access time on platforms where atime is not
// portable; the cold-entry rule is skipped there. The entry's mtime is
// no substitute: it carries the source's timestamp, not a write time.
func accessTime(fi fs.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}

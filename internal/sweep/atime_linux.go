//go:build linux

package sweep

import (
	"io/fs"
	"syscall"
	"time"
)

// accessTime reads the file's atime for cold-entry reclamation.
func accessTime(fi fs.FileInfo) (time.Time, bool) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Sec, st.Atim.Nsec), true
	}
	return time.Time{}, false
}

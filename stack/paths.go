package stack

import (
	"path/filepath"
	"runtime"
)

// projectRoot resolves the repository root from this source file's location
// so asset paths survive synth and tests running from different working
// directories.
func projectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("unable to get current file path")
	}
	return filepath.Dir(filepath.Dir(filename))
}

// Package stacktrace trims goroutine dumps down to this module's frames.
package stacktrace

import (
	"bufio"
	"bytes"
	"strings"
)

const internalDir = "/internal/"

// InternalPaths returns the "internal/<pkg>/<file>.go:<line>" locations found
// in a debug.Stack dump, innermost first.
func InternalPaths(stack []byte) []string {
	var paths []string

	sc := bufio.NewScanner(bytes.NewReader(stack))
	for sc.Scan() {
		line := sc.Text()
		// file lines are tab indented, function lines are not
		if !strings.HasPrefix(line, "\t") {
			continue
		}

		loc, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		idx := strings.Index(loc, internalDir)
		if idx == -1 || !strings.Contains(loc, ".go:") {
			continue
		}
		paths = append(paths, loc[idx+1:])
	}

	return paths
}

// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package traverse

import (
	"path/filepath"
	"strings"
)

// isHiddenDir reports whether a directory is hidden per the Unix
// convention: a leading dot in the final path component.
func isHiddenDir(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

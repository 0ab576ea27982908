// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package traverse

import "syscall"

const fileAttributeHidden = 0x02

// isHiddenDir reports whether a directory carries the Windows hidden
// attribute bit.
func isHiddenDir(path string) bool {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := syscall.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&fileAttributeHidden != 0
}

//go:build !unix && !windows

package utils

func setSocketOptions(fd uintptr) {}

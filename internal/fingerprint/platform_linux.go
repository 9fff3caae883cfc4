//go:build linux

package fingerprint

import "golang.org/x/sys/unix"

func memoryMB() int {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return int(uint64(info.Totalram) * uint64(info.Unit) / (1 << 20))
}

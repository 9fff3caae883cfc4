//go:build darwin || freebsd || netbsd || openbsd

package fingerprint

import "golang.org/x/sys/unix"

func memoryMB() int {
	n, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		n, err = unix.SysctlUint64("hw.physmem")
		if err != nil {
			return 0
		}
	}
	return int(n / (1 << 20))
}

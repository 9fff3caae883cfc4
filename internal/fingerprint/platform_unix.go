//go:build linux || darwin || freebsd || netbsd || openbsd

package fingerprint

import (
	"golang.org/x/sys/unix"
)

func fillPlatform(env *Environment) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return
	}
	env.Platform = unix.ByteSliceToString(uts.Sysname[:]) + " " + unix.ByteSliceToString(uts.Machine[:])
	env.Release = unix.ByteSliceToString(uts.Release[:])
	env.MemoryMB = memoryMB()
}

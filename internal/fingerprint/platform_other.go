//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package fingerprint

func fillPlatform(env *Environment) {}

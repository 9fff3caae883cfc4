// Package fingerprint derives the device identifiers a license is bound to.
package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const canvasText = "SlotHunter Fingerprint"

// Environment is the set of attributes the identifiers are derived from.
type Environment struct {
	Hostname  string
	Timezone  string
	Languages []string
	Platform  string
	CPUs      int
	MemoryMB  int // 0 when unknown
	// Render inputs: the stand-in for a canvas rendering that varies
	// with the machine rather than with the attributes above.
	MachineID string
	Release   string
}

// Pair holds the two opaque tokens sent on activation.
type Pair struct {
	Browser  string `json:"browserFingerprint"`
	Hardware string `json:"hardwareFingerprint"`
}

// Collect reads the environment of the running process.
func Collect() Environment {
	host, _ := os.Hostname()
	env := Environment{
		Hostname:  host,
		Timezone:  time.Local.String(),
		Languages: languages(os.Getenv),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		MachineID: machineID(),
	}
	fillPlatform(&env)
	return env
}

// Generate is a pure function of env.
func Generate(env Environment) Pair {
	components := env.components()
	canvas := env.render()

	browser := hashString(strings.Join(components, "|"))
	hardware := hashString(canvas + strings.Join(components[:5], "|"))

	return Pair{
		Browser:  "BFP-" + browser[:16],
		Hardware: "HFP-" + hardware[:16],
	}
}

func (e Environment) components() []string {
	langs := strings.Join(e.Languages, ",")
	return []string{
		e.Hostname,
		e.Timezone,
		langs,
		e.Platform,
		orUnknown(e.CPUs),
		orUnknown(e.MemoryMB),
	}
}

// render produces a data URL the way a canvas export would, fed by
// machine-specific inputs.
func (e Environment) render() string {
	raw := canvasText + "@" + e.MachineID + "@" + e.Release
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(raw))
}

func orUnknown(n int) string {
	if n <= 0 {
		return "unknown"
	}
	return strconv.Itoa(n)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func languages(getenv func(string) string) []string {
	if v := getenv("LANGUAGE"); v != "" {
		return strings.Split(v, ":")
	}
	for _, k := range []string{"LC_ALL", "LANG"} {
		if v := getenv(k); v != "" {
			if i := strings.IndexByte(v, '.'); i > 0 {
				v = v[:i]
			}
			return []string{strings.ReplaceAll(v, "_", "-")}
		}
	}
	return []string{"en-US"}
}

func machineID() string {
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(p); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}

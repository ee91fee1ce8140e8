// Package banner renders the startup banner shown on stderr.
package banner

import "fmt"

const art = `
  __ _  ___
 / _` + "`" + ` |/ _ \
| (_| |  __/
 \__, |\___|   word-level translation quality estimation
    |_|
`

// Banner returns the banner text for the given version string.
func Banner(version string) string {
	return fmt.Sprintf("%s version %s\n\n", art, version)
}

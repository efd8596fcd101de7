package snapshot

import (
	"fmt"

	"github.com/replik-io/replik/pkg/util"
)

// Format selects the on-disk layout of the staged snapshot.
type Format int

const (
	// FormatDir stages the replica as a plain mirrored directory tree.
	FormatDir Format = iota
	// FormatTarGz stages the replica as a single gzip-compressed tar archive.
	FormatTarGz
	// FormatTarZst stages the replica as a single zstd-compressed tar archive.
	FormatTarZst
)

var formatNames = map[Format]string{
	FormatDir:    "dir",
	FormatTarGz:  "tar.gz",
	FormatTarZst: "tar.zst",
}

var formatValues = util.InvertMap(formatNames)

// String returns the canonical name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat converts a string into a Format.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatValues[s]; ok {
		return f, nil
	}
	return FormatDir, fmt.Errorf("unknown snapshot format %q (valid: dir, tar.gz, tar.zst)", s)
}

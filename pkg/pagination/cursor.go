package pagination

import (
	"fmt"
	"strconv"
	"strings"
)

// FileCursor is the marker of a file block listing, ordered by offset with
// ties broken by block id.
type FileCursor struct {
	Offset  int64
	BlockID string
}

// String encodes the cursor as "<offset>:<block_id>".
func (c FileCursor) String() string {
	if c.BlockID == "" {
		return strconv.FormatInt(c.Offset, 10)
	}
	return strconv.FormatInt(c.Offset, 10) + ":" + c.BlockID
}

// ParseFileCursor decodes a marker produced by FileCursor.String.
//
// A bare offset ("4096") is accepted and means "every assignment at an
// offset greater than 4096". An empty marker returns nil.
func ParseFileCursor(marker string) (*FileCursor, error) {
	if marker == "" {
		return nil, nil
	}

	offStr, blockID, _ := strings.Cut(marker, ":")
	off, err := strconv.ParseInt(offStr, 10, 64)
	if err != nil || off < 0 {
		return nil, fmt.Errorf("invalid file marker %q", marker)
	}
	return &FileCursor{Offset: off, BlockID: blockID}, nil
}

package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Range struct {
	Start  int64
	Length int64
}

// Get the offset right after the last byte of the range.
func (r Range) End() int64 { return r.Start + r.Length }

// Split a payload of the given size into contiguous ranges of partSize bytes.
// The last range may be shorter than partSize.
func Split(size, partSize int64) []Range {
	if size <= 0 || partSize <= 0 {
		return nil
	}
	ranges := make([]Range, 0, Count(size, partSize))
	for start := int64(0); start < size; start += partSize {
		length := partSize
		if start+length > size {
			length = size - start
		}
		ranges = append(ranges, Range{Start: start, Length: length})
	}
	return ranges
}

// Get the number of ranges needed to cover size bytes.
func Count(size, partSize int64) int64 {
	if size <= 0 || partSize <= 0 {
		return 0
	}
	return (size + partSize - 1) / partSize
}

type ContentRange struct {
	Start, End, Size int64
}

// Build the Content-Range of a byte range within a payload of the given size.
func NewContentRange(r Range, size int64) *ContentRange {
	return &ContentRange{Start: r.Start, End: r.End() - 1, Size: size}
}

// Get the length of the range.
func (cr *ContentRange) Length() int64 { return cr.End - cr.Start + 1 }

// Get the 1-based part number of the range for the given part size.
func (cr *ContentRange) PartNumber(partSize int64) int64 { return cr.Start/partSize + 1 }

// Determine whether the range ends at the last byte of the payload.
func (cr *ContentRange) IsLastByte() bool {
	return cr.End+1 >= cr.Size
}

func (cr *ContentRange) String() string {
	return fmt.Sprintf("bytes %d-%d/%d", cr.Start, cr.End, cr.Size)
}

func ParseContentRange(s string) (*ContentRange, error) {
	const b = "bytes "
	if s == "" {
		return nil, errors.New("no Content-Range header")
	}
	if !strings.HasPrefix(s, b) {
		return nil, errors.New("invalid unit of Content-Range header")
	}
	r := strings.Split(s[len(b):], "/")
	if len(r) != 2 {
		return nil, errors.New("invalid size of Content-Range header")
	}
	size, err := strconv.ParseInt(strings.TrimSpace(r[1]), 10, 64)
	if err != nil {
		return nil, errors.New("cannot parse size of Content-Range header")
	}
	r = strings.Split(r[0], "-")
	if len(r) != 2 {
		return nil, errors.New("cannot parse Content-Range header, expected format \"start-end\"")
	}
	start, err := strconv.ParseInt(strings.TrimSpace(r[0]), 10, 64)
	if err != nil {
		return nil, errors.New("cannot parse start of Content-Range header")
	}
	end, err := strconv.ParseInt(strings.TrimSpace(r[1]), 10, 64)
	if err != nil {
		return nil, errors.New("cannot parse end of Content-Range header")
	}
	if start < 0 || end < start || end >= size {
		return nil, errors.New("invalid range of Content-Range header")
	}
	cr := &ContentRange{
		Start: start,
		End:   end,
		Size:  size,
	}
	return cr, nil
}

package upload

import "github.com/molpadia/molpareplay/internal/httprange"

// Part is a contiguous byte range of the source file uploaded independently.
type Part struct {
	Number int64
	httprange.Range
}

func (p Part) ContentRange(fileSize int64) *httprange.ContentRange {
	return httprange.NewContentRange(p.Range, fileSize)
}

// Plan splits a file into ceil(fileSize/partSize) parts numbered from 1.
// The last part ends exactly at fileSize.
func Plan(fileSize, partSize int64) []Part {
	ranges := httprange.Split(fileSize, partSize)
	parts := make([]Part, len(ranges))
	for i, r := range ranges {
		parts[i] = Part{Number: int64(i + 1), Range: r}
	}
	return parts
}

package inventory

import (
	"strconv"
	"strings"
)

// openEnd marks a byte range with no upper bound ("to end of file").
const openEnd int64 = -1

// ByteRange is a span of bytes within the remote binary file. End is
// inclusive, per HTTP Range semantics. A negative End means the range is
// open-ended.
type ByteRange struct {
	Start int64
	End   int64
}

// OpenRange returns an open-ended range beginning at start.
func OpenRange(start int64) ByteRange {
	return ByteRange{Start: start, End: openEnd}
}

// Open reports whether the range has no upper bound.
func (r ByteRange) Open() bool {
	return r.End < 0
}

// String formats the range as an HTTP range-spec: "start-end", or "start-"
// when open-ended.
func (r ByteRange) String() string {
	s := strconv.FormatInt(r.Start, 10) + "-"
	if !r.Open() {
		s += strconv.FormatInt(r.End, 10)
	}
	return s
}

// RangeHeader builds an HTTP Range header value ("bytes=a-b,c-") from the
// given ranges, preserving their order. Overlapping or duplicate ranges
// are serialized as given; deduplication is the caller's concern. An empty
// slice yields an empty string, meaning no Range header should be sent.
func RangeHeader(ranges []ByteRange) string {
	if len(ranges) == 0 {
		return ""
	}

	specs := make([]string, len(ranges))
	for i, r := range ranges {
		specs[i] = r.String()
	}
	return "bytes=" + strings.Join(specs, ",")
}

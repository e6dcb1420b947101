// Package inventory parses GRIB2 index sidecar files and derives byte
// ranges for subsetting the companion binary file over HTTP.
//
// A GRIB2 archive file is accompanied by a plain-text index (".idx") with
// one line per message:
//
//	8:900981:d=1995103000:UGRD:50 m above ground:165 hour fcst:
//
// The fields are the message ordinal, the absolute byte offset of the
// message start, the reference time, the variable name, the level and the
// forecast interval. A message ends where the next one begins, so the byte
// range of a message is derived from the offset of its successor; the last
// message in a file has an open-ended range.
//
// # Usage
//
//	coll, err := inventory.ParseCollection(idxText)
//	matches, err := coll.Filter(`.*:UGRD:10 m above ground:.*`)
//	var ranges []inventory.ByteRange
//	for _, rec := range matches {
//	    br, err := coll.ByteRange(rec)
//	    ranges = append(ranges, br)
//	}
//	header := inventory.RangeHeader(ranges) // "bytes=0-73572,263118-"
//
// Filter patterns are matched anchored at the start of the record's
// canonical line, so a pattern needs a leading ".*" to match mid-line.
package inventory

package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// refTimeLayout is the fixed 10-digit reference time encoding used by the
// index format (4-digit year, then month, day and cycle hour).
const refTimeLayout = "2006010215"

// ErrMalformedLine is returned when an index line does not have the
// expected colon-delimited shape or a field fails to parse.
var ErrMalformedLine = errors.New("inventory: malformed index line")

// ErrNotInCollection is returned by Collection.ByteRange when the queried
// record's ordinal is not present in the collection. This is distinct from
// the record being the last entry, which yields an open-ended range.
var ErrNotInCollection = errors.New("inventory: record not in collection")

// Record is one line of a GRIB2 index file, describing a single message
// within the companion binary file.
type Record struct {
	// Ordinal is the 0-based position of the message in the source file.
	Ordinal int

	// ByteOffset is the absolute byte offset of the message start.
	ByteOffset int64

	// RefTime is the forecast reference (cycle) time.
	RefTime time.Time

	// Variable is the short variable token, e.g. "UGRD".
	Variable string

	// Level describes the vertical level, e.g. "10 m above ground".
	Level string

	// Interval describes the forecast interval, e.g. "165 hour fcst".
	Interval string
}

// ParseRecord parses a single index line. The line must have at least six
// colon-delimited fields; trailing fields beyond the interval are ignored.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	fields := strings.Split(line, ":")
	if len(fields) < 6 {
		return Record{}, fmt.Errorf("%w: expected 6 fields, got %d: %q", ErrMalformedLine, len(fields), line)
	}

	ordinal, err := strconv.Atoi(fields[0])
	if err != nil || ordinal < 0 {
		return Record{}, fmt.Errorf("%w: bad ordinal %q", ErrMalformedLine, fields[0])
	}

	offset, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || offset < 0 {
		return Record{}, fmt.Errorf("%w: bad byte offset %q", ErrMalformedLine, fields[1])
	}

	stamp, ok := strings.CutPrefix(fields[2], "d=")
	if !ok {
		return Record{}, fmt.Errorf("%w: bad reference time %q", ErrMalformedLine, fields[2])
	}
	refTime, err := time.Parse(refTimeLayout, stamp)
	if err != nil || len(stamp) != len(refTimeLayout) {
		return Record{}, fmt.Errorf("%w: bad reference time %q", ErrMalformedLine, fields[2])
	}

	return Record{
		Ordinal:    ordinal,
		ByteOffset: offset,
		RefTime:    refTime,
		Variable:   fields[3],
		Level:      fields[4],
		Interval:   fields[5],
	}, nil
}

// String returns the canonical index line for the record, including the
// trailing colon. ParseRecord followed by String round-trips exactly.
func (r Record) String() string {
	return strings.Join([]string{
		strconv.Itoa(r.Ordinal),
		strconv.FormatInt(r.ByteOffset, 10),
		"d=" + r.RefTime.Format(refTimeLayout),
		r.Variable,
		r.Level,
		r.Interval,
	}, ":") + ":"
}

// Collection holds all records of one index file, keyed by ordinal.
type Collection struct {
	byOrdinal map[int]Record
	ordinals  []int // insertion order
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{byOrdinal: make(map[int]Record)}
}

// ParseCollection parses a full index text, one record per line. Blank
// lines are skipped. Any unparseable line fails the whole collection.
func ParseCollection(r io.Reader) (*Collection, error) {
	coll := NewCollection()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		coll.Add(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	return coll, nil
}

// Add inserts a record keyed by its ordinal. On ordinal collision the last
// write wins; this is accepted, not validated, since well-formed indices
// have unique ordinals.
func (c *Collection) Add(rec Record) {
	if _, ok := c.byOrdinal[rec.Ordinal]; !ok {
		c.ordinals = append(c.ordinals, rec.Ordinal)
	}
	c.byOrdinal[rec.Ordinal] = rec
}

// Len returns the number of records in the collection.
func (c *Collection) Len() int {
	return len(c.ordinals)
}

// ByteRange returns the byte span of the message described by rec. The end
// comes from the successor record's offset; a record with no successor is
// the last message and gets an open-ended range. Querying a record whose
// ordinal is not in the collection returns ErrNotInCollection.
func (c *Collection) ByteRange(rec Record) (ByteRange, error) {
	if _, ok := c.byOrdinal[rec.Ordinal]; !ok {
		return ByteRange{}, fmt.Errorf("%w: ordinal %d", ErrNotInCollection, rec.Ordinal)
	}

	next, ok := c.byOrdinal[rec.Ordinal+1]
	if !ok {
		return OpenRange(rec.ByteOffset), nil
	}
	return ByteRange{Start: rec.ByteOffset, End: next.ByteOffset - 1}, nil
}

// Filter returns the records whose canonical line matches pattern. The
// pattern is anchored at the start of the line but need not match all of
// it. Records are returned in insertion order, which for a parsed index is
// ordinal order.
func (c *Collection) Filter(pattern string) ([]Record, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	var matches []Record
	for _, ord := range c.ordinals {
		rec := c.byOrdinal[ord]
		if re.MatchString(rec.String()) {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

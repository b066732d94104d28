package powerlog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/srodi/wattrace/pkg/types"
)

// Entry is one (component, UID, power) line of an iteration block.
type Entry struct {
	Component string
	UID       int
	Name      string
	Power     int64
}

// Iteration is one parsed iteration block.
type Iteration struct {
	Index      int64
	TotalPower int64
	Entries    []Entry
	Extras     []string
}

// Log is a fully parsed trace.
type Log struct {
	Header     map[string]string
	Associates map[int]string
	Iterations []Iteration
}

// NewCompressedReader decompresses a stream written with compression enabled.
func NewCompressedReader(r io.Reader) io.ReadCloser {
	return flate.NewReaderDict(r, []byte(Dictionary))
}

// Parse reads an uncompressed trace. Lines it does not recognize are retained
// as extras, so component-specific detail lines never break a reader.
func Parse(r io.Reader) (*Log, error) {
	out := &Log{
		Header:     make(map[string]string),
		Associates: make(map[int]string),
	}
	var cur *Iteration

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		switch {
		case line == EndOfIteration:
			if cur == nil {
				return nil, fmt.Errorf("end marker outside iteration block")
			}
			out.Iterations = append(out.Iterations, *cur)
			cur = nil
		case strings.HasPrefix(line, "begin+"):
			if cur != nil {
				return nil, fmt.Errorf("iteration %d missing end marker", cur.Index)
			}
			idx, err := strconv.ParseInt(line[len("begin+"):], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad begin line %q: %w", line, err)
			}
			cur = &Iteration{Index: idx}
		case strings.HasPrefix(line, "associate+"):
			uid, name, err := parseAssociate(line)
			if err != nil {
				return nil, err
			}
			out.Associates[uid] = name
		case strings.HasPrefix(line, "total power+"):
			if cur == nil {
				return nil, fmt.Errorf("total power outside iteration block")
			}
			v, err := strconv.ParseInt(line[len("total power+"):], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad total power line %q: %w", line, err)
			}
			cur.TotalPower = v
		case cur == nil:
			parseHeaderLine(out.Header, line)
		default:
			if entry, ok := parseEntry(line); ok {
				cur.Entries = append(cur.Entries, entry)
			} else {
				cur.Extras = append(cur.Extras, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fmt.Errorf("iteration %d missing end marker", cur.Index)
	}
	return out, nil
}

func parseHeaderLine(header map[string]string, line string) {
	// setting_httpproxy uses a space separator; everything else uses '+'.
	if key, value, found := strings.Cut(line, "+"); found {
		header[key] = value
		return
	}
	if key, value, found := strings.Cut(line, " "); found {
		header[key] = value
		return
	}
	header[line] = "" // bare flags such as notifications-active
}

func parseAssociate(line string) (int, string, error) {
	parts := strings.SplitN(line, "+", 3)
	if len(parts) != 3 {
		return 0, "", fmt.Errorf("bad associate line %q", line)
	}
	uid, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("bad associate line %q: %w", line, err)
	}
	return uid, parts[2], nil
}

// parseEntry recognizes component power lines: either
// <component>+ALL++<power> or <component>+<uid>+<name>+<power>.
func parseEntry(line string) (Entry, bool) {
	parts := strings.Split(line, "+")
	if len(parts) != 4 {
		return Entry{}, false
	}
	power, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	e := Entry{Component: parts[0], Name: parts[2], Power: power}
	if parts[1] == "ALL" {
		e.UID = types.UIDAll
		return e, true
	}
	uid, err := strconv.Atoi(parts[1])
	if err != nil {
		return Entry{}, false
	}
	e.UID = uid
	return e, true
}

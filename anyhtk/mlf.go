package anyhtk

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
)

const mlfHeader = "#!MLF!#"

// A Segment is one line of an MLF transcription.
//
// Start and End are in HTK time units (100ns).
// They are -1 when the line has no boundaries.
type Segment struct {
	Start  int64
	End    int64
	Symbol string
}

// A Transcription is the label sequence for an utterance.
type Transcription struct {
	Key      string
	Segments []Segment
}

// Symbols returns the symbol of every segment, in order.
// Segment boundaries are discarded.
func (t *Transcription) Symbols() []string {
	res := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		res[i] = s.Symbol
	}
	return res
}

// ReadMLF reads a master label file.
//
// The result maps each utterance key (the base name of the
// quoted pattern, without extension) to its transcription.
// Two patterns with the same key are an error.
func ReadMLF(path string) (map[string]*Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read MLF", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)

	res := map[string]*Transcription{}
	var current *Transcription
	var lineNum int
	var sawHeader bool
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawHeader {
			if line != mlfHeader {
				return nil, fmt.Errorf("read MLF: missing %s header", mlfHeader)
			}
			sawHeader = true
			continue
		}
		switch {
		case current == nil:
			if !strings.HasPrefix(line, "\"") || !strings.HasSuffix(line, "\"") {
				return nil, fmt.Errorf("read MLF: line %d: expected quoted pattern", lineNum)
			}
			current = &Transcription{Key: utteranceKey(line)}
		case line == ".":
			if _, ok := res[current.Key]; ok {
				return nil, fmt.Errorf("read MLF: line %d: duplicate entry %q", lineNum,
					current.Key)
			}
			res[current.Key] = current
			current = nil
		default:
			seg, err := parseSegment(line)
			if err != nil {
				return nil, fmt.Errorf("read MLF: line %d: %s", lineNum, err)
			}
			current.Segments = append(current.Segments, seg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("read MLF", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("read MLF: missing %s header", mlfHeader)
	}
	if current != nil {
		return nil, fmt.Errorf("read MLF: unterminated entry %q", current.Key)
	}
	return res, nil
}

func parseSegment(line string) (Segment, error) {
	fields := strings.Fields(line)
	if len(fields) >= 3 {
		start, err1 := strconv.ParseInt(fields[0], 10, 64)
		end, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 == nil && err2 == nil {
			if end < start {
				return Segment{}, errors.New("segment ends before it starts")
			}
			return Segment{Start: start, End: end, Symbol: fields[2]}, nil
		}
	}
	if len(fields) == 1 {
		return Segment{Start: -1, End: -1, Symbol: fields[0]}, nil
	}
	return Segment{}, fmt.Errorf("bad segment %q", line)
}

// Package anyhtk reads the HTK-style corpus files used to
// train acoustic models: SCP feature lists, MLF label
// files, symbol (state) lists, HTK feature files, and
// global normalization statistics.
package anyhtk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
)

// An SCPEntry maps an utterance to a range of frames in a
// feature file.
type SCPEntry struct {
	ID   string
	Path string

	// Start and End are the inclusive frame range.
	// If HasRange is false, the whole file is used.
	Start    int
	End      int
	HasRange bool
}

// NumFrames returns the number of frames in the range, or
// -1 if the entry covers the whole file.
func (s *SCPEntry) NumFrames() int {
	if !s.HasRange {
		return -1
	}
	return s.End - s.Start + 1
}

// ReadSCP reads an SCP file.
//
// Each non-empty line is either
//
//	id=path[start,end]
//
// or just a path, in which case the id is the base name
// of the path without its extension.
// The frame range is optional in both forms.
//
// Relative feature paths are resolved against root if it
// is non-empty.
// Every id must be unique.
func ReadSCP(path, root string) ([]*SCPEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read SCP", err)
	}
	defer f.Close()

	var res []*SCPEntry
	lines := map[string]int{}
	scanner := bufio.NewScanner(f)
	var lineNum int
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseSCPLine(line)
		if err != nil {
			return nil, fmt.Errorf("read SCP: line %d: %s", lineNum, err)
		}
		if prev, ok := lines[entry.ID]; ok {
			return nil, fmt.Errorf("read SCP: line %d: id %q already used on line %d",
				lineNum, entry.ID, prev)
		}
		lines[entry.ID] = lineNum
		if root != "" && !filepath.IsAbs(entry.Path) {
			entry.Path = filepath.Join(root, entry.Path)
		}
		res = append(res, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("read SCP", err)
	}
	return res, nil
}

func parseSCPLine(line string) (*SCPEntry, error) {
	entry := &SCPEntry{}
	if idx := strings.Index(line, "="); idx >= 0 {
		entry.ID = utteranceKey(line[:idx])
		line = line[idx+1:]
	}
	if strings.HasSuffix(line, "]") {
		open := strings.LastIndex(line, "[")
		if open < 0 {
			return nil, fmt.Errorf("unmatched ']' in %q", line)
		}
		parts := strings.Split(line[open+1:len(line)-1], ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad frame range in %q", line)
		}
		start, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		end, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || start < 0 || end < start {
			return nil, fmt.Errorf("bad frame range in %q", line)
		}
		entry.Start, entry.End, entry.HasRange = start, end, true
		line = line[:open]
	}
	if line == "" {
		return nil, fmt.Errorf("missing feature path")
	}
	entry.Path = line
	if entry.ID == "" {
		entry.ID = utteranceKey(line)
	}
	return entry, nil
}

// utteranceKey turns a path or pattern into the key used
// to match SCP entries with MLF entries.
func utteranceKey(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "\"")
	name = strings.Replace(name, "\\", "/", -1)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	return name
}

package anyhtk

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/unixpickle/essentials"
)

// A SymbolTable maps output symbols to network output
// indices.
// The last symbol is the CTC blank.
type SymbolTable struct {
	Symbols []string

	index map[string]int
}

// NewSymbolTable creates a table from an ordered symbol
// list whose last entry is the blank.
func NewSymbolTable(symbols []string) (*SymbolTable, error) {
	if len(symbols) < 2 {
		return nil, errors.New("need at least one symbol and a blank")
	}
	res := &SymbolTable{
		Symbols: append([]string{}, symbols...),
		index:   map[string]int{},
	}
	for i, s := range symbols {
		if _, ok := res.index[s]; ok {
			return nil, fmt.Errorf("duplicate symbol: %s", s)
		}
		res.index[s] = i
	}
	return res, nil
}

// ReadSymbols reads a state list with one symbol per line.
func ReadSymbols(path string) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read symbols", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			symbols = append(symbols, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("read symbols", err)
	}
	res, err := NewSymbolTable(symbols)
	if err != nil {
		return nil, essentials.AddCtx("read symbols", err)
	}
	return res, nil
}

// Len returns the number of symbols, including the blank.
func (s *SymbolTable) Len() int {
	return len(s.Symbols)
}

// Blank returns the index of the blank symbol.
func (s *SymbolTable) Blank() int {
	return len(s.Symbols) - 1
}

// Index looks up the index of a symbol.
func (s *SymbolTable) Index(symbol string) (int, bool) {
	idx, ok := s.index[symbol]
	return idx, ok
}

// Encode converts a symbol sequence into a label.
// Unknown symbols and the blank are not allowed.
func (s *SymbolTable) Encode(symbols []string) ([]int, error) {
	res := make([]int, len(symbols))
	for i, sym := range symbols {
		idx, ok := s.index[sym]
		if !ok {
			return nil, fmt.Errorf("unknown symbol: %s", sym)
		}
		if idx == s.Blank() {
			return nil, fmt.Errorf("label contains blank symbol: %s", sym)
		}
		res[i] = idx
	}
	return res, nil
}

// Decode converts a label back into symbols.
func (s *SymbolTable) Decode(label []int) []string {
	res := make([]string, len(label))
	for i, x := range label {
		if x >= 0 && x < len(s.Symbols) {
			res[i] = s.Symbols[x]
		} else {
			res[i] = fmt.Sprintf("<%d>", x)
		}
	}
	return res
}

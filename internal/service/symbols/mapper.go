package symbols

import "strings"

// Mapper turns an internal ticker into a provider trading pair.
//
// Resolution order: the explicit table, then the symbol as-is when it
// already ends with the quote suffix, then symbol+suffix. Unknown pairs are
// left for the provider to reject.
type Mapper struct {
	table  map[string]string
	suffix string
}

// NewMapper builds a mapper. Table keys are matched case-insensitively.
func NewMapper(quoteSuffix string, table map[string]string) *Mapper {
	m := &Mapper{
		table:  make(map[string]string, len(table)),
		suffix: strings.ToUpper(quoteSuffix),
	}
	for k, v := range table {
		m.table[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return m
}

// Resolve returns the provider pair for symbol.
func (m *Mapper) Resolve(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if pair, ok := m.table[s]; ok {
		return pair
	}
	if m.suffix == "" || strings.HasSuffix(s, m.suffix) {
		return s
	}
	return s + m.suffix
}

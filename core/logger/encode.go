package logger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type logFormat uint8

const (
	formatJSON logFormat = iota
	formatKV
)

func (f logFormat) encode(l line, order []string) ([]byte, error) {
	keys := orderKeys(l, order)
	if f == formatKV {
		return encodeKV(l, keys), nil
	}
	return encodeJSON(l, keys)
}

// orderKeys lists the keys of order present in l, then the rest sorted.
func orderKeys(l line, order []string) []string {
	keys := make([]string, 0, len(l))
	for _, k := range order {
		if _, ok := l[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	lead := len(keys)
	for k := range l {
		if !slices.Contains(keys[:lead], k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[lead:])
	return keys
}

func encodeJSON(l line, keys []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range keys {
		v, err := json.Marshal(l[k])
		if err != nil {
			return nil, fmt.Errorf("logger: field %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func encodeKV(l line, keys []string) []byte {
	var buf []byte
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		s := fmt.Sprint(l[k])
		if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	}
	return buf
}

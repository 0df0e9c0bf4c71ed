package hal

import (
	"sort"
	"strconv"
	"strings"
)

// Params is an ordered key=value parameter list in the hardware service's
// "k1=v1;k2=v2" wire form.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams returns an empty parameter list.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Set adds or replaces key. Keys keep their first insertion position.
func (p *Params) Set(key, value string) *Params {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// SetInt is Set for integer values.
func (p *Params) SetInt(key string, value int) *Params {
	return p.Set(key, strconv.Itoa(value))
}

// Get returns the value for key.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of keys.
func (p *Params) Len() int { return len(p.keys) }

func (p *Params) String() string {
	var sb strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p.values[k])
	}
	return sb.String()
}

// ParseParams parses a "k1=v1;k2=v2" string. Empty segments are skipped and
// a segment without "=" becomes a key with an empty value.
func ParseParams(s string) *Params {
	p := NewParams()
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		k, v, _ := strings.Cut(seg, "=")
		p.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return p
}

// Keys returns the keys in sorted order.
func (p *Params) Keys() []string {
	out := append([]string(nil), p.keys...)
	sort.Strings(out)
	return out
}

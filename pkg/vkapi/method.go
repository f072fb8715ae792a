package vkapi

import (
	"net/url"
	"strconv"
	"strings"
)

// Param is one query parameter of a method call.
type Param struct {
	Name  string
	Value string
}

// Method is a named API call with parameters kept in insertion order.
type Method struct {
	name   string
	params []Param
}

// NewMethod builds a method call.
func NewMethod(name string, params ...Param) Method {
	return Method{name: name, params: append([]Param(nil), params...)}
}

// P is shorthand for constructing a Param.
func P(name, value string) Param {
	return Param{Name: name, Value: value}
}

// Add returns a copy of m with one more parameter appended.
func (m Method) Add(name, value string) Method {
	m.params = append(append([]Param(nil), m.params...), Param{Name: name, Value: value})
	return m
}

// AddInt is Add for integer values.
func (m Method) AddInt(name string, value int) Method {
	return m.Add(name, strconv.Itoa(value))
}

// Name returns the method name, e.g. "messages.send".
func (m Method) Name() string {
	return m.name
}

// Params returns a copy of the parameters.
func (m Method) Params() []Param {
	return append([]Param(nil), m.params...)
}

// encodeParams renders "k=v&k=v" in insertion order. url.Values is not used
// because it sorts keys.
func encodeParams(params []Param) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

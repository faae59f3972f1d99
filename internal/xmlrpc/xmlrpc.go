// Package xmlrpc implements the XML-RPC wire format used by the Sippy
// softswitch management API: request envelopes with wire-typed parameters
// and response parsing with fault detection.
package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Member is a single named parameter. Requests carry an ordered list of
// members so the serialized struct preserves the order the caller supplied.
type Member struct {
	Name  string
	Value any
}

// Fault is the protocol's structured error response.
type Fault struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}

// Value is one wire value. Exactly one of the typed fields is set;
// a value with no type element is treated as a bare string per XML-RPC.
type Value struct {
	Int      *string `xml:"int,omitempty"`
	I4       *string `xml:"i4,omitempty"`
	Double   *string `xml:"double,omitempty"`
	Boolean  *string `xml:"boolean,omitempty"`
	Str      *string `xml:"string,omitempty"`
	DateTime *string `xml:"dateTime.iso8601,omitempty"`
	Struct   *Struct `xml:"struct,omitempty"`
	Array    *Array  `xml:"array,omitempty"`
	Text     string  `xml:",chardata"`
}

// Struct is a sequence of named members.
type Struct struct {
	Members []StructMember `xml:"member"`
}

// StructMember pairs a member name with its value.
type StructMember struct {
	Name  string `xml:"name"`
	Value Value  `xml:"value"`
}

// Array is a homogeneous sequence of values.
type Array struct {
	Values []Value `xml:"data>value"`
}

type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     []param  `xml:"params>param"`
}

type methodResponse struct {
	XMLName xml.Name    `xml:"methodResponse"`
	Fault   *faultValue `xml:"fault"`
	Params  []param     `xml:"params>param"`
}

type param struct {
	Value Value `xml:"value"`
}

type faultValue struct {
	Value Value `xml:"value"`
}

// BuildCall serializes a method call with a single struct parameter whose
// members appear in the order supplied. Values are wire-typed by inspecting
// the Go value; anything unrecognized falls back to string serialization.
func BuildCall(method string, params []Member) ([]byte, error) {
	members := make([]StructMember, 0, len(params))
	for _, p := range params {
		members = append(members, StructMember{Name: p.Name, Value: wireValue(p.Value)})
	}

	call := methodCall{
		MethodName: method,
		Params: []param{
			{Value: Value{Struct: &Struct{Members: members}}},
		},
	}

	body, err := xml.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: marshalling call %q: %w", method, err)
	}
	return append([]byte(xml.Header), body...), nil
}

// wireValue infers the wire type for a Go value. Whole floats collapse to
// the integer tag; slices become arrays of string- or integer-tagged
// elements; everything unrecognized is coerced to its string form.
func wireValue(v any) Value {
	switch t := v.(type) {
	case int:
		return intValue(int64(t))
	case int32:
		return intValue(int64(t))
	case int64:
		return intValue(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return intValue(int64(t))
		}
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return Value{Double: &s}
	case float32:
		return wireValue(float64(t))
	case bool:
		s := "0"
		if t {
			s = "1"
		}
		return Value{Boolean: &s}
	case string:
		return Value{Str: &t}
	case []string:
		arr := &Array{}
		for _, e := range t {
			arr.Values = append(arr.Values, wireValue(e))
		}
		return Value{Array: arr}
	case []int:
		arr := &Array{}
		for _, e := range t {
			arr.Values = append(arr.Values, wireValue(e))
		}
		return Value{Array: arr}
	case []any:
		arr := &Array{}
		for _, e := range t {
			arr.Values = append(arr.Values, wireValue(e))
		}
		return Value{Array: arr}
	default:
		s := fmt.Sprint(t)
		return Value{Str: &s}
	}
}

func intValue(n int64) Value {
	s := strconv.FormatInt(n, 10)
	return Value{Int: &s}
}

// Response is a parsed methodResponse with the fault branch already ruled
// out. Value is the first (and on this platform, only) result parameter;
// nil when the response carried no params at all.
type Response struct {
	Value *Value
}

// Unmarshal parses a methodResponse document. A fault-shaped response is
// returned as a *Fault error and never as a Response, so no caller can
// mistake a fault for result data.
func Unmarshal(data []byte) (*Response, error) {
	var resp methodResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("xmlrpc: unmarshalling response: %w", err)
	}
	if resp.Fault != nil {
		return nil, decodeFault(&resp.Fault.Value)
	}
	if len(resp.Params) == 0 {
		return &Response{}, nil
	}
	return &Response{Value: &resp.Params[0].Value}, nil
}

// CheckFault reports whether data is a fault response, without decoding
// anything else. The scan stops at the first fault or params element, so
// the cost is independent of the result payload size.
func CheckFault(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("xmlrpc: scanning response: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "fault":
			fault, err := DecodeFault(d, &se)
			if err != nil {
				return err
			}
			return fault
		case "params":
			return nil
		}
	}
}

// DecodeFault consumes a fault element during a streaming token walk,
// materializing only the fault's own value tree. The decoder must have
// just produced start.
func DecodeFault(d *xml.Decoder, start *xml.StartElement) (*Fault, error) {
	var fv faultValue
	if err := d.DecodeElement(&fv, start); err != nil {
		return nil, fmt.Errorf("xmlrpc: decoding fault: %w", err)
	}
	return decodeFault(&fv.Value), nil
}

// decodeFault extracts faultCode and faultString by targeted member lookup.
func decodeFault(v *Value) *Fault {
	f := &Fault{}
	if v.Struct == nil {
		f.Message = strings.TrimSpace(v.Text)
		return f
	}
	for _, m := range v.Struct.Members {
		switch m.Name {
		case "faultCode":
			if n, err := m.Value.IntDefault(0); err == nil {
				f.Code = n
			}
		case "faultString":
			f.Message = m.Value.StringValue()
		}
	}
	return f
}

// Parse decodes a full response into a flat field map. A scalar result is
// exposed under the "result" key; a struct result is flattened one level.
// Specialized consumers use their own extraction instead of this one.
func Parse(data []byte) (Fields, error) {
	resp, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return Fields{}, nil
	}
	if resp.Value.Struct != nil {
		return resp.Value.Struct.Fields()
	}
	v, err := resp.Value.Decode()
	if err != nil {
		return nil, err
	}
	return Fields{"result": v}, nil
}

// Decode converts a wire value to its Go representation: int, float64,
// bool, string, []any, or Fields for nested structs.
func (v *Value) Decode() (any, error) {
	switch {
	case v.Int != nil:
		return parseInt(*v.Int)
	case v.I4 != nil:
		return parseInt(*v.I4)
	case v.Double != nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
		if err != nil {
			return nil, fmt.Errorf("xmlrpc: bad double %q: %w", *v.Double, err)
		}
		return f, nil
	case v.Boolean != nil:
		s := strings.TrimSpace(*v.Boolean)
		return s == "1" || strings.EqualFold(s, "true"), nil
	case v.Str != nil:
		return *v.Str, nil
	case v.DateTime != nil:
		return strings.TrimSpace(*v.DateTime), nil
	case v.Struct != nil:
		return v.Struct.Fields()
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for i := range v.Array.Values {
			e, err := v.Array.Values[i].Decode()
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	default:
		return strings.TrimSpace(v.Text), nil
	}
}

// StringValue returns the value's text regardless of wire type. Handy for
// members that are logically strings but arrive integer- or bare-tagged.
func (v *Value) StringValue() string {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Int != nil:
		return strings.TrimSpace(*v.Int)
	case v.I4 != nil:
		return strings.TrimSpace(*v.I4)
	case v.Double != nil:
		return strings.TrimSpace(*v.Double)
	case v.Boolean != nil:
		return strings.TrimSpace(*v.Boolean)
	case v.DateTime != nil:
		return strings.TrimSpace(*v.DateTime)
	default:
		return strings.TrimSpace(v.Text)
	}
}

// IntDefault returns the value as an int, or def when the value is absent
// or blank. Non-numeric content is an error.
func (v *Value) IntDefault(def int) (int, error) {
	s := v.StringValue()
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("xmlrpc: bad integer %q: %w", s, err)
	}
	return n, nil
}

// Fields decodes all members into a field map.
func (s *Struct) Fields() (Fields, error) {
	out := make(Fields, len(s.Members))
	for i := range s.Members {
		v, err := s.Members[i].Value.Decode()
		if err != nil {
			return nil, err
		}
		out[s.Members[i].Name] = v
	}
	return out, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("xmlrpc: bad integer %q: %w", s, err)
	}
	return n, nil
}

package xmlrpc

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"
)

func TestBuildCall_WireTypes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"int", 42, "<int>42</int>"},
		{"negative int", -7, "<int>-7</int>"},
		{"whole float collapses to int", 10.0, "<int>10</int>"},
		{"fractional float", 0.25, "<double>0.25</double>"},
		{"bool true", true, "<boolean>1</boolean>"},
		{"bool false", false, "<boolean>0</boolean>"},
		{"string", "hello", "<string>hello</string>"},
		{"unknown type coerced to string", struct{ X int }{1}, "<string>{1}</string>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := BuildCall("testMethod", []Member{{Name: "p", Value: tt.value}})
			if err != nil {
				t.Fatalf("BuildCall: %v", err)
			}
			if !strings.Contains(string(out), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestBuildCall_StringArray(t *testing.T) {
	out, err := BuildCall("m", []Member{{Name: "ids", Value: []string{"a", "b"}}})
	if err != nil {
		t.Fatalf("BuildCall: %v", err)
	}
	for _, want := range []string{"<array>", "<data>", "<string>a</string>", "<string>b</string>"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBuildCall_IntArray(t *testing.T) {
	out, err := BuildCall("m", []Member{{Name: "ids", Value: []int{1, 2, 3}}})
	if err != nil {
		t.Fatalf("BuildCall: %v", err)
	}
	for _, want := range []string{"<int>1</int>", "<int>2</int>", "<int>3</int>"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBuildCall_PreservesParameterOrder(t *testing.T) {
	out, err := BuildCall("m", []Member{
		{Name: "zulu", Value: 1},
		{Name: "alpha", Value: 2},
		{Name: "mike", Value: 3},
	})
	if err != nil {
		t.Fatalf("BuildCall: %v", err)
	}
	s := string(out)
	zulu := strings.Index(s, "<name>zulu</name>")
	alpha := strings.Index(s, "<name>alpha</name>")
	mike := strings.Index(s, "<name>mike</name>")
	if zulu == -1 || alpha == -1 || mike == -1 {
		t.Fatalf("missing member names:\n%s", s)
	}
	if !(zulu < alpha && alpha < mike) {
		t.Errorf("members out of order: zulu=%d alpha=%d mike=%d", zulu, alpha, mike)
	}
}

func TestBuildCall_MethodNameAndEnvelope(t *testing.T) {
	out, err := BuildCall("listAccountCDRs", []Member{{Name: "i_account", Value: 100}})
	if err != nil {
		t.Fatalf("BuildCall: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, xml.Header) {
		t.Error("output missing XML declaration")
	}
	for _, want := range []string{"<methodCall>", "<methodName>listAccountCDRs</methodName>", "<struct>", "</methodCall>"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

// TestRoundTrip builds a request with one value of each kind and decodes
// it back through the generic value decoder, checking the flat fields
// survive.
func TestRoundTrip(t *testing.T) {
	out, err := BuildCall("m", []Member{
		{Name: "count", Value: 3},
		{Name: "ratio", Value: 1.5},
		{Name: "label", Value: "ok"},
		{Name: "flag", Value: true},
		{Name: "tags", Value: []string{"x", "y"}},
	})
	if err != nil {
		t.Fatalf("BuildCall: %v", err)
	}

	var call methodCall
	if err := xml.Unmarshal(out, &call); err != nil {
		t.Fatalf("unmarshalling built request: %v", err)
	}
	if call.MethodName != "m" {
		t.Errorf("method name = %q, want m", call.MethodName)
	}
	if len(call.Params) != 1 || call.Params[0].Value.Struct == nil {
		t.Fatal("expected a single struct param")
	}

	fields, err := call.Params[0].Value.Struct.Fields()
	if err != nil {
		t.Fatalf("decoding fields: %v", err)
	}
	if got := fields.Int("count", -1); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	if got := fields.Float("ratio", -1); got != 1.5 {
		t.Errorf("ratio = %v, want 1.5", got)
	}
	if got := fields.String("label"); got != "ok" {
		t.Errorf("label = %q, want ok", got)
	}
	if !fields.Bool("flag") {
		t.Error("flag = false, want true")
	}
	tags, ok := fields["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %#v, want two elements", fields["tags"])
	}
}

const faultResponse = `<?xml version="1.0"?>
<methodResponse>
  <fault>
    <value>
      <struct>
        <member><name>faultCode</name><value><int>403</int></value></member>
        <member><name>faultString</name><value><string>Authentication failed</string></value></member>
      </struct>
    </value>
  </fault>
</methodResponse>`

func TestParse_Fault(t *testing.T) {
	_, err := Parse([]byte(faultResponse))
	if err == nil {
		t.Fatal("expected fault error")
	}
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("error is %T, want *Fault", err)
	}
	if fault.Code != 403 {
		t.Errorf("fault code = %d, want 403", fault.Code)
	}
	if fault.Message != "Authentication failed" {
		t.Errorf("fault message = %q", fault.Message)
	}
}

func TestCheckFault(t *testing.T) {
	if err := CheckFault([]byte(faultResponse)); err == nil {
		t.Error("expected fault error")
	}

	ok := `<?xml version="1.0"?><methodResponse><params><param><value><string>OK</string></value></param></params></methodResponse>`
	if err := CheckFault([]byte(ok)); err != nil {
		t.Errorf("unexpected error for success response: %v", err)
	}
}

func TestCheckFault_CostIndependentOfResultSize(t *testing.T) {
	// The scan stops at the params marker, so a success response costs
	// the same no matter how much record data follows it.
	const record = `<value><struct>
  <member><name>cost</name><value><double>0.1</double></value></member>
  <member><name>duration</name><value><int>60</int></value></member>
  <member><name>cli</name><value><string>14155550100</string></value></member>
  <member><name>cld</name><value><string>442071234567</string></value></member>
</struct></value>`
	envelope := func(n int) []byte {
		return []byte(`<?xml version="1.0"?><methodResponse><params><param><value><struct>` +
			`<member><name>cdrs</name><value><array><data>` +
			strings.Repeat(record, n) +
			`</data></array></value></member>` +
			`</struct></value></param></params></methodResponse>`)
	}
	small := envelope(1)
	large := envelope(500)

	smallAllocs := testing.AllocsPerRun(20, func() {
		if err := CheckFault(small); err != nil {
			t.Fatalf("CheckFault: %v", err)
		}
	})
	largeAllocs := testing.AllocsPerRun(20, func() {
		if err := CheckFault(large); err != nil {
			t.Fatalf("CheckFault: %v", err)
		}
	})
	if largeAllocs > smallAllocs+8 {
		t.Errorf("allocations scale with result size: %.0f for 1 record, %.0f for 500", smallAllocs, largeAllocs)
	}
}

func TestDecodeFault(t *testing.T) {
	d := xml.NewDecoder(strings.NewReader(faultResponse))
	for {
		tok, err := d.Token()
		if err != nil {
			t.Fatalf("no fault element found: %v", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "fault" {
			continue
		}
		fault, err := DecodeFault(d, &se)
		if err != nil {
			t.Fatalf("DecodeFault: %v", err)
		}
		if fault.Code != 403 || fault.Message != "Authentication failed" {
			t.Errorf("fault fields wrong: %+v", fault)
		}
		return
	}
}

func TestParse_ScalarResult(t *testing.T) {
	body := `<?xml version="1.0"?><methodResponse><params><param><value><string>OK</string></value></param></params></methodResponse>`
	fields, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := fields.String("result"); got != "OK" {
		t.Errorf("result = %q, want OK", got)
	}
}

func TestParse_StructResult(t *testing.T) {
	body := `<?xml version="1.0"?>
<methodResponse><params><param><value><struct>
  <member><name>balance</name><value><double>12.5</double></value></member>
  <member><name>i_account</name><value><int>77</int></value></member>
  <member><name>blocked</name><value><boolean>0</boolean></value></member>
</struct></value></param></params></methodResponse>`
	fields, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := fields.Float("balance", -1); got != 12.5 {
		t.Errorf("balance = %v, want 12.5", got)
	}
	if got := fields.Int("i_account", -1); got != 77 {
		t.Errorf("i_account = %d, want 77", got)
	}
	if fields.Bool("blocked") {
		t.Error("blocked = true, want false")
	}
}

func TestParse_BareValueIsString(t *testing.T) {
	body := `<?xml version="1.0"?><methodResponse><params><param><value>plain</value></param></params></methodResponse>`
	fields, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := fields.String("result"); got != "plain" {
		t.Errorf("result = %q, want plain", got)
	}
}

func TestParse_MalformedXML(t *testing.T) {
	if _, err := Parse([]byte("<methodResponse><params>")); err == nil {
		t.Error("expected error for truncated document")
	}
}

func TestFieldsAccessors(t *testing.T) {
	f := Fields{
		"n":      7,
		"f":      2.5,
		"s":      "text",
		"b":      true,
		"flag":   1,
		"amount": "25.00",
		"id":     "100",
	}
	if f.Int("n", -1) != 7 || f.Int("f", -1) != 2 || f.Int("missing", -1) != -1 {
		t.Error("Int coercion wrong")
	}
	// String-tagged numerics coerce instead of collapsing to the default.
	if f.Int("id", -1) != 100 || f.Int("s", -1) != -1 {
		t.Error("Int string coercion wrong")
	}
	if f.Float("f", -1) != 2.5 || f.Float("n", -1) != 7 {
		t.Error("Float coercion wrong")
	}
	if f.Float("amount", -1) != 25.0 || f.Float("s", -1) != -1 {
		t.Error("Float string coercion wrong")
	}
	if f.String("s") != "text" || f.String("n") != "7" || f.String("missing") != "" {
		t.Error("String coercion wrong")
	}
	if !f.Bool("b") || !f.Bool("flag") || f.Bool("s") {
		t.Error("Bool coercion wrong")
	}
	if !f.Has("n") || f.Has("missing") {
		t.Error("Has wrong")
	}
}

package sippy

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/flowpbx/sippyctl/internal/xmlrpc"
)

// dashboardTimeout is shorter than the general deadline: dashboard widgets
// render on page load and a slow switch should fail fast there.
const dashboardTimeout = 10 * time.Second

// DashboardClient serves the operational dashboard: account info, CDR
// widget data, and call statistics. The CDR path uses a streaming parser
// that materializes only the five fields the widgets aggregate: CDR
// payloads carry dozens of fields per record and can run to thousands of
// records, so full-record parsing is wasted work here.
type DashboardClient struct {
	*Client
}

// NewDashboardClient builds a dashboard consumer for the given switch.
func NewDashboardClient(creds Credentials, opts ...Option) (*DashboardClient, error) {
	opts = append([]Option{WithTimeout(dashboardTimeout)}, opts...)
	c, err := NewClient(creds, opts...)
	if err != nil {
		return nil, err
	}
	return &DashboardClient{Client: c}, nil
}

// CDRWidgetRecord is the minimal projection of one call detail record.
// Only these five fields are ever populated; everything else in the wire
// record is skipped at parse time and never allocated.
type CDRWidgetRecord struct {
	Cost        float64
	Duration    float64
	Result      int
	Currency    string
	ConnectTime string
}

// AccountInfo fetches the raw account info XML. Higher-level XML handling
// is the caller's concern on this path.
func (c *DashboardClient) AccountInfo(ctx context.Context, accountID int) ([]byte, error) {
	return c.CallRaw(ctx, "getAccountInfo", []xmlrpc.Member{
		{Name: "i_account", Value: accountID},
	})
}

// CallStats fetches the raw call statistics XML, pass-through like
// AccountInfo.
func (c *DashboardClient) CallStats(ctx context.Context, accountID int) ([]byte, error) {
	return c.CallRaw(ctx, "getAccountCallStats", []xmlrpc.Member{
		{Name: "i_account", Value: accountID},
	})
}

// AccountCDRs fetches a page of call detail records projected down to the
// widget fields.
func (c *DashboardClient) AccountCDRs(ctx context.Context, accountID, offset, limit int) ([]CDRWidgetRecord, error) {
	const method = "listAccountCDRs"
	body, err := c.CallRaw(ctx, method, []xmlrpc.Member{
		{Name: "i_account", Value: accountID},
		{Name: "offset", Value: offset},
		{Name: "limit", Value: limit},
	})
	if err != nil {
		return nil, err
	}

	recs, err := parseCDRWidgets(body)
	if err != nil {
		return nil, c.wireError(method, body, err)
	}
	return recs, nil
}

// cdrWidgetFields is the projection whitelist.
func cdrWidgetField(name string) bool {
	switch name {
	case "cost", "duration", "result", "currency", "connect_time":
		return true
	}
	return false
}

// parseCDRWidgets streams through the response in a single pass: a fault
// element is decoded on its own and surfaced as the error, the result
// struct is walked member by member, and only the cdrs array's whitelisted
// fields are ever decoded into strings.
func parseCDRWidgets(data []byte) ([]CDRWidgetRecord, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Scalar or empty response: nothing billed yet.
				return nil, nil
			}
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "fault":
			fault, err := xmlrpc.DecodeFault(d, &se)
			if err != nil {
				return nil, err
			}
			return nil, fault
		case "struct":
			// The first struct outside a fault is the result struct.
			return scanResultStruct(d)
		}
	}
}

// scanResultStruct walks the result struct looking for the cdrs member.
// Every other member is skipped whole, so a nested member of the same
// name inside some struct- or array-valued sibling can never be matched.
func scanResultStruct(d *xml.Decoder) ([]CDRWidgetRecord, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("scanning result struct: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "member" {
				if err := d.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			recs, found, err := scanResultMember(d)
			if err != nil {
				return nil, err
			}
			if found {
				return recs, nil
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				// No cdrs member at all: nothing billed yet.
				return nil, nil
			}
		}
	}
}

// scanResultMember consumes one member of the result struct, returning
// the decoded records when the member is the cdrs array. Any other
// member's value subtree is skipped without decoding.
func scanResultMember(d *xml.Decoder) ([]CDRWidgetRecord, bool, error) {
	var (
		name  string
		recs  []CDRWidgetRecord
		found bool
	)
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, false, fmt.Errorf("scanning member: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if err := d.DecodeElement(&name, &t); err != nil {
					return nil, false, fmt.Errorf("decoding member name: %w", err)
				}
				name = strings.TrimSpace(name)
			case "value":
				if name == "cdrs" {
					if recs, err = scanCDRArray(d); err != nil {
						return nil, false, err
					}
					found = true
				} else if err := d.Skip(); err != nil {
					return nil, false, err
				}
			default:
				if err := d.Skip(); err != nil {
					return nil, false, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "member" {
				return recs, found, nil
			}
		}
	}
}

// scanCDRArray decodes the record structs inside the cdrs value. The
// decoder must be positioned just past the value start tag; a cdrs member
// that turns out not to hold an array yields zero records.
func scanCDRArray(d *xml.Decoder) ([]CDRWidgetRecord, error) {
	var recs []CDRWidgetRecord
	inArray := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("scanning cdrs array: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "array":
				inArray = true
			case "struct":
				if !inArray {
					if err := d.Skip(); err != nil {
						return nil, err
					}
					continue
				}
				rec, err := decodeCDRStruct(d)
				if err != nil {
					return nil, err
				}
				recs = append(recs, rec)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "array":
				if inArray {
					return recs, nil
				}
			case "value":
				if !inArray {
					return recs, nil
				}
			}
		}
	}
}

// decodeCDRStruct consumes one record struct, keeping only whitelisted
// members. The decoder must be positioned just past the struct start tag.
func decodeCDRStruct(d *xml.Decoder) (CDRWidgetRecord, error) {
	var rec CDRWidgetRecord
	for {
		tok, err := d.Token()
		if err != nil {
			return rec, fmt.Errorf("scanning cdr struct: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "member" {
				if err := d.Skip(); err != nil {
					return rec, err
				}
				continue
			}
			name, val, err := decodeProjectedMember(d)
			if err != nil {
				return rec, err
			}
			switch name {
			case "cost":
				rec.Cost = parseWidgetFloat(val)
			case "duration":
				rec.Duration = parseWidgetFloat(val)
			case "result":
				rec.Result = parseWidgetInt(val)
			case "currency":
				rec.Currency = val
			case "connect_time":
				rec.ConnectTime = val
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return rec, nil
			}
		}
	}
}

// decodeProjectedMember consumes one member element. The value text is
// decoded only when the member name is whitelisted; otherwise the value
// subtree is skipped.
func decodeProjectedMember(d *xml.Decoder) (name, val string, err error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return "", "", fmt.Errorf("scanning member: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if err := d.DecodeElement(&name, &t); err != nil {
					return "", "", fmt.Errorf("decoding member name: %w", err)
				}
				name = strings.TrimSpace(name)
			case "value":
				if cdrWidgetField(name) {
					val, err = decodeValueText(d)
					if err != nil {
						return "", "", err
					}
				} else if err := d.Skip(); err != nil {
					return "", "", err
				}
			default:
				if err := d.Skip(); err != nil {
					return "", "", err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "member" {
				return name, val, nil
			}
		}
	}
}

// decodeValueText reads the scalar content of a value element regardless
// of its type tag. The decoder must be positioned just past the value
// start tag; the value element is consumed through its end tag.
func decodeValueText(d *xml.Decoder) (string, error) {
	var text string
	for {
		tok, err := d.Token()
		if err != nil {
			return "", fmt.Errorf("scanning value: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			// The type element (<int>, <string>, ...).
			var s string
			if err := d.DecodeElement(&s, &t); err != nil {
				return "", fmt.Errorf("decoding value: %w", err)
			}
			text = s
		case xml.CharData:
			if text == "" {
				text = strings.TrimSpace(string(t))
			}
		case xml.EndElement:
			if t.Name.Local == "value" {
				return strings.TrimSpace(text), nil
			}
		}
	}
}

func parseWidgetFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseWidgetInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

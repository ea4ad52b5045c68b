package dns

import (
	"fmt"
	"strings"
)

// NewQuery builds a single-question query packet with the given
// transaction id, name, and type. recursionDesired controls the RD bit,
// set unless --norecurse is configured.
func NewQuery(id uint16, name string, qtype uint16, recursionDesired bool) Packet {
	var flags uint16
	if recursionDesired {
		flags |= RDFlag
	}
	return Packet{
		Header: Header{ID: id, Flags: flags},
		Questions: []Question{
			{Name: name, Type: qtype, Class: uint16(ClassIN)},
		},
	}
}

// TypeString returns the conventional short name for a record type
// (e.g. "A", "AAAA"), or "TYPE<n>" for anything not in enums.go.
func TypeString(t uint16) string {
	switch RecordType(t) {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypePTR:
		return "PTR"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeOPT:
		return "OPT"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}

// ParseType is the inverse of TypeString, accepting the conventional
// short name case-insensitively (`--types`/`-t`).
func ParseType(s string) (uint16, error) {
	switch strings.ToUpper(s) {
	case "A":
		return uint16(TypeA), nil
	case "NS":
		return uint16(TypeNS), nil
	case "CNAME":
		return uint16(TypeCNAME), nil
	case "SOA":
		return uint16(TypeSOA), nil
	case "PTR":
		return uint16(TypePTR), nil
	case "MX":
		return uint16(TypeMX), nil
	case "TXT":
		return uint16(TypeTXT), nil
	case "AAAA":
		return uint16(TypeAAAA), nil
	default:
		return 0, fmt.Errorf("unrecognized record type %q", s)
	}
}

// RdataString renders a record's data the way dig/massdns render it in
// their text output formats.
func (rr Record) RdataString() string {
	switch RecordType(rr.Type) {
	case TypeA:
		if s, ok := rr.IPv4(); ok {
			return s
		}
	case TypeAAAA:
		if s, ok := rr.IPv6(); ok {
			return s
		}
	case TypeCNAME, TypeNS, TypePTR:
		if s, ok := rr.Data.(string); ok {
			return s
		}
	case TypeMX:
		if mx, ok := rr.Data.(MXData); ok {
			return fmt.Sprintf("%d %s", mx.Preference, mx.Exchange)
		}
	case TypeTXT:
		switch t := rr.Data.(type) {
		case string:
			return fmt.Sprintf("%q", t)
		case []string:
			return fmt.Sprintf("%q", t)
		}
	}
	if b, ok := rr.Data.([]byte); ok {
		return fmt.Sprintf("\\# %d %x", len(b), b)
	}
	return fmt.Sprintf("%v", rr.Data)
}

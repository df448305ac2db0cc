package plistval

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/ipasign/ipasign/internal/ipasignerr"
)

const (
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	plistDoctype   = `<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n"
	dateLayout     = "2006-01-02T15:04:05Z"
)

// Marshal renders v (which must be a KindDict or KindArray root, as every
// real plist is) as an Apple-format XML property list.
func Marshal(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	buf.WriteString(plistDoctype)
	buf.WriteString(`<plist version="1.0">` + "\n")
	writeValue(&buf, v, 0)
	buf.WriteString("\n</plist>\n")
	return buf.Bytes(), nil
}

func indent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteByte('\t')
	}
}

func writeValue(buf *bytes.Buffer, v *Value, depth int) {
	if v == nil {
		buf.WriteString("<dict/>")
		return
	}
	switch v.Kind {
	case KindNull:
		buf.WriteString("<string></string>")
	case KindBool:
		b, _ := v.AsBool()
		if b {
			buf.WriteString("<true/>")
		} else {
			buf.WriteString("<false/>")
		}
	case KindInt:
		i, _ := v.AsInt()
		fmt.Fprintf(buf, "<integer>%d</integer>", i)
	case KindReal:
		f, _ := v.AsReal()
		fmt.Fprintf(buf, "<real>%s</real>", strconv.FormatFloat(f, 'g', -1, 64))
	case KindString:
		s, _ := v.AsString()
		buf.WriteString("<string>")
		xml.EscapeText(buf, []byte(s))
		buf.WriteString("</string>")
	case KindData:
		d, _ := v.AsData()
		buf.WriteString("<data>")
		buf.WriteString(base64.StdEncoding.EncodeToString(d))
		buf.WriteString("</data>")
	case KindDate:
		t, _ := v.AsDate()
		buf.WriteString("<date>")
		buf.WriteString(t.UTC().Format(dateLayout))
		buf.WriteString("</date>")
	case KindArray:
		arr, _ := v.AsArray()
		if len(arr) == 0 {
			buf.WriteString("<array/>")
			return
		}
		buf.WriteString("<array>\n")
		for _, item := range arr {
			indent(buf, depth+1)
			writeValue(buf, item, depth+1)
			buf.WriteString("\n")
		}
		indent(buf, depth)
		buf.WriteString("</array>")
	case KindDict:
		d, _ := v.AsDict()
		if d == nil || d.Len() == 0 {
			buf.WriteString("<dict/>")
			return
		}
		buf.WriteString("<dict>\n")
		for _, k := range d.Keys() {
			child, _ := d.Get(k)
			indent(buf, depth+1)
			buf.WriteString("<key>")
			xml.EscapeText(buf, []byte(k))
			buf.WriteString("</key>\n")
			indent(buf, depth+1)
			writeValue(buf, child, depth+1)
			buf.WriteString("\n")
		}
		indent(buf, depth)
		buf.WriteString("</dict>")
	}
}

// Unmarshal parses an Apple-format XML property list into a Value tree.
func Unmarshal(data []byte) (*Value, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	p := &parser{dec: dec}
	v, err := p.parseDocument()
	if err != nil {
		return nil, ipasignerr.New("plistval.Unmarshal", ipasignerr.KindMissingPlistField, "", err)
	}
	return v, nil
}

// parser walks the XML token stream one element at a time. It is a
// hand-rolled recursive-descent reader, not a generic XML-to-struct
// mapper: a plist's grammar is simple enough that this is both shorter
// and less surprising than reaching for encoding/xml's struct tags.
type parser struct {
	dec *xml.Decoder
}

func (p *parser) parseDocument() (*Value, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local == "plist" {
				return p.parseFirstChild()
			}
		}
	}
}

// parseFirstChild reads the single root value nested inside <plist>.
func (p *parser) parseFirstChild() (*Value, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return p.parseElement(t)
		case xml.EndElement:
			if t.Name.Local == "plist" {
				return Null(), nil
			}
		}
	}
}

func (p *parser) parseElement(start xml.StartElement) (*Value, error) {
	switch start.Name.Local {
	case "true":
		p.skipToEnd(start.Name)
		return Bool(true), nil
	case "false":
		p.skipToEnd(start.Name)
		return Bool(false), nil
	case "string":
		s, err := p.readCharData(start.Name)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case "integer":
		s, err := p.readCharData(start.Name)
		if err != nil {
			return nil, err
		}
		i, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("invalid <integer>%s</integer>: %w", s, convErr)
		}
		return Int(i), nil
	case "real":
		s, err := p.readCharData(start.Name)
		if err != nil {
			return nil, err
		}
		f, convErr := strconv.ParseFloat(s, 64)
		if convErr != nil {
			return nil, fmt.Errorf("invalid <real>%s</real>: %w", s, convErr)
		}
		return Real(f), nil
	case "data":
		s, err := p.readCharData(start.Name)
		if err != nil {
			return nil, err
		}
		decoded, decErr := base64.StdEncoding.DecodeString(stripWhitespace(s))
		if decErr != nil {
			return nil, fmt.Errorf("invalid <data>: %w", decErr)
		}
		return Data(decoded), nil
	case "date":
		s, err := p.readCharData(start.Name)
		if err != nil {
			return nil, err
		}
		t, parseErr := time.Parse(dateLayout, s)
		if parseErr != nil {
			t, parseErr = time.Parse(time.RFC3339, s)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid <date>%s</date>: %w", s, parseErr)
			}
		}
		return Date(t), nil
	case "array":
		return p.parseArray(start.Name)
	case "dict":
		return p.parseDict(start.Name)
	default:
		return nil, fmt.Errorf("unexpected plist element <%s>", start.Name.Local)
	}
}

func (p *parser) parseArray(name xml.Name) (*Value, error) {
	var items []*Value
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := p.parseElement(t)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		case xml.EndElement:
			if t.Name == name {
				return Array(items...), nil
			}
		}
	}
}

func (p *parser) parseDict(name xml.Name) (*Value, error) {
	d := NewDict()
	var pendingKey string
	haveKey := false
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "key" {
				k, err := p.readCharData(t.Name)
				if err != nil {
					return nil, err
				}
				pendingKey = k
				haveKey = true
				continue
			}
			v, err := p.parseElement(t)
			if err != nil {
				return nil, err
			}
			if haveKey {
				d.Set(pendingKey, v)
				haveKey = false
			}
		case xml.EndElement:
			if t.Name == name {
				return DictValue(d), nil
			}
		}
	}
}

func (p *parser) readCharData(name xml.Name) (string, error) {
	var buf bytes.Buffer
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if t.Name == name {
				return buf.String(), nil
			}
		}
	}
}

func (p *parser) skipToEnd(name xml.Name) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name == name {
			return
		}
	}
}

func stripWhitespace(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

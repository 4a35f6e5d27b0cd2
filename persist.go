// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// xlsxPivotCacheDefinition directly maps the pivotCacheDefinition element.
type xlsxPivotCacheDefinition struct {
	XMLName          xml.Name        `xml:"http://schemas.openxmlformats.org/spreadsheetml/2006/main pivotCacheDefinition"`
	UID              string          `xml:"uid,attr,omitempty"`
	RefreshedDateIso string          `xml:"refreshedDateIso,attr,omitempty"`
	RecordCount      int             `xml:"recordCount,attr"`
	CacheSource      xlsxCacheSource `xml:"cacheSource"`
	CacheFields      xlsxCacheFields `xml:"cacheFields"`
}

// xlsxCacheSource directly maps the cacheSource element.
type xlsxCacheSource struct {
	Type            string              `xml:"type,attr"`
	WorksheetSource xlsxWorksheetSource `xml:"worksheetSource"`
}

// xlsxWorksheetSource directly maps the worksheetSource element.
type xlsxWorksheetSource struct {
	Ref   string `xml:"ref,attr"`
	Sheet string `xml:"sheet,attr,omitempty"`
}

// xlsxCacheFields directly maps the cacheFields element.
type xlsxCacheFields struct {
	Count      int              `xml:"count,attr"`
	CacheField []xlsxCacheField `xml:"cacheField"`
}

// xlsxCacheField directly maps the cacheField element.
type xlsxCacheField struct {
	Name        string          `xml:"name,attr"`
	NumFmtID    int             `xml:"numFmtId,attr"`
	SharedItems xlsxSharedItems `xml:"sharedItems"`
}

// xlsxSharedItems maps the sharedItems element, whose children are typed
// value elements: b, d, e, m, n and s.
type xlsxSharedItems struct {
	Values []CacheValue
}

// xlsxPivotCacheRecords directly maps the pivotCacheRecords element.
type xlsxPivotCacheRecords struct {
	XMLName xml.Name     `xml:"http://schemas.openxmlformats.org/spreadsheetml/2006/main pivotCacheRecords"`
	Count   int          `xml:"count,attr"`
	R       []xlsxRecord `xml:"r"`
}

// xlsxRecord maps one r element of the cache records: typed value elements,
// with x referencing a shared item.
type xlsxRecord struct {
	Values []CacheValue
}

// MarshalXML writes the shared items with their count.
func (s xlsxSharedItems) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "count"}, Value: fmt.Sprint(len(s.Values))})
	return encodeValues(e, start, s.Values)
}

// UnmarshalXML reads the shared items, which can't hold references.
func (s *xlsxSharedItems) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	values, err := decodeValues(d)
	if err != nil {
		return err
	}
	for _, v := range values {
		if v.Type == TypeSharedRef {
			return fmt.Errorf("%w: shared reference inside shared items", ErrUnknownValueType)
		}
	}
	s.Values = values
	return nil
}

// MarshalXML writes one record.
func (r xlsxRecord) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return encodeValues(e, start, r.Values)
}

// UnmarshalXML reads one record.
func (r *xlsxRecord) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	values, err := decodeValues(d)
	r.Values = values
	return err
}

func encodeValues(e *xml.Encoder, start xml.StartElement, values []CacheValue) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range values {
		el := xml.StartElement{Name: xml.Name{Local: v.Type.String()}}
		if v.Type != TypeMissing {
			el.Attr = []xml.Attr{{Name: xml.Name{Local: "v"}, Value: v.attr()}}
		}
		if err := e.EncodeToken(el); err != nil {
			return err
		}
		if err := e.EncodeToken(el.End()); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// decodeValues reads typed value elements up to the end of the enclosing
// element.
func decodeValues(d *xml.Decoder) ([]CacheValue, error) {
	var values []CacheValue
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			typ, ok := parseValueType(t.Name.Local)
			if !ok {
				return nil, fmt.Errorf("%w: element %q", ErrUnknownValueType, t.Name.Local)
			}
			var attr string
			for _, a := range t.Attr {
				if a.Name.Local == "v" {
					attr = a.Value
				}
			}
			v, err := parseCacheValue(typ, attr)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if err := d.Skip(); err != nil {
				return nil, err
			}
		case xml.EndElement:
			return values, nil
		}
	}
}

// WriteCacheDefinition writes the cache definition part: the source, the
// fields and their shared items.
func WriteCacheDefinition(w io.Writer, c *CacheDefinition) error {
	if c == nil {
		return fmt.Errorf("%w: cache definition", ErrParameterRequired)
	}
	def := xlsxPivotCacheDefinition{
		UID:         c.ID,
		RecordCount: c.Records.Count,
		CacheSource: xlsxCacheSource{
			Type:            "worksheet",
			WorksheetSource: xlsxWorksheetSource{Ref: c.Source.Area(), Sheet: c.Source.Sheet},
		},
		CacheFields: xlsxCacheFields{Count: len(c.Fields)},
	}
	if !c.RefreshedAt.IsZero() {
		def.RefreshedDateIso = c.RefreshedAt.UTC().Format(dateLayout)
	}
	for _, field := range c.Fields {
		def.CacheFields.CacheField = append(def.CacheFields.CacheField, xlsxCacheField{
			Name:        field.Name,
			NumFmtID:    field.NumFmtID,
			SharedItems: xlsxSharedItems{Values: field.Items.Items()},
		})
	}
	return writeXML(w, def)
}

// WriteCacheRecords writes the cache records part.
func WriteCacheRecords(w io.Writer, c *CacheDefinition) error {
	if c == nil {
		return fmt.Errorf("%w: cache definition", ErrParameterRequired)
	}
	recs := xlsxPivotCacheRecords{Count: c.Records.Count, R: make([]xlsxRecord, len(c.Records.Records))}
	for i, record := range c.Records.Records {
		recs.R[i] = xlsxRecord{Values: record}
	}
	return writeXML(w, recs)
}

func writeXML(w io.Writer, v interface{}) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(v)
}

// LoadCache reads a cache definition part and its records part. Shared item
// indices, record order and the record count are kept as stored.
func LoadCache(definition, records io.Reader, locale *Locale) (*CacheDefinition, error) {
	if definition == nil || records == nil {
		return nil, fmt.Errorf("%w: cache parts", ErrParameterRequired)
	}
	var def xlsxPivotCacheDefinition
	if err := xml.NewDecoder(definition).Decode(&def); err != nil {
		return nil, fmt.Errorf("decode pivot cache definition: %w", err)
	}
	source, err := ParseRangeRef(def.CacheSource.WorksheetSource.Ref)
	if err != nil {
		return nil, err
	}
	source.Sheet = def.CacheSource.WorksheetSource.Sheet
	names := make([]string, len(def.CacheFields.CacheField))
	for i, field := range def.CacheFields.CacheField {
		names[i] = field.Name
	}
	c, err := NewCacheDefinition(source, names, locale)
	if err != nil {
		return nil, err
	}
	if def.UID != "" {
		c.ID = def.UID
	}
	if def.RefreshedDateIso != "" {
		if c.RefreshedAt, err = time.Parse(dateLayout, def.RefreshedDateIso); err != nil {
			return nil, fmt.Errorf("%w: refreshed date %q", ErrParameterInvalid, def.RefreshedDateIso)
		}
	}
	for i, field := range def.CacheFields.CacheField {
		c.Fields[i].NumFmtID = field.NumFmtID
		for _, v := range field.SharedItems.Values {
			c.Fields[i].Items.appendValue(v)
			if v.Type != TypeText {
				c.Fields[i].Indexed = true
			}
		}
	}
	var recs xlsxPivotCacheRecords
	if err := xml.NewDecoder(records).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode pivot cache records: %w", err)
	}
	if recs.Count != len(recs.R) || (def.RecordCount != 0 && def.RecordCount != recs.Count) {
		return nil, fmt.Errorf("%w: record count %d, %d records", ErrSourceShape, recs.Count, len(recs.R))
	}
	c.Records.Records = make([]CacheRecord, len(recs.R))
	for i, r := range recs.R {
		if len(r.Values) != len(c.Fields) {
			return nil, fmt.Errorf("%w: record %d has %d values for %d fields", ErrSourceShape, i, len(r.Values), len(c.Fields))
		}
		for col, v := range r.Values {
			if v.Type != TypeSharedRef {
				continue
			}
			if _, err := c.Fields[col].Items.Get(v.Index); err != nil {
				return nil, fmt.Errorf("record %d: %w", i, newFieldError(col, c.Fields[col].Name, err))
			}
		}
		c.Records.Records[i] = CacheRecord(r.Values)
	}
	c.Records.Count = recs.Count
	return c, nil
}

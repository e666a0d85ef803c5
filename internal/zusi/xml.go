package zusi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"

	"golang.org/x/net/html/charset"
)

// serviceDoc is the subset of a *.timetable.xml file the extractor reads.
type serviceDoc struct {
	XMLName      xml.Name       `xml:"Zusi"`
	Buchfahrplan []buchfahrplan `xml:"Buchfahrplan"`
}

type buchfahrplan struct {
	Gattung string     `xml:"Gattung,attr"`
	Nummer  string     `xml:"Nummer,attr"`
	BR      string     `xml:"BR,attr"`
	Laenge  string     `xml:"Laenge,attr"`
	Masse   string     `xml:"Masse,attr"`
	Zuglauf string     `xml:"Zuglauf,attr"`
	Zeilen  []fplZeile `xml:"FplZeile"`
}

type fplZeile struct {
	Laufweg string `xml:"FplLaufweg,attr"`
}

// trainDoc is the subset of a *.trn file the extractor reads.
type trainDoc struct {
	XMLName xml.Name `xml:"Zusi"`
	Zug     []zug    `xml:"Zug"`
}

type zug struct {
	Zugtyp         string            `xml:"Zugtyp,attr"`
	FahrplanGruppe string            `xml:"FahrplanGruppe,attr"`
	Eintraege      []fahrplanEintrag `xml:"FahrplanEintrag"`
}

type fahrplanEintrag struct {
	Betrst           string     `xml:"Betrst,attr"`
	Ank              string     `xml:"Ank,attr"`
	Abf              string     `xml:"Abf,attr"`
	FzgVerbandAktion string     `xml:"FzgVerbandAktion,attr"`
	Ereignisse       []ereignis `xml:"Ereignis"`
}

type ereignis struct{}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeXML decodes a Zusi document. Declared non-UTF-8 encodings are
// converted on the fly. Entities declared in a DTD are not expanded, so in
// strict mode any reference beyond the five predefined ones is a syntax
// error.
func decodeXML(data []byte, v any) error {
	data = bytes.TrimPrefix(data, utf8BOM)

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

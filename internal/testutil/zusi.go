package testutil

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Stop is one FahrplanEintrag of a fixture train.
type Stop struct {
	Station    string
	Arrival    string // "2006-01-02 15:04:05", "2006-01-02" or empty
	Departure  string
	Turnaround bool
	Event      bool
}

// Part is one Buchfahrplan element of a fixture service.
type Part struct {
	Category   string
	Number     string
	Locomotive string
	Length     string
	Mass       string
	Line       string
	Distances  []string // FplLaufweg of each FplZeile
}

// Service describes a Zusi service as a pair of timetable and train files.
type Service struct {
	Parts     []Part
	TrainType string // Zugtyp; empty for cargo
	Group     string // FahrplanGruppe
	Stops     []Stop
}

// HamburgKasselRel is where HamburgKassel is written below a root.
const HamburgKasselRel = "Deutschland/Hamburg - Kassel/ICE_Fahrplan/ICE 71.timetable.xml"

// HamburgKassel is a well-formed passenger service used across tests.
//
// Expected record: route "Hamburg - Kassel", locomotive "BR 412 (ICE 4)",
// entry point "Hamburg Hbf", end "Kassel Hbf", 3 planned stops,
// duration 2:35:00, 307 km, 119 km/h.
func HamburgKassel() Service {
	return Service{
		Parts: []Part{{
			Category:   "ICE",
			Number:     "71",
			Locomotive: "BR 412 (ICE 4)",
			Length:     "346.0",
			Mass:       "457000",
			Line:       "Hamburg-Altona - Kassel-Wilhelmshöhe",
			Distances:  []string{"0", "150000", "307500.5"},
		}},
		TrainType: "1",
		Group:     "ICE",
		Stops: []Stop{
			{Station: "Hamburg Hbf", Departure: "2024-01-01 08:00:00"},
			{Station: "Sbk 12", Departure: "2024-01-01 08:10:00"},
			{Station: "Hannover Hbf", Arrival: "2024-01-01 09:15:00", Departure: "2024-01-01 09:18:00", Event: true},
			{Station: "Göttingen", Arrival: "2024-01-01 10:00:00", Departure: "2024-01-01 10:02:00"},
			{Station: "Kassel Hbf", Arrival: "2024-01-01 10:30:00", Departure: "2024-01-01 10:35:00", Turnaround: true},
		},
	}
}

// ServiceXML renders the *.timetable.xml document.
func (s Service) ServiceXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Zusi>\n")
	b.WriteString(`  <Info DateiTyp="Buchfahrplan" Version="A.1" MinVersion="A.1"/>` + "\n")
	for _, p := range s.Parts {
		b.WriteString("  <Buchfahrplan")
		attr(&b, "Gattung", p.Category)
		attr(&b, "Nummer", p.Number)
		attr(&b, "BR", p.Locomotive)
		attr(&b, "Laenge", p.Length)
		attr(&b, "Masse", p.Mass)
		attr(&b, "Zuglauf", p.Line)
		b.WriteString(">\n")
		for _, d := range p.Distances {
			b.WriteString("    <FplZeile")
			attr(&b, "FplLaufweg", d)
			b.WriteString("/>\n")
		}
		b.WriteString("  </Buchfahrplan>\n")
	}
	b.WriteString("</Zusi>\n")
	return b.String()
}

// TrainXML renders the *.trn document.
func (s Service) TrainXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Zusi>\n")
	b.WriteString("  <Zug")
	attr(&b, "Zugtyp", s.TrainType)
	attr(&b, "FahrplanGruppe", s.Group)
	b.WriteString(">\n")
	for _, st := range s.Stops {
		b.WriteString("    <FahrplanEintrag")
		attr(&b, "Betrst", st.Station)
		attr(&b, "Ank", st.Arrival)
		attr(&b, "Abf", st.Departure)
		if st.Turnaround {
			attr(&b, "FzgVerbandAktion", "2")
		}
		if st.Event {
			b.WriteString(">\n      <Ereignis Er=\"6\"/>\n    </FahrplanEintrag>\n")
			continue
		}
		b.WriteString("/>\n")
	}
	b.WriteString("  </Zug>\n</Zusi>\n")
	return b.String()
}

// attr writes ` name="value"`, omitting empty values.
func attr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(" " + name + `="`)
	_ = xml.EscapeText(b, []byte(value))
	b.WriteString(`"`)
}

// WriteService writes the service and its train file below root.
// rel is the slash-separated path of the *.timetable.xml file.
// Returns the absolute path of the service file.
func WriteService(t testing.TB, root, rel string, s Service) string {
	t.Helper()
	path := WriteFile(t, root, rel, s.ServiceXML())
	WriteFile(t, root, strings.TrimSuffix(rel, ".timetable.xml")+".trn", s.TrainXML())
	return path
}

// WriteFile writes content to root/rel, creating directories as needed.
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

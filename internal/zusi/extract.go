package zusi

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/zugdienste/internal/ir"
)

// Zusi timestamp layouts, full first.
const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// turnaroundAction is the FzgVerbandAktion value for a change of direction.
const turnaroundAction = "2"

// Source locates a service file below its root.
type Source struct {
	Path   string    // absolute path of the service file
	Rel    string    // slash-separated path relative to the root
	Origin ir.Origin
}

// Options configures extraction.
type Options struct {
	ServiceSuffix     string
	TrainSuffix       string
	ExclusionKeywords []string // lower-case
}

// Extractor turns service files into records.
type Extractor struct {
	opts       Options
	classifier *Classifier
}

// NewExtractor creates an extractor. A nil classifier gets a default one.
func NewExtractor(opts Options, classifier *Classifier) (*Extractor, error) {
	if classifier == nil {
		c, err := NewClassifier(0)
		if err != nil {
			return nil, fmt.Errorf("new classifier: %w", err)
		}
		classifier = c
	}
	return &Extractor{opts: opts, classifier: classifier}, nil
}

// TrainPath returns the companion train file of a service file.
func (x *Extractor) TrainPath(servicePath string) string {
	return trimSuffixFold(servicePath, x.opts.ServiceSuffix) + x.opts.TrainSuffix
}

// Extract reads the service file and its train file and parses them.
// It never returns a partial record: on error the record is zero.
func (x *Extractor) Extract(src Source) (ir.ServiceRecord, error) {
	if kw, ok := x.excludedBy(src.Rel); ok {
		return ir.ServiceRecord{}, &ExcludedError{Path: src.Path, Keyword: kw, Field: "path"}
	}

	// #nosec G304 -- paths come from walking the configured roots
	service, err := os.ReadFile(src.Path)
	if err != nil {
		return ir.ServiceRecord{}, &ParseError{Path: src.Path, Err: err}
	}

	trainPath := x.TrainPath(src.Path)
	// #nosec G304 -- sibling of a walked file
	train, err := os.ReadFile(trainPath)
	if err != nil {
		return ir.ServiceRecord{}, parseErr(src.Path, ErrMissingTrainFile, err)
	}

	return x.Parse(src, service, train)
}

// Parse builds a record from the two file contents. It performs no I/O.
func (x *Extractor) Parse(src Source, serviceData, trainData []byte) (ir.ServiceRecord, error) {
	if kw, ok := x.excludedBy(src.Rel); ok {
		return ir.ServiceRecord{}, &ExcludedError{Path: src.Path, Keyword: kw, Field: "path"}
	}

	var doc serviceDoc
	if err := decodeXML(serviceData, &doc); err != nil {
		return ir.ServiceRecord{}, parseErr(src.Path, ErrMalformedXML, err)
	}
	if len(doc.Buchfahrplan) == 0 {
		return ir.ServiceRecord{}, parseErr(src.Path, ErrNoTimetable, nil)
	}

	var trn trainDoc
	if err := decodeXML(trainData, &trn); err != nil {
		return ir.ServiceRecord{}, parseErr(src.Path, ErrMalformedXML, fmt.Errorf("train file: %w", err))
	}
	if len(trn.Zug) == 0 {
		return ir.ServiceRecord{}, parseErr(src.Path, ErrNoTrain, nil)
	}
	train := trn.Zug[0]

	if kw, ok := x.containsKeyword(train.FahrplanGruppe); ok {
		return ir.ServiceRecord{}, &ExcludedError{Path: src.Path, Keyword: kw, Field: "timetable_group"}
	}

	rec := ir.ServiceRecord{
		SourcePath:     filepath.ToSlash(filepath.Clean(src.Path)),
		Origin:         src.Origin,
		Kind:           ir.KindCargo,
		TimetableGroup: strings.TrimSpace(train.FahrplanGruppe),
		ContentHash:    ir.ContentHash(serviceData, trainData),
	}
	rec.Country, rec.Route, rec.Timetable, rec.ServiceName = x.location(src.Rel)

	// Zugtyp 0 is Zusi's own code for a freight train.
	if train.Zugtyp != "" && train.Zugtyp != "0" {
		rec.Kind = ir.KindPassenger
	}

	if len(train.Eintraege) < 2 {
		return ir.ServiceRecord{}, parseErr(src.Path, ErrTooFewEntries, nil)
	}

	if err := applyTimetable(&rec, doc.Buchfahrplan); err != nil {
		return ir.ServiceRecord{}, &ParseError{Path: src.Path, Err: err}
	}

	if err := x.applyRoute(&rec, train.Eintraege, doc.Buchfahrplan); err != nil {
		return ir.ServiceRecord{}, &ParseError{Path: src.Path, Err: err}
	}

	return rec, nil
}

// applyTimetable copies the Buchfahrplan header. Multi-part services
// join their numbers with "_" and their lines with " -> ".
func applyTimetable(rec *ir.ServiceRecord, parts []buchfahrplan) error {
	first := parts[0]
	rec.Category = strings.TrimSpace(first.Gattung)
	rec.Locomotive = strings.TrimSpace(first.BR)

	length, err := parseNumber(first.Laenge)
	if err != nil {
		return fmt.Errorf("%w: Laenge %q", ErrInvalidNumber, first.Laenge)
	}
	rec.LengthM = int64(length)

	mass, err := parseNumber(first.Masse)
	if err != nil {
		return fmt.Errorf("%w: Masse %q", ErrInvalidNumber, first.Masse)
	}
	rec.MassT = int64(mass / 1000)

	numbers := make([]string, 0, len(parts))
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		numbers = append(numbers, strings.TrimSpace(p.Nummer))
		lines = append(lines, strings.TrimSpace(p.Zuglauf))
	}
	rec.TrainNumber = strings.Join(numbers, "_")
	rec.Line = strings.Join(lines, " -> ")

	return nil
}

// entry is one decoded FahrplanEintrag.
type entry struct {
	name       string
	arrival    *time.Time
	departure  *time.Time
	hasEvent   bool
	turnaround bool
}

func (e entry) valid() bool       { return e.name != "" && e.departure != nil }
func (e entry) plannedStop() bool { return e.valid() && e.arrival != nil }

// applyRoute derives start, end, stops and speed from the train entries.
func (x *Extractor) applyRoute(rec *ir.ServiceRecord, rows []fahrplanEintrag, parts []buchfahrplan) error {
	var route []entry
	for _, row := range rows {
		e, err := decodeEntry(row)
		if err != nil {
			return err
		}
		if e.hasEvent {
			rec.HasEvents = true
		}
		if e.turnaround {
			rec.Turnarounds++
		}
		if e.valid() {
			route = append(route, e)
		}
	}

	if len(route) < 2 {
		return ErrNoValidRoute
	}

	start := route[0]
	rest := route[1:]
	end := rest[len(rest)-1]

	var stops []string
	for _, e := range rest {
		if e.plannedStop() {
			stops = append(stops, e.name)
		}
	}

	distance, err := runningDistance(parts)
	if err != nil {
		return err
	}

	duration := end.departure.Sub(*start.departure)
	if duration < 0 {
		return fmt.Errorf("%w: %s -> %s", ErrNegativeDuration, start.departure.Format(layoutDateTime), end.departure.Format(layoutDateTime))
	}

	rec.EntryPoint = start.name
	rec.EndStation = end.name
	rec.StartKind = x.classifier.Classify(start.name)
	rec.EndKind = x.classifier.Classify(end.name)
	rec.StartTime = start.departure.Format("15:04")
	rec.EndTime = end.departure.Format("15:04")
	rec.Duration = formatDuration(duration)
	rec.StopCount = int64(len(stops))
	rec.Stops = strings.Join(stops, ", ")
	rec.DistanceKm = distance / 1000
	if secs := int64(duration / time.Second); secs > 0 {
		rec.AvgSpeedKmh = int64(float64(distance) / float64(secs) * 3.6)
	}

	return nil
}

func decodeEntry(row fahrplanEintrag) (entry, error) {
	arr, err := parseTime(row.Ank)
	if err != nil {
		return entry{}, err
	}
	dep, err := parseTime(row.Abf)
	if err != nil {
		return entry{}, err
	}
	return entry{
		name:       normalizeName(row.Betrst),
		arrival:    arr,
		departure:  dep,
		hasEvent:   len(row.Ereignisse) > 0,
		turnaround: row.FzgVerbandAktion == turnaroundAction,
	}, nil
}

// runningDistance returns the FplLaufweg of the last FplZeile across all
// Buchfahrplan parts, in metres. An empty attribute counts as zero.
func runningDistance(parts []buchfahrplan) (int64, error) {
	var last *fplZeile
	for i := range parts {
		if n := len(parts[i].Zeilen); n > 0 {
			last = &parts[i].Zeilen[n-1]
		}
	}
	if last == nil {
		return 0, ErrNoRunningDistance
	}
	d, err := parseNumber(last.Laufweg)
	if err != nil {
		return 0, fmt.Errorf("%w: FplLaufweg %q", ErrInvalidNumber, last.Laufweg)
	}
	return int64(d), nil
}

// parseTime accepts both Zusi timestamp layouts. Empty means absent.
func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// parseNumber parses a decimal attribute. Empty means zero.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// formatDuration renders d as H:MM:SS with unbounded hours.
func formatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// location splits a root-relative service path into its
// <country>/<route>/.../<timetable>/<service> components.
func (x *Extractor) location(rel string) (country, route, timetable, service string) {
	parts := strings.Split(strings.Trim(rel, "/"), "/")
	dirs := parts[:len(parts)-1]
	service = trimSuffixFold(parts[len(parts)-1], x.opts.ServiceSuffix)

	if len(dirs) >= 1 {
		country = dirs[0]
	}
	if len(dirs) >= 2 {
		route = dirs[1]
	}
	if len(dirs) >= 3 {
		timetable = dirs[len(dirs)-1]
	}
	return country, route, timetable, service
}

func (x *Extractor) excludedBy(rel string) (string, bool) {
	return x.containsKeyword(rel)
}

func (x *Extractor) containsKeyword(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	for _, kw := range x.opts.ExclusionKeywords {
		if kw != "" && strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

func trimSuffixFold(s, suffix string) string {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)]
	}
	return s
}

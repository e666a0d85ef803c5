// Package zusi extracts service records from Zusi 3 timetable files.
//
// A drivable service is stored by the simulator as two sibling files:
//
//	<name>.timetable.xml  the Buchfahrplan (category, number, vehicle, distances)
//	<name>.trn            the train (type, timetable group, station entries)
//
// Parse is a pure function of those two file contents plus the service's
// location below its root; Extractor.Extract adds the file reads. Files
// that cannot be turned into a record yield a *ParseError or an
// *ExcludedError and never a partial record.
package zusi

// Package harness runs end-to-end scan scenarios.
//
// A scenario builds a throwaway installation root (and optionally a user
// root) from fixtures, runs one or more scans through the ingest pipeline
// and checks the summaries and the stored catalogue.
//
// # Scenario Format
//
//	name: fault_isolation
//	description: "A broken file is skipped, the rest is ingested"
//	config:
//	  workers: 2
//	  exclusion_keywords: [test]
//	installation:
//	  - path: Deutschland/Hamburg - Kassel/ICE_Fahrplan/ICE 71.timetable.xml
//	    fixture: hamburg_kassel
//	  - path: Deutschland/Broken/F/Bad.timetable.xml
//	    content: "<Zusi><Buchfahrplan"
//	rescans:
//	  - remove: [Deutschland/Hamburg - Kassel/ICE_Fahrplan/ICE 71.timetable.xml]
//	    prune: true
//	assertions:
//	  - type: summary
//	    scan: 1
//	    expect: { inserted: 1, skipped: 1 }
//	  - type: service
//	    path: Deutschland/Hamburg - Kassel/ICE_Fahrplan/ICE 71.timetable.xml
//	    expect: { route: "Hamburg - Kassel", distance_km: 307 }
//
// # Assertion Types
//
//   - summary: subset match against the JSON summary of a scan (1-based,
//     0 means the last scan)
//   - service: subset match against a stored record
//   - absent: the record is not stored
//   - service_count: number of stored records
//
// # Determinism
//
// Every scan runs with a fixed clock and sequential run IDs (scan-1,
// scan-2, ...), so the golden snapshots in testdata/golden only change
// when extraction or ingest behavior changes. Regenerate them with:
//
//	go test ./internal/harness -update
package harness

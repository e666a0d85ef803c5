// Package config loads and validates the zugdienste configuration.
//
// Configuration is resolved with precedence env > file > defaults:
//
//	paths:
//	  installation_path: C:/Program Files/Zusi3/_ZusiData/Timetables
//	  user_path: C:/Users/me/Documents/Zusi3/Timetables
//	database: zugdienste.db
//
// The file is decoded strictly (unknown keys and trailing documents are
// rejected) and the merged result is checked against an embedded CUE
// schema. Load returns a plain Config value; callers pass it explicitly to
// the scanner, the pipeline and the store. There is no package-level state.
package config

package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks a resolved configuration against the embedded schema.
// Callers that change a loaded Config (e.g. from flags) validate it again.
func Validate(cfg Config) error {
	if cfg.Paths.InstallationPath == "" {
		return &ConfigurationError{Field: "paths.installation_path", Message: "is required"}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(toMap(cfg)))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return &ConfigurationError{
			Field:   firstPath(err),
			Message: strings.TrimSpace(cueerrors.Details(err, nil)),
		}
	}

	return nil
}

// toMap renders cfg with the same keys the YAML file uses.
func toMap(cfg Config) map[string]any {
	paths := map[string]any{
		"installation_path": cfg.Paths.InstallationPath,
	}
	if cfg.Paths.UserPath != "" {
		paths["user_path"] = cfg.Paths.UserPath
	}

	keywords := make([]any, 0, len(cfg.ExclusionKeywords))
	for _, kw := range cfg.ExclusionKeywords {
		keywords = append(keywords, kw)
	}

	return map[string]any{
		"paths":              paths,
		"database":           cfg.Database,
		"service_suffix":     cfg.ServiceSuffix,
		"train_suffix":       cfg.TrainSuffix,
		"exclusion_keywords": keywords,
		"workers":            cfg.Workers,
		"prune":              cfg.Prune,
		"metrics_file":       cfg.MetricsFile,
	}
}

// firstPath returns the dotted path of the first schema violation.
func firstPath(err error) string {
	for _, e := range cueerrors.Errors(err) {
		if p := e.Path(); len(p) > 0 {
			if p[0] == "#Config" {
				p = p[1:]
			}
			return strings.Join(p, ".")
		}
	}
	return ""
}

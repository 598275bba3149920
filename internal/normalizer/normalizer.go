// Package normalizer maps raw extracted listing records into canonical
// records, resolving URL fields against the site's base URL and applying
// declarative field validation and defaults.
package normalizer

import (
	"fmt"

	"github.com/marvst/properties-scraper/internal/canonical"
	"github.com/marvst/properties-scraper/internal/config"
	"github.com/marvst/properties-scraper/internal/logger"
	"github.com/marvst/properties-scraper/internal/models"
	"github.com/marvst/properties-scraper/pkg/utils"
)

// Normalizer converts raw records for one site into canonical records.
// It holds no mutable state and is safe for concurrent use on
// independent records.
type Normalizer struct {
	cfg    *config.SiteConfig
	logger *logger.Logger
}

// NewNormalizer creates a normalizer for a validated site configuration.
func NewNormalizer(cfg *config.SiteConfig, log *logger.Logger) *Normalizer {
	return &Normalizer{
		cfg:    cfg,
		logger: log,
	}
}

// Normalize produces a canonical record, or a rejection when the record
// cannot be represented. A rejected record is never stored partially.
func (n *Normalizer) Normalize(raw models.RawRecord) (*models.CanonicalRecord, *models.Rejection) {
	mapping := n.cfg.Mapping

	for _, required := range mapping.Required {
		if !present(raw[required]) {
			return nil, &models.Rejection{
				Record: raw,
				Field:  required,
				Reason: models.ReasonIncompleteRecord,
				Err:    fmt.Errorf("required field %q is missing", required),
			}
		}
	}

	primaryRaw, _ := raw[mapping.PrimaryURL].(string)

	primaryURL, err := canonical.Resolve(primaryRaw, n.cfg.Base())
	if err != nil {
		return nil, n.rejectPrimary(raw, err)
	}

	key, err := canonical.IdentityKey(primaryURL)
	if err != nil {
		return nil, n.rejectPrimary(raw, err)
	}

	fields := make(map[string]any, len(raw))

	for name, value := range raw {
		if s, ok := value.(string); ok {
			fields[name] = utils.NormalizeWhitespace(s)
			continue
		}

		fields[name] = value
	}

	fields[mapping.PrimaryURL] = primaryURL

	for _, name := range mapping.URLFields {
		if name == mapping.PrimaryURL {
			continue
		}

		n.resolveURLField(fields, name)
	}

	if mapping.Images.Field != "" {
		if images, ok := fields[mapping.Images.Field].([]any); ok && len(images) > 0 {
			if main, ok := images[0].(string); ok {
				fields[mapping.Images.MainField] = main
			}
		}
	}

	for _, nf := range mapping.Numeric {
		n.parseNumericField(fields, nf)
	}

	for _, cf := range mapping.Computed {
		computeSum(fields, cf)
	}

	return &models.CanonicalRecord{
		IdentityKey: key,
		PrimaryURL:  primaryURL,
		Fields:      fields,
		ContentHash: models.ContentHash(fields),
	}, nil
}

// resolveURLField canonicalizes a secondary URL field in place. A field
// that fails canonicalization is dropped from the record; the record
// itself survives, since a listing with a broken photo link is still a
// valid listing. List-valued fields drop only the failing elements.
func (n *Normalizer) resolveURLField(fields map[string]any, name string) {
	switch value := fields[name].(type) {
	case string:
		resolved, err := canonical.Resolve(value, n.cfg.Base())
		if err != nil {
			n.logger.Debug("dropping unresolvable URL field", "field", name, "value", value)
			delete(fields, name)

			return
		}

		fields[name] = resolved

	case []any:
		kept := make([]any, 0, len(value))

		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				continue
			}

			resolved, err := canonical.Resolve(s, n.cfg.Base())
			if err != nil {
				n.logger.Debug("dropping unresolvable URL list element", "field", name, "value", s)
				continue
			}

			kept = append(kept, resolved)
		}

		fields[name] = kept

	case nil:
		delete(fields, name)
	}
}

// parseNumericField parses a declared numeric field per its format. An
// unparsable value makes the field absent; it never rejects the record.
func (n *Normalizer) parseNumericField(fields map[string]any, nf config.NumericField) {
	value, ok := fields[nf.Name]
	if !ok {
		return
	}

	parsed, err := parseNumber(value, nf.Format)
	if err != nil {
		n.logger.Debug("dropping unparsable numeric field", "field", nf.Name, "value", value)
		delete(fields, nf.Name)

		return
	}

	fields[nf.Name] = parsed
}

// computeSum derives a sum field from its terms. The derived field is
// absent when the first term is absent; later absent terms count as zero.
func computeSum(fields map[string]any, cf config.ComputedField) {
	first, ok := numberValue(fields[cf.Sum[0]])
	if !ok {
		delete(fields, cf.Name)

		return
	}

	total := first

	for _, term := range cf.Sum[1:] {
		if v, ok := numberValue(fields[term]); ok {
			total += v
		}
	}

	fields[cf.Name] = total
}

func (n *Normalizer) rejectPrimary(raw models.RawRecord, cause error) *models.Rejection {
	return &models.Rejection{
		Record: raw,
		Field:  n.cfg.Mapping.PrimaryURL,
		Reason: models.ReasonInvalidPrimaryURL,
		Err:    fmt.Errorf("primary URL rejected: %w", cause),
	}
}

func present(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

// Package interactions looks up drug-label interaction text for a patient's
// medications and condenses it into short warnings.
package interactions

import "context"

// LabelSource returns the raw drug-interaction section of one drug's label.
// found is false when the source has no label mentioning the drug.
type LabelSource interface {
	Name() string
	Lookup(ctx context.Context, drug string) (text string, found bool, err error)
}

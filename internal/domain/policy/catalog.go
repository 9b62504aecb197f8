package policy

// Catalog is the immutable capability registry. Resolution treats feature
// keys outside the catalogue as default-deny rather than an error; only
// strict-mode mutations require existence.
type Catalog struct {
	keys  []string
	byKey map[string]Capability
}

// NewCatalog builds a catalogue from the given capabilities, preserving
// order. Later duplicates of a feature key are ignored.
func NewCatalog(caps ...Capability) *Catalog {
	c := &Catalog{byKey: make(map[string]Capability, len(caps))}
	for _, cap := range caps {
		if _, ok := c.byKey[cap.FeatureKey]; ok {
			continue
		}
		c.byKey[cap.FeatureKey] = cap
		c.keys = append(c.keys, cap.FeatureKey)
	}
	return c
}

// Lookup returns the capability for a feature key.
func (c *Catalog) Lookup(featureKey string) (Capability, bool) {
	cap, ok := c.byKey[featureKey]
	return cap, ok
}

// Contains reports whether the feature key is in the catalogue.
func (c *Catalog) Contains(featureKey string) bool {
	_, ok := c.byKey[featureKey]
	return ok
}

// Keys returns the feature keys in registration order. The returned slice
// is a copy.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Capabilities returns all entries in registration order.
func (c *Catalog) Capabilities() []Capability {
	caps := make([]Capability, 0, len(c.keys))
	for _, k := range c.keys {
		caps = append(caps, c.byKey[k])
	}
	return caps
}

// DefaultCatalog is the care-circle feature set the rest of the system
// checks against.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Capability{FeatureKey: "meds_view", Label: "View medications"},
		Capability{FeatureKey: "meds_edit", Label: "Edit medications"},
		Capability{FeatureKey: "appointments_view", Label: "View appointments"},
		Capability{FeatureKey: "appointments_edit", Label: "Edit appointments"},
		Capability{FeatureKey: "journal_view", Label: "View journal entries"},
		Capability{FeatureKey: "journal_edit", Label: "Write journal entries"},
		Capability{FeatureKey: "contacts_view", Label: "View emergency contacts"},
		Capability{FeatureKey: "contacts_edit", Label: "Edit emergency contacts"},
		Capability{FeatureKey: "sensitive_view", Label: "View sensitive fields",
			Description: "Allergies, panic triggers and other protected notes"},
		Capability{FeatureKey: "documents_view", Label: "View documents"},
	)
}

package ingest

// CategoryResolver maps a provider bank-category label to a local category.
type CategoryResolver interface {
	Resolve(bankCategory string) (string, bool)
}

// CategoryMap resolves labels by their slug, so "Alimentação" and
// "alimentacao" hit the same entry.
type CategoryMap map[string]string

// NewCategoryMap builds a map from label -> category id pairs.
func NewCategoryMap(labels map[string]string) CategoryMap {
	m := make(CategoryMap, len(labels))
	for label, categoryId := range labels {
		if key := Slugify(label); key != "" && categoryId != "" {
			m[key] = categoryId
		}
	}
	return m
}

func (m CategoryMap) Resolve(bankCategory string) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	id, ok := m[Slugify(bankCategory)]
	return id, ok
}

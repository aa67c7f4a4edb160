package domain

// EntityType classifies the domain objects a question can refer to.
type EntityType string

const (
	EntityRequirement EntityType = "Requirement"
	EntityComponent   EntityType = "Component"
	EntityTestCase    EntityType = "TestCase"
	EntityProtocol    EntityType = "Protocol"
	EntityScenario    EntityType = "Scenario"
)

// Provenance records which resolution tier produced a mention.
type Provenance string

const (
	ProvenancePattern Provenance = "pattern_match"
	ProvenanceExact   Provenance = "exact"
	ProvenanceFuzzy   Provenance = "fuzzy"
)

// EntityMention is a span of text grounded to a canonical identifier.
// Confidence is in [0,1]; 1.0 for pattern and exact matches.
type EntityMention struct {
	ID            string     `json:"id"`
	Type          EntityType `json:"type"`
	Category      string     `json:"category,omitempty"`
	MatchedPhrase string     `json:"matched_phrase,omitempty"`
	Confidence    float64    `json:"confidence"`
	Provenance    Provenance `json:"source"`
}

// EntityMap groups resolved mentions by type.
type EntityMap map[EntityType][]EntityMention

// EntityIDMap is the bare identifier form used by query builders and
// model prompts: type name → canonical ids.
type EntityIDMap map[string][]string

// IDMap flattens mentions to their identifiers.
func (m EntityMap) IDMap() EntityIDMap {
	out := make(EntityIDMap, len(m))
	for t, mentions := range m {
		for _, mention := range mentions {
			out[string(t)] = append(out[string(t)], mention.ID)
		}
	}
	return out
}

// IDs returns the identifiers of one entity type, in resolution order.
func (m EntityMap) IDs(t EntityType) []string {
	mentions := m[t]
	if len(mentions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(mentions))
	for _, mention := range mentions {
		ids = append(ids, mention.ID)
	}
	return ids
}

// First returns the first mention of the given type, if any.
func (m EntityMap) First(t EntityType) (EntityMention, bool) {
	mentions := m[t]
	if len(mentions) == 0 {
		return EntityMention{}, false
	}
	return mentions[0], true
}

func (m EntityMap) Empty() bool {
	for _, mentions := range m {
		if len(mentions) > 0 {
			return false
		}
	}
	return true
}

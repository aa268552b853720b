package models

// EdgeType is the relation carried by an edge.
type EdgeType string

const (
	EdgeSupports     EdgeType = "supports"
	EdgeExtends      EdgeType = "extends"
	EdgeApplies      EdgeType = "applies"
	EdgePrerequisite EdgeType = "prerequisite"
	EdgeContrasts    EdgeType = "contrasts"
	EdgeRelated      EdgeType = "related"

	EdgeSupportedBy EdgeType = "supported_by"
	EdgeExtendedBy  EdgeType = "extended_by"
	EdgeAppliedIn   EdgeType = "applied_in"
	EdgeRequiredFor EdgeType = "required_for"
)

// DisplayOrder is the order in which outbound edge groups are rendered.
var DisplayOrder = []EdgeType{
	EdgePrerequisite,
	EdgeSupports,
	EdgeExtends,
	EdgeApplies,
	EdgeRelated,
	EdgeContrasts,
}

var reverseTypes = map[EdgeType]EdgeType{
	EdgeSupports:     EdgeSupportedBy,
	EdgeExtends:      EdgeExtendedBy,
	EdgeApplies:      EdgeAppliedIn,
	EdgePrerequisite: EdgeRequiredFor,
	EdgeContrasts:    EdgeContrasts,
	EdgeRelated:      EdgeRelated,
}

// Reverse returns the type stored on the target's inbound list.
// Unknown types reverse to related.
func (t EdgeType) Reverse() EdgeType {
	if r, ok := reverseTypes[t]; ok {
		return r
	}
	return EdgeRelated
}

// ParseEdgeType accepts the six outbound types.
func ParseEdgeType(s string) (EdgeType, bool) {
	t := EdgeType(s)
	_, ok := reverseTypes[t]
	return t, ok
}

// Strategy names the linker strategy that produced an edge.
type Strategy string

const (
	StrategySimilarity Strategy = "similarity"
	StrategyGeneration Strategy = "generation"
	StrategyAttribute  Strategy = "attribute"
)

// Edge is a directed typed relation embedded in a record.
// On outbound lists Target is the record pointed to; on inbound lists
// it is the record the edge originates from.
type Edge struct {
	Target     string   `yaml:"target" json:"target"`
	TargetID   string   `yaml:"target_id" json:"target_id"`
	Type       EdgeType `yaml:"type" json:"type"`
	Confidence float64  `yaml:"confidence" json:"confidence"`
	Context    string   `yaml:"context,omitempty" json:"context,omitempty"`
	Strategy   Strategy `yaml:"strategy,omitempty" json:"strategy,omitempty"`
}

// Mirror returns the inbound counterpart of e as seen from target, where
// source is the record holding e on its outbound list.
func (e Edge) Mirror(source *Record) Edge {
	return Edge{
		Target:     source.Title,
		TargetID:   source.ID,
		Type:       e.Type.Reverse(),
		Confidence: e.Confidence,
		Context:    e.Context,
		Strategy:   e.Strategy,
	}
}

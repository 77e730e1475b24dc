// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// GuideType categorizes a catalog entry.
type GuideType string

const (
	GuideHealthy GuideType = "healthy"
	GuideDisease GuideType = "disease"
	GuideOther   GuideType = "other"
)

// Supplement is a product recommended for a disease.
type Supplement struct {
	Name     string `json:"name" yaml:"name"`
	ImageURL string `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
	BuyLink  string `json:"buyLink,omitempty" yaml:"buy_link,omitempty"`
}

// DiseaseGuide is a fully populated catalog entry. Slices are never nil
// once loaded.
type DiseaseGuide struct {
	ID               string       `json:"id" yaml:"id"`
	Name             string       `json:"name" yaml:"name"`
	Crop             string       `json:"crop,omitempty" yaml:"crop,omitempty"`
	Type             GuideType    `json:"type" yaml:"type"`
	PathogenType     string       `json:"pathogenType,omitempty" yaml:"pathogen_type,omitempty"`
	Introduction     string       `json:"introduction" yaml:"introduction"`
	Symptoms         []string     `json:"symptoms" yaml:"symptoms"`
	ImmediateActions []string     `json:"immediateActions" yaml:"immediate_actions"`
	NaturalControl   []string     `json:"naturalControl" yaml:"natural_control"`
	ChemicalControl  []string     `json:"chemicalControl" yaml:"chemical_control"`
	Prevention       []string     `json:"prevention" yaml:"prevention"`
	Supplements      []Supplement `json:"supplements" yaml:"supplements"`
	ImageURL         string       `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
	Aliases          []string     `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Treatment returns chemical control steps, or natural control when no
// chemical control is listed.
func (g DiseaseGuide) Treatment() []string {
	if len(g.ChemicalControl) > 0 {
		return g.ChemicalControl
	}
	return g.NaturalControl
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/leafscan/pkg/types"
)

// DefaultLanguage is the catalog used when a localized one is missing or
// unreadable.
const DefaultLanguage = "en"

// languages maps accepted language codes to catalog names. "ma" is the
// legacy code for Marathi.
var languages = map[string]string{
	"en": "en",
	"hi": "hi",
	"mr": "mr",
	"ma": "mr",
}

// NormalizeLanguage maps a user language code to a catalog name. Unknown
// codes map to DefaultLanguage.
func NormalizeLanguage(lang string) string {
	code := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if name, ok := languages[code]; ok {
		return name
	}
	return DefaultLanguage
}

//go:embed data/*.json
var embedded embed.FS

// Source reads catalog documents named <lang>.json, <lang>.yaml or
// <lang>.yml from a stack of file systems. The first layer holding a
// readable document for the language wins.
type Source struct {
	layers []fs.FS
	log    logrus.FieldLogger
}

// Embedded returns a Source over the catalogs compiled into the binary.
func Embedded() Source {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return Source{layers: []fs.FS{sub}}
}

// NewSource returns a Source that prefers documents in dir and falls back
// to the embedded catalogs. An empty dir yields Embedded().
func NewSource(dir string) Source {
	src := Embedded()
	if dir == "" {
		return src
	}
	src.layers = append([]fs.FS{os.DirFS(dir)}, src.layers...)
	return src
}

// SourceFS returns a Source backed only by fsys.
func SourceFS(fsys fs.FS) Source {
	return Source{layers: []fs.FS{fsys}}
}

// Load reads and parses the catalog for lang. Entries are fully defaulted;
// entries with neither a name nor an id are dropped. A document that
// cannot be read or parsed is skipped in favor of the next layer; the
// error is returned only when it comes from the last layer.
func (s Source) Load(lang string) ([]types.DiseaseGuide, error) {
	for i, layer := range s.layers {
		guides, err := loadLayer(layer, lang)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil && i < len(s.layers)-1 {
			if s.log != nil {
				s.log.WithError(err).WithField("language", lang).Warn("skipping unreadable catalog override")
			}
			continue
		}
		return guides, err
	}
	return nil, fmt.Errorf("catalog %q: %w", lang, fs.ErrNotExist)
}

func loadLayer(layer fs.FS, lang string) ([]types.DiseaseGuide, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		name := lang + ext
		data, err := fs.ReadFile(layer, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading catalog %s: %w", name, err)
		}
		guides, err := parseDocument(data, path.Ext(name))
		if err != nil {
			return nil, fmt.Errorf("parsing catalog %s: %w", name, err)
		}
		return guides, nil
	}
	return nil, fs.ErrNotExist
}

// document is the on-disk catalog shape. The same camelCase keys are used
// for JSON and YAML documents.
type document struct {
	Version     int        `json:"version" yaml:"version"`
	GeneratedAt string     `json:"generatedAt" yaml:"generatedAt"`
	Diseases    []rawGuide `json:"diseases" yaml:"diseases"`
}

type rawGuide struct {
	ID               string          `json:"id" yaml:"id"`
	Name             string          `json:"name" yaml:"name"`
	Crop             string          `json:"crop" yaml:"crop"`
	Type             string          `json:"type" yaml:"type"`
	PathogenType     string          `json:"pathogenType" yaml:"pathogenType"`
	Introduction     string          `json:"introduction" yaml:"introduction"`
	Symptoms         []string        `json:"symptoms" yaml:"symptoms"`
	ImmediateActions []string        `json:"immediateActions" yaml:"immediateActions"`
	NaturalControl   []string        `json:"naturalControl" yaml:"naturalControl"`
	ChemicalControl  []string        `json:"chemicalControl" yaml:"chemicalControl"`
	Prevention       []string        `json:"prevention" yaml:"prevention"`
	Supplements      []rawSupplement `json:"supplements" yaml:"supplements"`
	ImageURL         string          `json:"imageUrl" yaml:"imageUrl"`
	Aliases          []string        `json:"aliases" yaml:"aliases"`
}

// rawSupplement accepts either a bare product name or an object.
type rawSupplement struct {
	Name     string `json:"name" yaml:"name"`
	ImageURL string `json:"imageUrl" yaml:"imageUrl"`
	BuyLink  string `json:"buyLink" yaml:"buyLink"`
}

func (s *rawSupplement) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = rawSupplement{Name: name}
		return nil
	}
	type plain rawSupplement
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = rawSupplement(p)
	return nil
}

func (s *rawSupplement) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = rawSupplement{Name: value.Value}
		return nil
	}
	type plain rawSupplement
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = rawSupplement(p)
	return nil
}

func parseDocument(data []byte, ext string) ([]types.DiseaseGuide, error) {
	var doc document
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	guides := make([]types.DiseaseGuide, 0, len(doc.Diseases))
	for _, raw := range doc.Diseases {
		if strings.TrimSpace(raw.Name) == "" && strings.TrimSpace(raw.ID) == "" {
			continue
		}
		guides = append(guides, raw.toGuide())
	}
	return guides, nil
}

// toGuide applies the defaulting rules: name "Unknown", id from name,
// type "disease", empty slices instead of nil, supplement name "Product".
func (r rawGuide) toGuide() types.DiseaseGuide {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = "Unknown"
	}
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = name
	}
	typ := types.GuideType(strings.TrimSpace(r.Type))
	if typ == "" {
		typ = types.GuideDisease
	}

	supplements := make([]types.Supplement, 0, len(r.Supplements))
	for _, s := range r.Supplements {
		sname := strings.TrimSpace(s.Name)
		if sname == "" {
			sname = "Product"
		}
		supplements = append(supplements, types.Supplement{
			Name:     sname,
			ImageURL: s.ImageURL,
			BuyLink:  s.BuyLink,
		})
	}

	return types.DiseaseGuide{
		ID:               id,
		Name:             name,
		Crop:             strings.TrimSpace(r.Crop),
		Type:             typ,
		PathogenType:     r.PathogenType,
		Introduction:     r.Introduction,
		Symptoms:         orEmpty(r.Symptoms),
		ImmediateActions: orEmpty(r.ImmediateActions),
		NaturalControl:   orEmpty(r.NaturalControl),
		ChemicalControl:  orEmpty(r.ChemicalControl),
		Prevention:       orEmpty(r.Prevention),
		Supplements:      supplements,
		ImageURL:         r.ImageURL,
		Aliases:          orEmpty(r.Aliases),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package upstreams

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package upstreams holds the catalogue of fixed relay endpoints (YAML/JSON overridable).

// Upstream is a fixed third-party endpoint exposed as its own GET route.
type Upstream struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Path      string         `json:"path" yaml:"path"`
	SourceURL string         `json:"source_url" yaml:"source_url"`
	Config    map[string]any `json:"config" yaml:"config"`
}

// reservedPaths are routed by the API itself and cannot be claimed by an upstream.
var reservedPaths = map[string]bool{
	"/":     true,
	"/info": true,
	"/ping": true,
}

// Defaults returns the built-in upstream catalogue.
func Defaults() []Upstream {
	return []Upstream{
		{
			ID:        "chuck",
			Name:      "Chuck Norris jokes",
			Path:      "/chuck",
			SourceURL: "https://api.chucknorris.io/jokes/random",
		},
		{
			ID:        "simpsons_quote",
			Name:      "The Simpsons quotes",
			Path:      "/simpsons_quote",
			SourceURL: "https://thesimpsonsquoteapi.glitch.me/quotes",
		},
		{
			ID:        "dad_joke",
			Name:      "icanhazdadjoke",
			Path:      "/dad_joke",
			SourceURL: "https://icanhazdadjoke.com/",
		},
	}
}

type catalogue struct {
	Upstreams []Upstream `json:"upstreams" yaml:"upstreams"`
}

// Registry is the resolved set of upstreams, in registration order. It is
// never modified after construction, so it is safe for concurrent reads.
type Registry struct {
	upstreams []Upstream
	idx       map[string]int
}

// NewRegistry validates ups and builds a registry from them.
func NewRegistry(ups []Upstream) (*Registry, error) {
	reg := &Registry{idx: make(map[string]int, len(ups))}
	paths := make(map[string]string, len(ups))

	for i := range ups {
		u := sanitizeUpstream(ups[i])
		if err := validateUpstream(u); err != nil {
			return nil, fmt.Errorf("upstreams[%d]: %w", i, err)
		}
		if _, exists := reg.idx[u.ID]; exists {
			return nil, fmt.Errorf("duplicate upstream id %q", u.ID)
		}
		if owner, exists := paths[u.Path]; exists {
			return nil, fmt.Errorf("upstream %q path %q already used by %q", u.ID, u.Path, owner)
		}
		paths[u.Path] = u.ID
		reg.idx[u.ID] = len(reg.upstreams)
		reg.upstreams = append(reg.upstreams, u)
	}

	return reg, nil
}

// LoadRegistry returns the built-in catalogue, merged with the entries in path when it is set.
// File entries override built-ins with the same id field by field; new ids are appended.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewRegistry(Defaults())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upstreams file: %w", err)
	}

	cat, err := parseCatalogue(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(cat.Upstreams) == 0 {
		return nil, errors.New("upstreams file contains no upstreams entries")
	}

	seen := make(map[string]bool, len(cat.Upstreams))
	for _, u := range cat.Upstreams {
		id := strings.TrimSpace(u.ID)
		if seen[id] {
			return nil, fmt.Errorf("duplicate upstream id %q", id)
		}
		seen[id] = true
	}

	return NewRegistry(merge(Defaults(), cat.Upstreams))
}

func merge(base, overrides []Upstream) []Upstream {
	out := append([]Upstream(nil), base...)
	pos := make(map[string]int, len(out))
	for i, u := range out {
		pos[u.ID] = i
	}

	for _, o := range overrides {
		id := strings.TrimSpace(o.ID)
		i, ok := pos[id]
		if !ok {
			pos[id] = len(out)
			out = append(out, o)
			continue
		}
		cur := out[i]
		if strings.TrimSpace(o.Name) != "" {
			cur.Name = o.Name
		}
		if strings.TrimSpace(o.Path) != "" {
			cur.Path = o.Path
		}
		if strings.TrimSpace(o.SourceURL) != "" {
			cur.SourceURL = o.SourceURL
		}
		if len(o.Config) > 0 {
			cur.Config = o.Config
		}
		out[i] = cur
	}
	return out
}

// parseCatalogue decodes JSON for .json files and YAML otherwise.
func parseCatalogue(data []byte, ext string) (catalogue, error) {
	var cat catalogue
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &cat); err != nil {
			return catalogue{}, fmt.Errorf("decode json upstreams: %w", err)
		}
		return cat, nil
	}
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return catalogue{}, fmt.Errorf("decode yaml upstreams: %w", err)
	}
	return cat, nil
}

func sanitizeUpstream(u Upstream) Upstream {
	u.ID = strings.TrimSpace(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	u.Path = strings.TrimSpace(u.Path)
	u.SourceURL = strings.TrimSpace(u.SourceURL)

	if u.Path == "" && u.ID != "" {
		u.Path = "/" + u.ID
	}
	if u.Path != "" && !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	if u.Name == "" {
		u.Name = u.ID
	}
	if u.Config == nil {
		u.Config = map[string]any{}
	}
	return u
}

func validateUpstream(u Upstream) error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if reservedPaths[u.Path] {
		return fmt.Errorf("path %q is reserved (upstream %q)", u.Path, u.ID)
	}
	if u.SourceURL == "" {
		return fmt.Errorf("source_url is required for upstream %q", u.ID)
	}
	parsed, err := url.Parse(u.SourceURL)
	if err != nil {
		return fmt.Errorf("source_url for upstream %q: %w", u.ID, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("source_url for upstream %q must use http or https, got %q", u.ID, parsed.Scheme)
	}
	return nil
}

// All returns a copy of the registered upstreams.
func (r *Registry) All() []Upstream {
	if r == nil {
		return nil
	}

	out := make([]Upstream, len(r.upstreams))
	copy(out, r.upstreams)
	return out
}

// ByID returns the upstream registered under id.
func (r *Registry) ByID(id string) (Upstream, bool) {
	if r == nil {
		return Upstream{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Upstream{}, false
	}

	i, ok := r.idx[id]
	if !ok {
		return Upstream{}, false
	}
	return r.upstreams[i], true
}

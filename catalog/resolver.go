package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"orbitlab/server/internal/render"
)

type source interface {
	Load() ([]byte, error)
	Path() string
}

type fileSource struct {
	path string
}

func (f fileSource) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f fileSource) Path() string {
	return f.path
}

// Entry captures the resolved catalog data for a single authored preset. It
// exposes the generator family, the parsed render spec, and any additional
// JSON blocks that were present on disk.
type Entry struct {
	ID     string
	Family string
	Title  string
	Spec   render.Spec
	Blocks map[string]json.RawMessage
}

// EntryDocument represents a single preset as it appears on disk. The struct
// is exported so tooling (e.g. schema generators) can reflect over the
// configuration contract shared with preset authors.
type EntryDocument struct {
	ID     string                     `json:"id" jsonschema:"title=Preset ID,description=Author-facing identifier clients request by name.,pattern=^[a-z0-9-]+$,minLength=1,required"`
	Family string                     `json:"family" jsonschema:"title=Generator Family,description=Registered generator family this preset renders with.,minLength=1,required"`
	Title  string                     `json:"title,omitempty" jsonschema:"title=Display Title,description=Human-readable name shown in preset listings."`
	Spec   render.Spec                `json:"spec" jsonschema:"title=Render Spec,description=Parameter block handed to the scheduler when the preset runs.,required"`
	Blocks map[string]json.RawMessage `json:"-" jsonschema:"-"`
}

// Summary is the compact preset listing carried by the hello payload.
type Summary struct {
	ID     string `json:"id"`
	Family string `json:"family"`
	Title  string `json:"title,omitempty"`
}

func (e Entry) clone() Entry {
	return Entry{
		ID:     e.ID,
		Family: e.Family,
		Title:  e.Title,
		Spec:   e.Spec.Clone(),
		Blocks: cloneRawMap(e.Blocks),
	}
}

func cloneRawMap(src map[string]json.RawMessage) map[string]json.RawMessage {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]json.RawMessage, len(src))
	for key, value := range src {
		if len(value) == 0 {
			dst[key] = nil
			continue
		}
		copied := make(json.RawMessage, len(value))
		copy(copied, value)
		dst[key] = copied
	}
	return dst
}

// Resolver merges one or more catalog sources into a stable lookup table.
// Call Reload to pick up on-disk changes (used for dev hot reload).
type Resolver struct {
	mu      sync.RWMutex
	sources []source
	limits  render.Limits
	entries map[string]Entry
	hash    string
}

// DefaultPaths returns the canonical catalog locations relative to the server
// module root. Callers may pass these to Load.
func DefaultPaths() []string {
	candidates := []string{
		filepath.Join("config", "presets", "definitions.json"),
		filepath.Join("..", "config", "presets", "definitions.json"),
	}

	paths := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		cleaned := filepath.Clean(candidate)
		if _, duplicate := seen[cleaned]; duplicate {
			continue
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}

	if len(paths) == 0 {
		return []string{filepath.Join("config", "presets", "definitions.json")}
	}
	return paths
}

// Load constructs a Resolver backed by the provided job limits and catalog
// file paths.
func Load(limits render.Limits, paths ...string) (*Resolver, error) {
	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		sources = append(sources, fileSource{path: trimmed})
	}
	return NewResolver(limits, sources...)
}

// NewResolver constructs a Resolver from arbitrary sources. Tests can supply
// in-memory sources while production code uses fileSource.
func NewResolver(limits render.Limits, sources ...source) (*Resolver, error) {
	r := &Resolver{
		sources: append([]source(nil), sources...),
		limits:  limits.Normalized(),
		entries: make(map[string]Entry),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses all catalog sources. Later sources override earlier ones to
// support local overlays during development.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	entries := make(map[string]Entry)
	digest := sha256.New()
	loaded := false
	for _, src := range r.sources {
		data, err := src.Load()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("catalog: failed loading %s: %w", src.Path(), err)
		}
		digest.Write(data)
		loaded = true
		documents, err := decodeEntries(data)
		if err != nil {
			return fmt.Errorf("catalog: failed parsing %s: %w", src.Path(), err)
		}
		seen := make(map[string]struct{}, len(documents))
		for _, doc := range documents {
			id := strings.TrimSpace(doc.ID)
			if id == "" {
				return fmt.Errorf("catalog: entry missing id in %s", src.Path())
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("catalog: duplicate id %q in %s", id, src.Path())
			}
			seen[id] = struct{}{}

			family := strings.TrimSpace(doc.Family)
			if family == "" {
				return fmt.Errorf("catalog: entry %q missing family", id)
			}
			if !render.KnownFamily(family) {
				return fmt.Errorf("catalog: entry %q references unknown family %q", id, family)
			}

			spec := doc.Spec.Clone()
			if strings.TrimSpace(spec.Family) == "" {
				spec.Family = family
			} else if spec.Family != family {
				return fmt.Errorf("catalog: entry %q family %q does not match spec family %q", id, family, spec.Family)
			}

			if err := spec.Normalized().Validate(r.limits); err != nil {
				return fmt.Errorf("catalog: entry %q: %w", id, err)
			}

			entries[id] = Entry{
				ID:     id,
				Family: family,
				Title:  strings.TrimSpace(doc.Title),
				Spec:   spec,
				Blocks: doc.Blocks,
			}
		}
	}

	hash := ""
	if loaded {
		hash = hex.EncodeToString(digest.Sum(nil))
	}

	r.mu.Lock()
	r.entries = entries
	r.hash = hash
	r.mu.Unlock()
	return nil
}

// Resolve returns the catalog entry for the provided preset ID.
func (r *Resolver) Resolve(id string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return entry.clone(), true
}

// Entries returns a cloned snapshot of the catalog entries keyed by preset ID.
func (r *Resolver) Entries() map[string]Entry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for id, entry := range r.entries {
		out[id] = entry.clone()
	}
	return out
}

// Summaries returns the preset listing sorted by ID for the hello payload.
func (r *Resolver) Summaries() []Summary {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, Summary{ID: entry.ID, Family: entry.Family, Title: entry.Title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Hash returns a digest of the loaded catalog sources. Clients compare it
// against the hello payload to detect stale cached preset listings.
func (r *Resolver) Hash() string {
	if r == nil {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hash
}

func (e *EntryDocument) UnmarshalJSON(data []byte) error {
	type rawEntry EntryDocument
	var alias rawEntry
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var blocks map[string]json.RawMessage
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	delete(blocks, "id")
	delete(blocks, "family")
	delete(blocks, "title")
	delete(blocks, "spec")
	alias.Blocks = blocks
	*e = EntryDocument(alias)
	return nil
}

func decodeEntries(data []byte) ([]EntryDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var entries []EntryDocument
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(object))
		for id := range object {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		entries := make([]EntryDocument, 0, len(ids))
		for _, id := range ids {
			var entry EntryDocument
			if err := json.Unmarshal(object[id], &entry); err != nil {
				return nil, fmt.Errorf("entry %q: %w", id, err)
			}
			if entry.ID == "" {
				entry.ID = id
			} else if entry.ID != id {
				return nil, fmt.Errorf("entry id %q does not match key %q", entry.ID, id)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unexpected json token %q", string(trimmed[:1]))
	}
}

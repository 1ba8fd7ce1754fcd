package catalog

// FileDefinitions represents the contents of config/presets/definitions.json.
// The catalog loader accepts either arrays or objects; the schema models the
// canonical array format authored by preset designers.
type FileDefinitions []EntryDocument

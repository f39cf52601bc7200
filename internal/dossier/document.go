package dossier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/model"
	"github.com/google/uuid"
)

// FormatVersion is the dossier layout version written into session.format.
const FormatVersion = 1

// DefaultDescription is the session description of a fresh dossier.
const DefaultDescription = "Haeccstable Session"

// Session identifies the authoring session that produced a dossier.
type Session struct {
	ID          string    `json:"id"`
	StartTime   time.Time `json:"start_time"`
	Description string    `json:"description"`
	Format      int       `json:"format"`
}

// Document is the full dossier: session metadata plus name-keyed collections.
type Document struct {
	Session   Session                   `json:"session"`
	Devices   map[string]model.Device   `json:"devices"`
	Variables map[string]model.Variable `json:"variables"`
	Functions map[string]model.Function `json:"functions"`
	Processes map[string]model.Process  `json:"processes"`
	Layers    map[string]model.Layer    `json:"layers"`
	Windows   map[string]model.Window   `json:"windows"`
}

// NewTemplate returns an empty document for a new session.
func NewTemplate(description string) Document {
	if description == "" {
		description = DefaultDescription
	}
	return Document{
		Session: Session{
			ID:          uuid.NewString(),
			StartTime:   time.Now().UTC(),
			Description: description,
			Format:      FormatVersion,
		},
		Devices:   make(map[string]model.Device),
		Variables: make(map[string]model.Variable),
		Functions: make(map[string]model.Function),
		Processes: make(map[string]model.Process),
		Layers:    make(map[string]model.Layer),
		Windows:   make(map[string]model.Window),
	}
}

// LoadDocument reads and parses a dossier file.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read dossier: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes a dossier. Collection keys are authoritative for
// entity names, and missing collections are created empty.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse dossier JSON: %w", err)
	}
	if doc.Session.Format > FormatVersion {
		return Document{}, fmt.Errorf("unsupported dossier format: %d", doc.Session.Format)
	}
	doc.ensureCollections()

	for name, v := range doc.Variables {
		v.Name = name
		doc.Variables[name] = v
	}
	for name, f := range doc.Functions {
		f.Name = name
		doc.Functions[name] = f
	}
	for name, p := range doc.Processes {
		p.Name = name
		doc.Processes[name] = p
	}
	for name, l := range doc.Layers {
		l.Name = name
		doc.Layers[name] = l
	}
	for name, w := range doc.Windows {
		w.Name = name
		doc.Windows[name] = w
	}
	return doc, nil
}

func (d *Document) ensureCollections() {
	if d.Devices == nil {
		d.Devices = make(map[string]model.Device)
	}
	if d.Variables == nil {
		d.Variables = make(map[string]model.Variable)
	}
	if d.Functions == nil {
		d.Functions = make(map[string]model.Function)
	}
	if d.Processes == nil {
		d.Processes = make(map[string]model.Process)
	}
	if d.Layers == nil {
		d.Layers = make(map[string]model.Layer)
	}
	if d.Windows == nil {
		d.Windows = make(map[string]model.Window)
	}
}

// Clone deep-copies the document.
func (d Document) Clone() Document {
	out := Document{Session: d.Session}
	out.ensureCollections()
	for k, v := range d.Devices {
		out.Devices[k] = v
	}
	for k, v := range d.Variables {
		out.Variables[k] = v.Clone()
	}
	for k, v := range d.Functions {
		out.Functions[k] = v.Clone()
	}
	for k, v := range d.Processes {
		out.Processes[k] = v.Clone()
	}
	for k, v := range d.Layers {
		out.Layers[k] = v.Clone()
	}
	for k, v := range d.Windows {
		out.Windows[k] = v.Clone()
	}
	return out
}

// Encode renders the document as indented JSON with keys sorted at every
// level, so repeated writes of the same state are byte-identical.
func Encode(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dossier: %w", err)
	}

	// Round-trip through generic maps; encoding/json sorts map keys.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to canonicalize dossier: %w", err)
	}

	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode dossier: %w", err)
	}
	return append(out, '\n'), nil
}

package dossier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/model"
	"github.com/rs/zerolog/log"
)

// Store keeps the dossier document in memory and rewrites the whole file
// after every change. Write failures are logged, never returned: the
// in-memory state stays authoritative for the running process.
type Store struct {
	mu          sync.Mutex
	path        string
	description string
	doc         Document
	loaded      bool
	lastErr     error
	writes      int
}

// Open loads the dossier at path. If it cannot be read or parsed, a fresh
// template is synthesized and written immediately; an unparseable file is
// first preserved as <path>.corrupt.
func Open(path, description string) *Store {
	s := &Store{
		path:        path,
		description: description,
	}

	doc, err := LoadDocument(path)
	if err == nil {
		s.doc = doc
		s.loaded = true
		log.Info().Str("path", path).
			Int("variables", len(doc.Variables)).
			Int("windows", len(doc.Windows)).
			Msg("dossier loaded")
		return s
	}

	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("no dossier found, creating template")
	} else {
		log.Warn().Err(err).Str("path", path).Msg("could not load dossier, creating template")
		if rerr := os.Rename(path, path+".corrupt"); rerr != nil {
			log.Warn().Err(rerr).Str("path", path).Msg("could not preserve unreadable dossier")
		}
	}

	s.doc = NewTemplate(description)
	s.save()
	return s
}

// Path returns the dossier file path.
func (s *Store) Path() string {
	return s.path
}

// Loaded reports whether Open found an existing, valid dossier.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Document returns a deep copy of the current document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// LastError returns the error of the most recent write, or nil if it succeeded.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Writes returns the number of successful file writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) UpdateVariable(v model.Variable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Variables[v.Name] = v.Clone()
	s.save()
}

func (s *Store) RemoveVariable(name string) {
	s.remove(func(d *Document) bool {
		_, ok := d.Variables[name]
		delete(d.Variables, name)
		return ok
	})
}

func (s *Store) UpdateFunction(f model.Function) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Functions[f.Name] = f.Clone()
	s.save()
}

func (s *Store) RemoveFunction(name string) {
	s.remove(func(d *Document) bool {
		_, ok := d.Functions[name]
		delete(d.Functions, name)
		return ok
	})
}

func (s *Store) UpdateProcess(p model.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Processes[p.Name] = p.Clone()
	s.save()
}

func (s *Store) RemoveProcess(name string) {
	s.remove(func(d *Document) bool {
		_, ok := d.Processes[name]
		delete(d.Processes, name)
		return ok
	})
}

func (s *Store) UpdateLayer(l model.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Layers[l.Name] = l.Clone()
	s.save()
}

func (s *Store) RemoveLayer(name string) {
	s.remove(func(d *Document) bool {
		_, ok := d.Layers[name]
		delete(d.Layers, name)
		return ok
	})
}

func (s *Store) UpdateWindow(w model.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Windows[w.Name] = w.Clone()
	s.save()
}

func (s *Store) RemoveWindow(name string) {
	s.remove(func(d *Document) bool {
		_, ok := d.Windows[name]
		delete(d.Windows, name)
		return ok
	})
}

func (s *Store) UpdateDevice(d model.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Devices[d.Key()] = d
	s.save()
}

func (s *Store) RemoveDevice(key string) {
	s.remove(func(d *Document) bool {
		_, ok := d.Devices[key]
		delete(d.Devices, key)
		return ok
	})
}

// Apply runs fn against the live document and rewrites the file once.
// fn must not retain d.
func (s *Store) Apply(fn func(d *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.doc)
	s.save()
}

// ClearAll resets the dossier to a fresh template and rewrites it. Devices
// belong to the connected engines, not the session, and are carried over.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices := s.doc.Devices
	s.doc = NewTemplate(s.description)
	for k, d := range devices {
		s.doc.Devices[k] = d
	}
	s.save()
	log.Info().Str("path", s.path).Msg("dossier cleared")
}

// Flush rewrites the file from the in-memory document.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save()
	return s.lastErr
}

// remove deletes an entry and rewrites only if something was removed.
func (s *Store) remove(del func(d *Document) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if del(&s.doc) {
		s.save()
	}
}

// save writes the document. Callers must hold s.mu.
func (s *Store) save() {
	err := writeAtomic(s.path, s.doc)
	s.lastErr = err
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("failed to save dossier")
		events.Emit("error", "system.error", "dossier write failed", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	s.writes++
	log.Debug().Str("path", s.path).Msg("dossier saved")
}

func writeAtomic(path string, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp dossier: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dossier: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close dossier: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace dossier: %w", err)
	}
	return nil
}

// Package facestore keeps enrolled identities, their reference embeddings and
// the flattened matrix used for matching.
//
// Metadata lives in employees.json, embeddings in embeddings.bin and photos
// under one folder per identity. Every mutation rebuilds the matrix in full
// and publishes it together with its row mapping as one Snapshot, so readers
// never see a matrix and a mapping from different generations.
package facestore

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

const (
	metadataFile  = "employees.json"
	embeddingFile = "embeddings.bin"
)

// Identity is one enrolled employee.
type Identity struct {
	ID         string
	Name       string
	Department string
	Embeddings [][]float32
	PhotoCount int
}

// record is the metadata line persisted for an identity.
type record struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	PhotoCount int    `json:"photo_count"`
}

// Store is safe for concurrent use. Mutations are serialized; ReferenceMatrix
// never blocks.
type Store struct {
	mu         sync.Mutex
	dir        string
	photosDir  string
	identities []*Identity
	index      map[string]int

	snapshot  atomic.Pointer[Snapshot]
	log       logger.Logger
	onRebuild []func(identities, rows int)
}

// Option configures a Store.
type Option func(*Store)

// WithPhotosDir overrides the photo root, <dir>/photos by default.
func WithPhotosDir(path string) Option {
	return func(s *Store) { s.photosDir = path }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRebuildHook registers fn to be called with the identity and row counts
// after every rebuild.
func WithRebuildHook(fn func(identities, rows int)) Option {
	return func(s *Store) { s.onRebuild = append(s.onRebuild, fn) }
}

// AddRebuildHook registers fn on an open store. Hooks run in registration
// order with the writer lock held and must not call back into the store.
func (s *Store) AddRebuildHook(fn func(identities, rows int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRebuild = append(s.onRebuild, fn)
}

// Open loads the store from dir, creating the directories when missing.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:   dir,
		index: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.photosDir == "" {
		s.photosDir = filepath.Join(dir, "photos")
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	for _, d := range []string{dir, s.photosDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryFileIO).
				Context("path", d).
				Build()
		}
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	switch {
	case os.IsNotExist(err):
		s.publish(emptySnapshot)
		return nil
	case err != nil:
		return errors.New(err).Category(errors.CategoryFileIO).Context("file", metadataFile).Build()
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.New(err).Category(errors.CategoryFileParsing).Context("file", metadataFile).Build()
	}
	for _, r := range records {
		if _, dup := s.index[r.ID]; dup {
			s.log.Warn("duplicate identity in metadata, keeping first", logger.String("employee_id", r.ID))
			continue
		}
		s.index[r.ID] = len(s.identities)
		s.identities = append(s.identities, &Identity{
			ID: r.ID, Name: r.Name, Department: r.Department, PhotoCount: r.PhotoCount,
		})
	}

	if err := s.loadEmbeddings(); err != nil {
		return err
	}

	snap, err := buildSnapshot(s.identities)
	if err != nil {
		return errors.New(err).Category(errors.CategoryFaceStore).Build()
	}
	s.publish(snap)
	s.log.Info("reference store loaded",
		logger.Int("identities", len(s.identities)),
		logger.Int("embeddings", snap.Rows()))
	return nil
}

// loadEmbeddings attaches artifact rows to the identities known from metadata.
func (s *Store) loadEmbeddings() error {
	data, err := os.ReadFile(filepath.Join(s.dir, embeddingFile))
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return errors.New(err).Category(errors.CategoryFileIO).Context("file", embeddingFile).Build()
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return errors.New(err).Category(errors.CategoryFileParsing).Context("file", embeddingFile).Build()
	}

	dropped := 0
	for row, entry := range snap.Mapping {
		pos, ok := s.index[entry.IdentityID]
		if !ok {
			dropped++
			continue
		}
		src := snap.Matrix.RawRowView(row)
		emb := make([]float32, len(src))
		for i, v := range src {
			emb[i] = float32(v)
		}
		s.identities[pos].Embeddings = append(s.identities[pos].Embeddings, emb)
	}
	if dropped > 0 {
		s.log.Warn("dropped embeddings of unknown identities", logger.Int("rows", dropped))
	}
	return nil
}

// ReferenceMatrix returns the current snapshot. It is never nil.
func (s *Store) ReferenceMatrix() *Snapshot {
	return s.snapshot.Load()
}

// Identity returns a copy of the identity record.
func (s *Store) Identity(id string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return Identity{}, notFoundError(id)
	}
	return s.identities[pos].clone(), nil
}

// Identities returns copies of every identity in stored order.
func (s *Store) Identities() []Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Identity, len(s.identities))
	for i, ident := range s.identities {
		out[i] = ident.clone()
	}
	return out
}

// Exists reports whether id is enrolled.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Count returns the number of identities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

// AddIdentity stores id with the given embeddings. Photos, when given, are
// written to the identity's folder; with overwrite any previous folder of the
// identity is removed first.
func (s *Store) AddIdentity(id, name, department string, embeddings [][]float32, photos []image.Image, overwrite bool) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.index[id]
	if exists && !overwrite {
		return duplicateError(id)
	}

	ident := &Identity{
		ID:         id,
		Name:       name,
		Department: department,
		Embeddings: cloneEmbeddings(embeddings),
		PhotoCount: len(embeddings),
	}
	next := slices.Clone(s.identities)
	if exists {
		next[pos] = ident
	} else {
		next = append(next, ident)
	}

	snap, err := buildSnapshot(next)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryValidation).
			Context("employee_id", id).
			Build()
	}

	if len(photos) > 0 {
		if err := s.writePhotos(id, name, photos, overwrite); err != nil {
			return err
		}
	}

	if err := s.persist(next, snap); err != nil {
		return err
	}
	s.commit(next, snap)

	s.log.Info("identity stored",
		logger.String("employee_id", id),
		logger.Int("embeddings", len(embeddings)),
		logger.Int("photos", len(photos)),
		logger.Bool("overwrite", overwrite))
	return nil
}

// AddIdentityMetadataOnly creates an identity with no embeddings. Templates
// are added later through enrollment.
func (s *Store) AddIdentityMetadataOnly(id, name, department string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[id]; exists {
		return duplicateError(id)
	}

	next := append(slices.Clone(s.identities), &Identity{ID: id, Name: name, Department: department})
	snap := s.snapshot.Load()
	if err := s.writeMetadata(next); err != nil {
		return err
	}
	s.commit(next, snap)

	s.log.Info("identity created without template", logger.String("employee_id", id))
	return nil
}

// DeleteIdentity removes id, its embeddings and its photo folders.
func (s *Store) DeleteIdentity(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return notFoundError(id)
	}

	next := slices.Delete(slices.Clone(s.identities), pos, pos+1)
	snap, err := buildSnapshot(next)
	if err != nil {
		return errors.New(err).Category(errors.CategoryFaceStore).Build()
	}

	if err := s.removePhotoFolders(id); err != nil {
		s.log.Warn("failed to remove photo folder", logger.String("employee_id", id), logger.Error(err))
	}

	if err := s.persist(next, snap); err != nil {
		return err
	}
	s.commit(next, snap)

	s.log.Info("identity deleted", logger.String("employee_id", id))
	return nil
}

// UpdateIdentity changes name and/or department; empty values are left
// unchanged. A name change renames the photo folder on a best effort basis.
func (s *Store) UpdateIdentity(id, name, department string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return notFoundError(id)
	}

	updated := s.identities[pos].clone()
	if name != "" && name != updated.Name {
		if err := s.renamePhotoFolder(id, name); err != nil {
			s.log.Error("failed to rename photo folder",
				logger.String("employee_id", id),
				logger.Error(err))
		}
		updated.Name = name
	}
	if department != "" {
		updated.Department = department
	}

	next := slices.Clone(s.identities)
	next[pos] = &updated
	if err := s.writeMetadata(next); err != nil {
		return err
	}
	s.commit(next, s.snapshot.Load())
	return nil
}

// PhotoFolder returns the folder an identity's photos are written to.
func (s *Store) PhotoFolder(id, name string) string {
	return filepath.Join(s.photosDir, FolderName(id, name))
}

func (s *Store) commit(next []*Identity, snap *Snapshot) {
	s.identities = next
	s.index = make(map[string]int, len(next))
	for i, ident := range next {
		s.index[ident.ID] = i
	}
	s.publish(snap)
}

func (s *Store) publish(snap *Snapshot) {
	s.snapshot.Store(snap)
	for _, fn := range s.onRebuild {
		fn(len(s.identities), snap.Rows())
	}
}

func (s *Store) persist(identities []*Identity, snap *Snapshot) error {
	if err := s.writeMetadata(identities); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return errors.New(err).Category(errors.CategoryFaceStore).Build()
	}
	if err := writeFileAtomic(filepath.Join(s.dir, embeddingFile), data); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("file", embeddingFile).Build()
	}
	return nil
}

func (s *Store) writeMetadata(identities []*Identity) error {
	records := make([]record, len(identities))
	for i, ident := range identities {
		records[i] = record{
			ID:         ident.ID,
			Name:       ident.Name,
			Department: ident.Department,
			PhotoCount: ident.PhotoCount,
		}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return errors.New(err).Category(errors.CategoryFaceStore).Build()
	}
	if err := writeFileAtomic(filepath.Join(s.dir, metadataFile), data); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("file", metadataFile).Build()
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errors.Newf("invalid employee id %q", id).
			Component("facestore").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func (i *Identity) clone() Identity {
	c := *i
	c.Embeddings = slices.Clone(i.Embeddings)
	return c
}

func cloneEmbeddings(in [][]float32) [][]float32 {
	out := make([][]float32, len(in))
	for i, e := range in {
		out[i] = slices.Clone(e)
	}
	return out
}

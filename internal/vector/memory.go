package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/curator/internal/models"
)

// MemoryStore keeps collections in process and persists them to a snapshot
// file on Flush and Close. Search is brute-force cosine distance.
type MemoryStore struct {
	path        string
	collections map[string]*MemoryCollection
	mu          sync.RWMutex
}

// NewMemoryStore returns a store backed by the snapshot at path, loading it when
// present. An empty path keeps everything in memory.
func NewMemoryStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{path: path, collections: make(map[string]*MemoryCollection)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetOrCreateCollection implements Store.
func (s *MemoryStore) GetOrCreateCollection(_ context.Context, name string, metadata map[string]interface{}) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := newMemoryCollection(name, metadata)
	s.collections[name] = c
	return c, nil
}

// GetCollection implements Store.
func (s *MemoryStore) GetCollection(_ context.Context, name string) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// DeleteCollection implements Store.
func (s *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	delete(s.collections, name)
	return nil
}

// Flush writes the snapshot.
func (s *MemoryStore) Flush(_ context.Context) error {
	return s.save()
}

// Close writes the snapshot.
func (s *MemoryStore) Close() error {
	return s.save()
}

// MemoryCollection is a Collection held in memory.
type MemoryCollection struct {
	name     string
	metadata map[string]interface{}
	dims     int
	ids      []string
	index    map[string]int
	vectors  [][]float32
	docs     []string
	metas    []models.Metadata
	mu       sync.RWMutex
}

func newMemoryCollection(name string, metadata map[string]interface{}) *MemoryCollection {
	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &MemoryCollection{name: name, metadata: meta, index: make(map[string]int)}
}

// Name implements Collection.
func (c *MemoryCollection) Name() string { return c.name }

// Metadata implements Collection.
func (c *MemoryCollection) Metadata() map[string]interface{} {
	out := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Add implements Collection. The first vector fixes the collection's dimension.
func (c *MemoryCollection) Add(_ context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []models.Metadata) error {
	if len(embeddings) != len(ids) || len(documents) != len(ids) || len(metadatas) != len(ids) {
		return fmt.Errorf("add to %s: ids, embeddings, documents and metadatas length mismatch", c.name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, vec := range embeddings {
		if c.dims == 0 {
			c.dims = len(vec)
		}
		if len(vec) != c.dims {
			return fmt.Errorf("add %s: %w: got %d, expected %d", ids[i], ErrDimensionMismatch, len(vec), c.dims)
		}
	}
	for i, id := range ids {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		meta := metadatas[i].Clone()
		if pos, ok := c.index[id]; ok {
			c.vectors[pos], c.docs[pos], c.metas[pos] = vec, documents[i], meta
			continue
		}
		c.index[id] = len(c.ids)
		c.ids = append(c.ids, id)
		c.vectors = append(c.vectors, vec)
		c.docs = append(c.docs, documents[i])
		c.metas = append(c.metas, meta)
	}
	return nil
}

// Query implements Collection.
func (c *MemoryCollection) Query(_ context.Context, embedding []float32, n int, where Where) ([]Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dims != 0 && len(embedding) != c.dims {
		return nil, fmt.Errorf("query %s: %w: got %d, expected %d", c.name, ErrDimensionMismatch, len(embedding), c.dims)
	}
	if n <= 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(c.ids))
	for i, id := range c.ids {
		if !where.Matches(c.metas[i]) {
			continue
		}
		hits = append(hits, Hit{
			ID:       id,
			Document: c.docs[i],
			Metadata: c.metas[i].Clone(),
			Distance: CosineDistance(embedding, c.vectors[i]),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// Get implements Collection.
func (c *MemoryCollection) Get(_ context.Context, limit int) ([]Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.ids)
	if limit > 0 && limit < n {
		n = limit
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{ID: c.ids[i], Document: c.docs[i], Metadata: c.metas[i].Clone()}
	}
	return hits, nil
}

// Count implements Collection.
func (c *MemoryCollection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids), nil
}

// Delete implements Collection.
func (c *MemoryCollection) Delete(_ context.Context, where Where) error {
	if len(where) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := 0
	for i := range c.ids {
		if where.Matches(c.metas[i]) {
			delete(c.index, c.ids[i])
			continue
		}
		c.ids[keep], c.vectors[keep], c.docs[keep], c.metas[keep] = c.ids[i], c.vectors[i], c.docs[i], c.metas[i]
		c.index[c.ids[keep]] = keep
		keep++
	}
	c.ids, c.vectors, c.docs, c.metas = c.ids[:keep], c.vectors[:keep], c.docs[:keep], c.metas[:keep]
	return nil
}

// snapshotMagic prefixes snapshot files; the low byte is the format version.
const snapshotMagic uint32 = 0x43565301

// save writes all collections to a temporary file and renames it over the snapshot.
// Format: magic, collection count, then per collection name, metadata JSON,
// dimension, entry count and per entry id, document, metadata JSON and vector.
func (s *MemoryStore) save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := s.writeSnapshot(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *MemoryStore) writeSnapshot(w io.Writer) error {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := writeUint32(w, snapshotMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, name := range names {
		c := s.collections[name]
		c.mu.RLock()
		err := c.writeTo(w)
		c.mu.RUnlock()
		if err != nil {
			return fmt.Errorf("write collection %s: %w", name, err)
		}
	}
	return nil
}

func (c *MemoryCollection) writeTo(w io.Writer) error {
	meta, err := json.Marshal(c.metadata)
	if err != nil {
		return err
	}
	if err := writeBytes(w, []byte(c.name)); err != nil {
		return err
	}
	if err := writeBytes(w, meta); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(c.dims)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(c.ids))); err != nil {
		return err
	}
	for i, id := range c.ids {
		m, err := json.Marshal(c.metas[i])
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", id, err)
		}
		if err := writeBytes(w, []byte(id)); err != nil {
			return err
		}
		if err := writeBytes(w, []byte(c.docs[i])); err != nil {
			return err
		}
		if err := writeBytes(w, m); err != nil {
			return err
		}
		if _, err := w.Write(float32SliceToBytes(c.vectors[i])); err != nil {
			return err
		}
	}
	return nil
}

// load replaces the store's contents with the snapshot. A missing file is not an error.
func (s *MemoryStore) load() error {
	if s.path == "" {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if magic != snapshotMagic {
		return fmt.Errorf("snapshot %s: unrecognized format %#x", s.path, magic)
	}
	n, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	collections := make(map[string]*MemoryCollection, n)
	for i := uint32(0); i < n; i++ {
		c, err := readCollection(r)
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", s.path, err)
		}
		collections[c.name] = c
	}
	s.mu.Lock()
	s.collections = collections
	s.mu.Unlock()
	return nil
}

func readCollection(r io.Reader) (*MemoryCollection, error) {
	name, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("collection name: %w", err)
	}
	metaJSON, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("collection metadata: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("decode collection metadata: %w", err)
	}
	c := newMemoryCollection(string(name), meta)
	dims, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	c.dims = int(dims)
	buf := make([]byte, int(dims)*4)
	for i := uint32(0); i < count; i++ {
		id, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d id: %w", i, err)
		}
		doc, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d document: %w", i, err)
		}
		m, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d metadata: %w", i, err)
		}
		var md models.Metadata
		if err := json.Unmarshal(m, &md); err != nil {
			return nil, fmt.Errorf("decode entry %d metadata: %w", i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("entry %d vector: %w", i, err)
		}
		c.index[string(id)] = len(c.ids)
		c.ids = append(c.ids, string(id))
		c.docs = append(c.docs, string(doc))
		c.metas = append(c.metas, md)
		c.vectors = append(c.vectors, bytesToFloat32Slice(buf))
	}
	return c, nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

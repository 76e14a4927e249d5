package store

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FsStore is the default backend: one JSON file per record, rooted at the
// ActivityPub state directory. Record keys are URL-encoded into file names,
// so URIs are usable as keys. Writes go through a temp file and rename so a
// concurrent reader never observes a half-written record.
type FsStore struct {
	root string
}

func NewFsStore(root string) (*FsStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FsStore{root: root}, nil
}

func (s *FsStore) Root() string {
	return s.root
}

func encodeKey(key string) string {
	return url.QueryEscape(key)
}

func decodeKey(name string) (string, error) {
	return url.QueryUnescape(name)
}

func (s *FsStore) path(namespace, key string) string {
	return filepath.Join(s.root, filepath.FromSlash(namespace), encodeKey(key)+".json")
}

func (s *FsStore) Get(namespace, key string, v interface{}) error {
	buf, err := os.ReadFile(s.path(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record %s/%s: %w", namespace, key, err)
	}

	if err := json.Unmarshal(buf, v); err != nil {
		// A corrupt record is treated as missing; the file is left in
		// place for inspection.
		log.Printf("Store: Skipping unparseable record %s/%s: %v", namespace, key, err)
		return ErrNotFound
	}
	return nil
}

func (s *FsStore) Put(namespace, key string, v interface{}) error {
	dir := filepath.Join(s.root, filepath.FromSlash(namespace))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create namespace dir: %w", err)
	}

	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s/%s: %w", namespace, key, err)
	}

	target := s.path(namespace, key)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s/%s: %w", namespace, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store record %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *FsStore) Delete(namespace, key string) error {
	err := os.Remove(s.path(namespace, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *FsStore) List(namespace string) ([]string, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(namespace))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list namespace %s: %w", namespace, err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		key, err := decodeKey(strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.Printf("Store: Skipping file with undecodable name %s/%s", namespace, name)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *FsStore) Close() error {
	return nil
}

/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const dataFileExtension string = ".id"

// fileSystemBackend keeps one file per entry in a directory
type fileSystemBackend struct {
	path string
}

// NewFileSystemBackend creates a backend rooted at path, creating the
// directory if needed
func NewFileSystemBackend(path string) (Backend, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(cleanPath, 0700); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory %s", cleanPath)
	}
	return &fileSystemBackend{cleanPath}, nil
}

func (fsb *fileSystemBackend) pathname(key string) string {
	return filepath.Join(fsb.path, key) + dataFileExtension
}

// writeTemp writes content to a temporary file in the store directory
func (fsb *fileSystemBackend) writeTemp(content []byte) (string, error) {
	f, err := os.CreateTemp(fsb.path, ".tmp-*")
	if err != nil {
		return "", err
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close() // ignore error; Write error takes precedence
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Create links a fully written temporary file into place. Linking fails if
// the target exists, so readers never see a partial entry and concurrent
// creators cannot overwrite each other.
func (fsb *fileSystemBackend) Create(key string, content []byte) error {
	tmp, err := fsb.writeTemp(content)
	if err != nil {
		return errors.Wrap(err, "failed to write temporary entry")
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, fsb.pathname(key)); err != nil {
		if os.IsExist(err) {
			return ErrEntryExists
		}
		return errors.Wrap(err, "failed to link entry")
	}
	return nil
}

// Replace renames a fully written temporary file over the entry
func (fsb *fileSystemBackend) Replace(key string, content []byte) error {
	tmp, err := fsb.writeTemp(content)
	if err != nil {
		return errors.Wrap(err, "failed to write temporary entry")
	}

	if err := os.Rename(tmp, fsb.pathname(key)); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to rename entry")
	}
	return nil
}

func (fsb *fileSystemBackend) Get(key string) ([]byte, error) {
	content, err := os.ReadFile(fsb.pathname(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return content, nil
}

func (fsb *fileSystemBackend) Exists(key string) (bool, error) {
	_, err := os.Stat(fsb.pathname(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fsb *fileSystemBackend) Remove(key string) error {
	err := os.Remove(fsb.pathname(key))
	if os.IsNotExist(err) {
		return ErrEntryNotFound
	}
	return err
}

func (fsb *fileSystemBackend) List() ([]string, error) {
	files, err := os.ReadDir(fsb.path)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if filepath.Ext(name) == dataFileExtension {
			keys = append(keys, strings.TrimSuffix(name, dataFileExtension))
		}
	}
	return keys, nil
}

func (fsb *fileSystemBackend) Close() error {
	return nil
}

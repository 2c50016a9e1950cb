package facestore

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

const photoQuality = 95

// writePhotos saves photos as 1.jpg, 2.jpg, ... in the identity folder.
func (s *Store) writePhotos(id, name string, photos []image.Image, overwrite bool) error {
	if overwrite {
		if err := s.removePhotoFolders(id); err != nil {
			return err
		}
	}

	folder := s.PhotoFolder(id, name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("path", folder).Build()
	}

	for i, photo := range photos {
		path := filepath.Join(folder, fmt.Sprintf("%d.jpg", i+1))
		if err := imaging.Save(photo, path, imaging.JPEGQuality(photoQuality)); err != nil {
			return errors.New(err).
				Category(errors.CategoryFileIO).
				Context("employee_id", id).
				Context("photo", i+1).
				Build()
		}
	}
	return nil
}

// photoFolders lists the folders owned by id, matched by the "{id}_" prefix.
// A folder that also matches a longer known id, such as "A_B_x" for "A" when
// "A_B" exists, belongs to the longer id. Callers hold mu.
func (s *Store) photoFolders(id string) ([]string, error) {
	entries, err := os.ReadDir(s.photosDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := id + "_"
	var longer []string
	for _, ident := range s.identities {
		if ident.ID != id && strings.HasPrefix(ident.ID, prefix) {
			longer = append(longer, ident.ID+"_")
		}
	}

	var folders []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if slices.ContainsFunc(longer, func(p string) bool { return strings.HasPrefix(name, p) }) {
			continue
		}
		folders = append(folders, filepath.Join(s.photosDir, name))
	}
	return folders, nil
}

func (s *Store) removePhotoFolders(id string) error {
	folders, err := s.photoFolders(id)
	if err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("employee_id", id).Build()
	}
	for _, f := range folders {
		if err := os.RemoveAll(f); err != nil {
			return errors.New(err).Category(errors.CategoryFileIO).Context("path", f).Build()
		}
		s.log.Debug("removed photo folder", logger.String("path", f))
	}
	return nil
}

func (s *Store) renamePhotoFolder(id, newName string) error {
	folders, err := s.photoFolders(id)
	if err != nil {
		return err
	}

	target := s.PhotoFolder(id, newName)
	for _, old := range folders {
		if old == target {
			continue
		}
		if _, err := os.Stat(target); err == nil {
			if err := os.RemoveAll(target); err != nil {
				return err
			}
		}
		if err := os.Rename(old, target); err != nil {
			return err
		}
		s.log.Info("renamed photo folder", logger.String("from", old), logger.String("to", target))
	}
	return nil
}

// Package bids answers the few questions the entrypoint asks of a BIDS
// dataset: which subjects exist and where their T1-weighted images are.
// Structural validation is left to the external bids-validator.
package bids

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/vk/magetbrain-bids/internal/fsutil"
)

// SubjectPrefix is the directory prefix of a BIDS subject.
const SubjectPrefix = "sub-"

// NormalizeLabel strips a leading "sub-" so both "01" and "sub-01" name the
// same participant.
func NormalizeLabel(label string) string {
	return strings.TrimPrefix(label, SubjectPrefix)
}

// Subjects returns the labels of all sub-* directories directly under root,
// in lexical order.
func Subjects(fsys afero.Fs, root string) ([]string, error) {
	matches, err := fsutil.Glob(fsys, filepath.Join(root, SubjectPrefix+"*"))
	if err != nil {
		return nil, err
	}

	var labels []string
	for _, m := range matches {
		info, err := fsys.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("failed to stat '%s': %w", m, err)
		}
		if !info.IsDir() {
			continue
		}
		labels = append(labels, NormalizeLabel(filepath.Base(m)))
	}
	return labels, nil
}

// SelectSubjects returns the normalized labels when any were given, and
// every subject in the dataset otherwise.
func SelectSubjects(fsys afero.Fs, root string, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return Subjects(fsys, root)
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, NormalizeLabel(l))
	}
	return out, nil
}

// T1wImages returns the subject's T1w images: those in anat/ first, then
// those in ses-*/anat/ ordered by session.
func T1wImages(fsys afero.Fs, root, label string) ([]string, error) {
	subjectDir := filepath.Join(root, SubjectPrefix+label)

	direct, err := fsutil.Glob(fsys, filepath.Join(subjectDir, "anat", "*_T1w.nii*"))
	if err != nil {
		return nil, err
	}
	sessions, err := fsutil.Glob(fsys, filepath.Join(subjectDir, "ses-*", "anat", "*_T1w.nii*"))
	if err != nil {
		return nil, err
	}
	return append(direct, sessions...), nil
}

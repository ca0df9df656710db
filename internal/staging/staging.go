// Package staging lays out the mb.sh input tree inside the BIDS App output
// directory and removes the intermediates after the group stage.
package staging

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/vk/magetbrain-bids/internal/bids"
	"github.com/vk/magetbrain-bids/internal/catalog"
	"github.com/vk/magetbrain-bids/internal/ctxlog"
	"github.com/vk/magetbrain-bids/internal/fsutil"
)

// Input directories under the output directory.
const (
	AtlasDir    = "input/atlas"
	TemplateDir = "input/template"
	SubjectDir  = "input/subject"
)

// CleanupDirs are the intermediates removed after the group stage.
var CleanupDirs = []string{
	"input",
	"output/transforms",
	"output/labels/candidates",
}

// Stager copies images into the pipeline input tree. With DryRun set it
// only logs what it would do.
type Stager struct {
	FS     afero.Fs
	DryRun bool
}

// CopyAll performs the planned copies in order.
func (s *Stager) CopyAll(ctx context.Context, plan []catalog.Copy) error {
	logger := ctxlog.FromContext(ctx)
	for _, c := range plan {
		if s.DryRun {
			logger.Info("Dry run: skipping copy.", "src", c.Src, "dst", c.Dst)
			continue
		}
		logger.Debug("Copying file.", "src", c.Src, "dst", c.Dst)
		if err := fsutil.CopyFile(s.FS, c.Src, c.Dst); err != nil {
			return err
		}
	}
	logger.Info("Files staged.", "count", len(plan))
	return nil
}

// TemplatePlan picks the first T1w image of each subject as a template.
// When the subjects were not chosen explicitly only the first limit of them
// are used. A subject without a T1w image is an error.
func TemplatePlan(fsys afero.Fs, bidsDir, outputDir string, subjects []string, limit int, explicit bool) ([]catalog.Copy, error) {
	if !explicit && limit > 0 && len(subjects) > limit {
		subjects = subjects[:limit]
	}

	dst := filepath.Join(outputDir, TemplateDir)
	plan := make([]catalog.Copy, 0, len(subjects))
	for _, sub := range subjects {
		images, err := bids.T1wImages(fsys, bidsDir, sub)
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("no T1w image found for subject %q", sub)
		}
		plan = append(plan, catalog.Copy{Src: images[0], Dst: filepath.Join(dst, filepath.Base(images[0]))})
	}
	return plan, nil
}

// SubjectPlan stages every T1w image of every subject, sessions included.
func SubjectPlan(fsys afero.Fs, bidsDir, outputDir string, subjects []string) ([]catalog.Copy, error) {
	dst := filepath.Join(outputDir, SubjectDir)
	var plan []catalog.Copy
	for _, sub := range subjects {
		images, err := bids.T1wImages(fsys, bidsDir, sub)
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			plan = append(plan, catalog.Copy{Src: img, Dst: filepath.Join(dst, filepath.Base(img))})
		}
	}
	return plan, nil
}

// Destinations returns the staged paths of a plan, in order.
func Destinations(plan []catalog.Copy) []string {
	out := make([]string, 0, len(plan))
	for _, c := range plan {
		out = append(out, c.Dst)
	}
	return out
}

// Cleanup removes CleanupDirs under outputDir. Directories that do not
// exist are skipped.
func (s *Stager) Cleanup(ctx context.Context, outputDir string) error {
	logger := ctxlog.FromContext(ctx)
	for _, d := range CleanupDirs {
		path := filepath.Join(outputDir, d)
		if s.DryRun {
			logger.Info("Dry run: skipping removal.", "path", path)
			continue
		}
		logger.Info("Removing intermediate directory.", "path", path)
		if err := s.FS.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove '%s': %w", path, err)
		}
	}
	return nil
}

package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"github.com/vk/magetbrain-bids/internal/fsutil"
)

// ErrUnknownSegmentation is returned when a segmentation type is not defined
// by the catalog.
var ErrUnknownSegmentation = errors.New("unknown segmentation type")

// Catalog is the decoded atlas catalog.
type Catalog struct {
	AtlasRoot     string         `hcl:"atlas_root,optional"`
	Pipeline      *Pipeline      `hcl:"pipeline,block"`
	AtlasSets     []AtlasSet     `hcl:"atlas_set,block"`
	Segmentations []Segmentation `hcl:"segmentation,block"`
}

// Pipeline names the external programs and pipeline-wide limits.
type Pipeline struct {
	Driver         string `hcl:"driver,optional"`
	Validator      string `hcl:"validator,optional"`
	FastRegCommand string `hcl:"fast_reg_command,optional"`
	TemplateLimit  int    `hcl:"template_limit,optional"`
}

// AtlasSet is a group of atlas T1 images. Either Images (a glob, each match
// keeps its base name) or Image (a single file renamed to Target) is set.
type AtlasSet struct {
	Name   string `hcl:"name,label"`
	Images string `hcl:"images,optional"`
	Image  string `hcl:"image,optional"`
	Target string `hcl:"target,optional"`
}

// Segmentation maps a segmentation type onto an atlas set and its labels.
type Segmentation struct {
	Name     string   `hcl:"name,label"`
	AtlasSet string   `hcl:"atlas_set"`
	Labels   string   `hcl:"labels,optional"`
	Suffix   string   `hcl:"suffix,optional"`
	Label    string   `hcl:"label,optional"`
	Target   string   `hcl:"target,optional"`
	Include  []string `hcl:"include,optional"`
}

// Copy is a single planned file copy.
type Copy struct {
	Src string
	Dst string
}

func defaultPipeline() Pipeline {
	return Pipeline{
		Driver:         "mb.sh",
		Validator:      "bids-validator",
		FastRegCommand: "mb_register_fast.sh",
		TemplateLimit:  20,
	}
}

// applyDefaults fills in pipeline settings left out of the document.
func (c *Catalog) applyDefaults() {
	def := defaultPipeline()
	if c.Pipeline == nil {
		c.Pipeline = &def
		return
	}
	if c.Pipeline.Driver == "" {
		c.Pipeline.Driver = def.Driver
	}
	if c.Pipeline.Validator == "" {
		c.Pipeline.Validator = def.Validator
	}
	if c.Pipeline.FastRegCommand == "" {
		c.Pipeline.FastRegCommand = def.FastRegCommand
	}
	if c.Pipeline.TemplateLimit == 0 {
		c.Pipeline.TemplateLimit = def.TemplateLimit
	}
}

func (c *Catalog) validate() error {
	sets := make(map[string]bool, len(c.AtlasSets))
	for _, s := range c.AtlasSets {
		if sets[s.Name] {
			return fmt.Errorf("atlas_set %q is defined more than once", s.Name)
		}
		sets[s.Name] = true
		if (s.Images == "") == (s.Image == "") {
			return fmt.Errorf("atlas_set %q: exactly one of 'images' or 'image' must be set", s.Name)
		}
		if s.Image != "" && s.Target == "" {
			return fmt.Errorf("atlas_set %q: 'image' requires 'target'", s.Name)
		}
	}

	segs := make(map[string]Segmentation, len(c.Segmentations))
	for _, s := range c.Segmentations {
		if _, dup := segs[s.Name]; dup {
			return fmt.Errorf("segmentation %q is defined more than once", s.Name)
		}
		segs[s.Name] = s
		if !sets[s.AtlasSet] {
			return fmt.Errorf("segmentation %q: unknown atlas_set %q", s.Name, s.AtlasSet)
		}
		switch {
		case len(s.Include) > 0:
			if s.Labels != "" || s.Label != "" {
				return fmt.Errorf("segmentation %q: 'include' cannot be combined with 'labels' or 'label'", s.Name)
			}
		case s.Labels != "":
			if s.Suffix == "" {
				return fmt.Errorf("segmentation %q: 'labels' requires 'suffix'", s.Name)
			}
			if s.Label != "" {
				return fmt.Errorf("segmentation %q: 'labels' and 'label' are mutually exclusive", s.Name)
			}
		case s.Label != "":
			if s.Target == "" {
				return fmt.Errorf("segmentation %q: 'label' requires 'target'", s.Name)
			}
		default:
			return fmt.Errorf("segmentation %q: one of 'labels', 'label' or 'include' must be set", s.Name)
		}
	}

	for _, s := range c.Segmentations {
		for _, inc := range s.Include {
			target, ok := segs[inc]
			if !ok {
				return fmt.Errorf("segmentation %q: includes unknown segmentation %q", s.Name, inc)
			}
			if len(target.Include) > 0 {
				return fmt.Errorf("segmentation %q: included segmentation %q must not itself use 'include'", s.Name, inc)
			}
		}
	}
	return nil
}

// Names returns the defined segmentation types, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Segmentations))
	for _, s := range c.Segmentations {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) segmentation(name string) (Segmentation, bool) {
	for _, s := range c.Segmentations {
		if s.Name == name {
			return s, true
		}
	}
	return Segmentation{}, false
}

func (c *Catalog) atlasSet(name string) (AtlasSet, bool) {
	for _, s := range c.AtlasSets {
		if s.Name == name {
			return s, true
		}
	}
	return AtlasSet{}, false
}

// resolve makes a catalog path absolute against AtlasRoot.
func (c *Catalog) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.AtlasRoot, p)
}

// Plan lists the copies that stage the atlas images and the labels of
// the named segmentation type into atlasDir. Atlas images come first,
// then labels; glob matches are in lexical order.
func (c *Catalog) Plan(fsys afero.Fs, name, atlasDir string) ([]Copy, error) {
	seg, ok := c.segmentation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownSegmentation, name, c.Names())
	}
	set, _ := c.atlasSet(seg.AtlasSet)

	plan, err := c.planAtlases(fsys, set, atlasDir)
	if err != nil {
		return nil, err
	}

	labelSegs := []Segmentation{seg}
	if len(seg.Include) > 0 {
		labelSegs = labelSegs[:0]
		for _, inc := range seg.Include {
			s, _ := c.segmentation(inc)
			labelSegs = append(labelSegs, s)
		}
	}
	for _, s := range labelSegs {
		labels, err := c.planLabels(fsys, s, atlasDir)
		if err != nil {
			return nil, err
		}
		plan = append(plan, labels...)
	}
	return plan, nil
}

func (c *Catalog) planAtlases(fsys afero.Fs, set AtlasSet, atlasDir string) ([]Copy, error) {
	if set.Image != "" {
		return []Copy{{Src: c.resolve(set.Image), Dst: filepath.Join(atlasDir, set.Target)}}, nil
	}
	matches, err := fsutil.Glob(fsys, c.resolve(set.Images))
	if err != nil {
		return nil, fmt.Errorf("atlas_set %q: %w", set.Name, err)
	}
	plan := make([]Copy, 0, len(matches))
	for _, m := range matches {
		plan = append(plan, Copy{Src: m, Dst: filepath.Join(atlasDir, filepath.Base(m))})
	}
	return plan, nil
}

func (c *Catalog) planLabels(fsys afero.Fs, seg Segmentation, atlasDir string) ([]Copy, error) {
	if seg.Label != "" {
		return []Copy{{Src: c.resolve(seg.Label), Dst: filepath.Join(atlasDir, seg.Target)}}, nil
	}
	matches, err := fsutil.Glob(fsys, c.resolve(seg.Labels))
	if err != nil {
		return nil, fmt.Errorf("segmentation %q: %w", seg.Name, err)
	}
	plan := make([]Copy, 0, len(matches))
	for _, m := range matches {
		plan = append(plan, Copy{Src: m, Dst: filepath.Join(atlasDir, LabelName(filepath.Base(m), seg.Suffix))})
	}
	return plan, nil
}

// LabelName returns the staged name of a label image: the extensions and
// the final character of the stem are dropped and the suffix appended, so
// "brain1l.nii.gz" with suffix "amygdala" becomes "brain1_amygdala.nii.gz".
func LabelName(base, suffix string) string {
	stem := []rune(fsutil.TrimNiftiExt(base))
	if len(stem) > 0 {
		stem = stem[:len(stem)-1]
	}
	return string(stem) + "_" + suffix + ".nii.gz"
}

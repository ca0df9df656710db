package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// atlasTree writes the container's atlas layout under root.
func atlasTree(t *testing.T, root string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := []string{
		"brains_t1_nifti/brain2.nii.gz",
		"brains_t1_nifti/brain1.nii.gz",
		"brains_t1_nifti/README",
		"colin/colin27_t1_tal_lin.nii",
		"amygdala/labels/brain1l.nii.gz",
		"amygdala/labels/brain2l.nii.gz",
		"cerebellum/labels/brain1l.nii.gz",
		"hippocampus-whitematter/labels/brain1l.nii.gz",
		"colin27-subcortical/labels/thalamus-globus_pallidus-striatum.nii.gz",
	}
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fsys, root+"/"+f, []byte(f), 0o644))
	}
	return fsys
}

func TestLoadDefault(t *testing.T) {
	c, err := LoadDefault(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "/opt/atlases-nifti", c.AtlasRoot)
	assert.Equal(t, Pipeline{
		Driver:         "mb.sh",
		Validator:      "bids-validator",
		FastRegCommand: "mb_register_fast.sh",
		TemplateLimit:  20,
	}, *c.Pipeline)
	assert.Equal(t, []string{
		"all",
		"amygdala",
		"cerebellum",
		"colin27-subcortical",
		"hippocampus-whitematter",
	}, c.Names())
}

func TestLoadDefault_AtlasRootFromEnv(t *testing.T) {
	c, err := LoadDefault(context.Background(), map[string]string{"MAGETBRAIN_ATLAS_ROOT": "/data/atlases"})
	require.NoError(t, err)
	assert.Equal(t, "/data/atlases", c.AtlasRoot)
}

func TestPlan_DefaultCatalog(t *testing.T) {
	const root = "/opt/atlases-nifti"
	const dst = "/out/input/atlas"
	fsys := atlasTree(t, root)

	c, err := LoadDefault(context.Background(), nil)
	require.NoError(t, err)

	big5 := []Copy{
		{Src: root + "/brains_t1_nifti/brain1.nii.gz", Dst: dst + "/brain1.nii.gz"},
		{Src: root + "/brains_t1_nifti/brain2.nii.gz", Dst: dst + "/brain2.nii.gz"},
	}
	amygdala := []Copy{
		{Src: root + "/amygdala/labels/brain1l.nii.gz", Dst: dst + "/brain1_amygdala.nii.gz"},
		{Src: root + "/amygdala/labels/brain2l.nii.gz", Dst: dst + "/brain2_amygdala.nii.gz"},
	}
	cerebellum := []Copy{
		{Src: root + "/cerebellum/labels/brain1l.nii.gz", Dst: dst + "/brain1_cerebellum.nii.gz"},
	}
	hcwm := []Copy{
		{Src: root + "/hippocampus-whitematter/labels/brain1l.nii.gz", Dst: dst + "/brain1_hcwm.nii.gz"},
	}

	testCases := []struct {
		name string
		seg  string
		want []Copy
	}{
		{name: "amygdala", seg: "amygdala", want: concat(big5, amygdala)},
		{name: "cerebellum", seg: "cerebellum", want: concat(big5, cerebellum)},
		{name: "hippocampus-whitematter", seg: "hippocampus-whitematter", want: concat(big5, hcwm)},
		{name: "all", seg: "all", want: concat(big5, amygdala, cerebellum, hcwm)},
		{
			name: "colin27-subcortical",
			seg:  "colin27-subcortical",
			want: []Copy{
				{Src: root + "/colin/colin27_t1_tal_lin.nii", Dst: dst + "/colin27_t1.nii"},
				{Src: root + "/colin27-subcortical/labels/thalamus-globus_pallidus-striatum.nii.gz", Dst: dst + "/colin27_label_subcortical.nii.gz"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Plan(fsys, tc.seg, dst)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Plan(%q) mismatch (-want +got):\n%s", tc.seg, diff)
			}
		})
	}
}

func TestPlan_UnknownSegmentation(t *testing.T) {
	c, err := LoadDefault(context.Background(), nil)
	require.NoError(t, err)

	_, err = c.Plan(afero.NewMemMapFs(), "thalamus", "/out")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSegmentation))
}

func TestLabelName(t *testing.T) {
	assert.Equal(t, "brain1_amygdala.nii.gz", LabelName("brain1l.nii.gz", "amygdala"))
	assert.Equal(t, "brain1_hcwm.nii.gz", LabelName("brain1r.nii", "hcwm"))
	assert.Equal(t, "_x.nii.gz", LabelName("", "x"))
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name      string
		src       string
		errSubstr string
	}{
		{
			name:      "syntax error",
			src:       `atlas_set "a" {`,
			errSubstr: "failed to parse catalog",
		},
		{
			name:      "unknown attribute",
			src:       `bogus = 1`,
			errSubstr: "failed to decode catalog",
		},
		{
			name: "unknown atlas set",
			src: `
segmentation "s" {
  atlas_set = "missing"
  label     = "x.nii.gz"
  target    = "y.nii.gz"
}`,
			errSubstr: `unknown atlas_set "missing"`,
		},
		{
			name: "atlas set with both image forms",
			src: `
atlas_set "a" {
  images = "*.nii.gz"
  image  = "x.nii"
  target = "y.nii"
}`,
			errSubstr: "exactly one of 'images' or 'image'",
		},
		{
			name: "labels without suffix",
			src: `
atlas_set "a" {
  images = "*.nii.gz"
}
segmentation "s" {
  atlas_set = "a"
  labels    = "*.nii.gz"
}`,
			errSubstr: "'labels' requires 'suffix'",
		},
		{
			name: "nested include",
			src: `
atlas_set "a" {
  images = "*.nii.gz"
}
segmentation "leaf" {
  atlas_set = "a"
  labels    = "*.nii.gz"
  suffix    = "leaf"
}
segmentation "mid" {
  atlas_set = "a"
  include   = ["leaf"]
}
segmentation "top" {
  atlas_set = "a"
  include   = ["mid"]
}`,
			errSubstr: "must not itself use 'include'",
		},
		{
			name: "include unknown",
			src: `
atlas_set "a" {
  images = "*.nii.gz"
}
segmentation "top" {
  atlas_set = "a"
  include   = ["nope"]
}`,
			errSubstr: `includes unknown segmentation "nope"`,
		},
		{
			name: "empty segmentation",
			src: `
atlas_set "a" {
  images = "*.nii.gz"
}
segmentation "s" {
  atlas_set = "a"
}`,
			errSubstr: "one of 'labels', 'label' or 'include'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tc.src), "test.hcl", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errSubstr)
		})
	}
}

func TestParse_PipelineDefaultsAndFunctions(t *testing.T) {
	src := `
atlas_root = lower(lookup(env, "ROOT", "/ATLASES"))

pipeline {
  driver = format("%s.sh", coalesce(null, "mb"))
}

atlas_set "a" {
  images = "t1/*.nii.gz"
}
`
	c, err := Parse(context.Background(), []byte(src), "test.hcl", map[string]string{"OTHER": "1"})
	require.NoError(t, err)

	assert.Equal(t, "/atlases", c.AtlasRoot)
	assert.Equal(t, "mb.sh", c.Pipeline.Driver)
	assert.Equal(t, "bids-validator", c.Pipeline.Validator)
	assert.Equal(t, 20, c.Pipeline.TemplateLimit)
	assert.Empty(t, c.Names())
}

func TestLoadFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	src := `
atlas_root = "/site"

atlas_set "one" {
  image  = "t1.nii"
  target = "one_t1.nii"
}

segmentation "custom" {
  atlas_set = "one"
  labels    = "labels/*.nii.gz"
  suffix    = "custom"
}
`
	require.NoError(t, afero.WriteFile(fsys, "/etc/catalog.hcl", []byte(src), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/site/labels/onel.nii.gz", nil, 0o644))

	c, err := LoadFile(context.Background(), fsys, "/etc/catalog.hcl", nil)
	require.NoError(t, err)

	plan, err := c.Plan(fsys, "custom", "/atlas")
	require.NoError(t, err)
	assert.Equal(t, []Copy{
		{Src: "/site/t1.nii", Dst: "/atlas/one_t1.nii"},
		{Src: "/site/labels/onel.nii.gz", Dst: "/atlas/one_custom.nii.gz"},
	}, plan)

	_, err = LoadFile(context.Background(), fsys, "/etc/missing.hcl", nil)
	require.Error(t, err)
}

func concat(parts ...[]Copy) []Copy {
	var out []Copy
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

package bids

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataset(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := []string{
		"/bids/dataset_description.json",
		"/bids/sub-02/anat/sub-02_T1w.nii.gz",
		"/bids/sub-01/anat/sub-01_T1w.nii.gz",
		"/bids/sub-01/anat/sub-01_T2w.nii.gz",
		"/bids/sub-03/ses-2/anat/sub-03_ses-2_T1w.nii.gz",
		"/bids/sub-03/ses-1/anat/sub-03_ses-1_T1w.nii",
		"/bids/sub-03/anat/sub-03_run-1_T1w.nii.gz",
		"/bids/sub-04/func/sub-04_bold.nii.gz",
		"/bids/sub-notadir",
	}
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fsys, f, []byte("x"), 0o644))
	}
	return fsys
}

func TestSubjects(t *testing.T) {
	got, err := Subjects(dataset(t), "/bids")
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02", "03", "04"}, got)
}

func TestSubjects_LabelWithHyphenatedRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/my-data/bids-root/sub-abc", 0o755))

	got, err := Subjects(fsys, "/my-data/bids-root")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, got)
}

func TestSelectSubjects(t *testing.T) {
	fsys := dataset(t)

	got, err := SelectSubjects(fsys, "/bids", []string{"sub-02", "03"})
	require.NoError(t, err)
	assert.Equal(t, []string{"02", "03"}, got)

	all, err := SelectSubjects(fsys, "/bids", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02", "03", "04"}, all)
}

func TestT1wImages(t *testing.T) {
	fsys := dataset(t)

	testCases := []struct {
		name  string
		label string
		want  []string
	}{
		{
			name:  "anat only",
			label: "01",
			want:  []string{"/bids/sub-01/anat/sub-01_T1w.nii.gz"},
		},
		{
			name:  "anat then sessions",
			label: "03",
			want: []string{
				"/bids/sub-03/anat/sub-03_run-1_T1w.nii.gz",
				"/bids/sub-03/ses-1/anat/sub-03_ses-1_T1w.nii",
				"/bids/sub-03/ses-2/anat/sub-03_ses-2_T1w.nii.gz",
			},
		},
		{
			name:  "no T1w",
			label: "04",
			want:  nil,
		},
		{
			name:  "missing subject",
			label: "99",
			want:  nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := T1wImages(fsys, "/bids", tc.label)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

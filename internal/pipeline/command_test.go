package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	for _, s := range []string{"participant1", "participant2", "group"} {
		st, err := ParseStage(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(st))
	}

	_, err := ParseStage("participant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid analysis level "participant"`)
}

func TestCommandString(t *testing.T) {
	base := Options{Driver: "mb.sh", FastRegCommand: "mb_register_fast.sh", NCPUs: 4, Dir: "/out"}
	fast := base
	fast.Fast = true
	masked := base
	masked.LabelMasking = true
	both := fast
	both.LabelMasking = true

	testCases := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "validator",
			cmd:  Validator("bids-validator", "/data/bids"),
			want: "bids-validator /data/bids",
		},
		{
			name: "init",
			cmd:  Init(base),
			want: "mb.sh -- init",
		},
		{
			name: "template",
			cmd:  Template(base, []string{"/out/input/template/a_T1w.nii.gz", "/out/input/template/b_T1w.nii.gz"}),
			want: "QBATCH_PPJ=4 QBATCH_CHUNKSIZE=1 QBATCH_CORES=1 mb.sh -t /out/input/template/a_T1w.nii.gz /out/input/template/b_T1w.nii.gz -- template",
		},
		{
			name: "template fast",
			cmd:  Template(fast, []string{"t.nii"}),
			want: "QBATCH_PPJ=4 QBATCH_CHUNKSIZE=1 QBATCH_CORES=1 mb.sh --reg-command mb_register_fast.sh -t t.nii -- template",
		},
		{
			name: "subject label masking",
			cmd:  Subject(masked, []string{"s1.nii.gz"}),
			want: "QBATCH_PPJ=4 QBATCH_CHUNKSIZE=1 QBATCH_CORES=1 mb.sh --label-masking -s s1.nii.gz -- subject",
		},
		{
			name: "subject fast and masked",
			cmd:  Subject(both, []string{"s1.nii.gz", "s2.nii.gz"}),
			want: "QBATCH_PPJ=4 QBATCH_CHUNKSIZE=1 QBATCH_CORES=1 mb.sh --reg-command mb_register_fast.sh --label-masking -s s1.nii.gz s2.nii.gz -- subject",
		},
		{
			name: "group ignores registration flags",
			cmd:  Group(both),
			want: "QBATCH_PPJ=4 QBATCH_CHUNKSIZE=1 QBATCH_CORES=1 mb.sh -- resample vote qc",
		},
		{
			name: "quoting",
			cmd:  Command{Name: "echo", Args: []string{"a b", "it's", ""}, Env: []EnvVar{{Key: "X", Value: "1 2"}}},
			want: `X='1 2' echo 'a b' 'it'"'"'s' ''`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cmd.String())
		})
	}
}

func TestStageCommandsRunInOutputDir(t *testing.T) {
	o := Options{Driver: "mb.sh", NCPUs: 1, Dir: "/out"}

	assert.Equal(t, "/out", Init(o).Dir)
	assert.Equal(t, "/out", Template(o, nil).Dir)
	assert.Equal(t, "/out", Subject(o, nil).Dir)
	assert.Equal(t, "/out", Group(o).Dir)
	assert.Empty(t, Validator("bids-validator", "/bids").Dir)
}

func TestGroupArgs(t *testing.T) {
	cmd := Group(Options{Driver: "mb.sh", NCPUs: 2})
	assert.Equal(t, []string{"--", "resample", "vote", "qc"}, cmd.Args)
	assert.Equal(t, []string{"QBATCH_PPJ=2", "QBATCH_CHUNKSIZE=1", "QBATCH_CORES=1"}, cmd.Environ())
}

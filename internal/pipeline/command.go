package pipeline

import (
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// EnvVar is a single environment assignment for a command.
type EnvVar struct {
	Key   string
	Value string
}

// Command is one external program invocation.
type Command struct {
	Name string
	Args []string
	Env  []EnvVar
	// Dir is the working directory; empty means the current one.
	Dir string
}

// String renders the command the way it would be typed into a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+1+len(c.Args))
	for _, e := range c.Env {
		parts = append(parts, e.Key+"="+shellescape.Quote(e.Value))
	}
	parts = append(parts, shellescape.Quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, shellescape.Quote(a))
	}
	return strings.Join(parts, " ")
}

// Environ returns the command's assignments in KEY=VALUE form.
func (c Command) Environ() []string {
	out := make([]string, 0, len(c.Env))
	for _, e := range c.Env {
		out = append(out, e.Key+"="+e.Value)
	}
	return out
}

// Options configures the mb.sh invocations.
type Options struct {
	Driver         string
	FastRegCommand string
	NCPUs          int
	Fast           bool
	LabelMasking   bool
	// Dir is the pipeline working directory, the BIDS App output directory.
	Dir string
}

// batchEnv sets up qbatch so mb.sh runs NCPUs single-core jobs in parallel
// on the local machine.
func (o Options) batchEnv() []EnvVar {
	return []EnvVar{
		{Key: "QBATCH_PPJ", Value: strconv.Itoa(o.NCPUs)},
		{Key: "QBATCH_CHUNKSIZE", Value: "1"},
		{Key: "QBATCH_CORES", Value: "1"},
	}
}

func (o Options) registrationArgs() []string {
	var args []string
	if o.Fast {
		args = append(args, "--reg-command", o.FastRegCommand)
	}
	if o.LabelMasking {
		args = append(args, "--label-masking")
	}
	return args
}

// Validator checks the dataset at bidsDir.
func Validator(bin, bidsDir string) Command {
	return Command{Name: bin, Args: []string{bidsDir}}
}

// Init creates the mb.sh input/output tree in the working directory.
func Init(o Options) Command {
	return Command{Name: o.Driver, Args: []string{"--", "init"}, Dir: o.Dir}
}

// Template runs the template stage over the given template images.
func Template(o Options, templates []string) Command {
	return o.stageCommand("-t", templates, StageTemplate)
}

// Subject runs the subject stage over the given subject images.
func Subject(o Options, subjects []string) Command {
	return o.stageCommand("-s", subjects, StageSubject)
}

// Group runs resampling, voting and QC.
func Group(o Options) Command {
	args := append([]string{"--"}, strings.Fields(StageGroup.Phase())...)
	return Command{Name: o.Driver, Args: args, Env: o.batchEnv(), Dir: o.Dir}
}

func (o Options) stageCommand(fileFlag string, files []string, stage Stage) Command {
	args := o.registrationArgs()
	args = append(args, fileFlag)
	args = append(args, files...)
	args = append(args, "--", stage.Phase())
	return Command{Name: o.Driver, Args: args, Env: o.batchEnv(), Dir: o.Dir}
}

package pipeline

import "fmt"

// Stage is the BIDS App analysis level.
type Stage string

const (
	// StageTemplate registers atlases to the template library.
	StageTemplate Stage = "participant1"
	// StageSubject registers templates to every subject.
	StageSubject Stage = "participant2"
	// StageGroup resamples candidate labels, votes and runs QC.
	StageGroup Stage = "group"
)

// Stages lists the analysis levels in the order they must be run.
var Stages = []Stage{StageTemplate, StageSubject, StageGroup}

// ParseStage validates an analysis level.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid analysis level %q: must be one of %v", s, Stages)
}

// Phase is the mb.sh name of the stage.
func (s Stage) Phase() string {
	switch s {
	case StageTemplate:
		return "template"
	case StageSubject:
		return "subject"
	case StageGroup:
		return "resample vote qc"
	}
	return ""
}

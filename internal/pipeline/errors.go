package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/archie/internal/anonymize"
	"github.com/fyrsmithlabs/archie/internal/conversation"
	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/publish"
)

// Stage names a pipeline step.
type Stage string

const (
	StageStandardize Stage = "standardize"
	StageAnonymize   Stage = "anonymize"
	StageExtract     Stage = "extract"
	StageMatch       Stage = "match"
	StageRender      Stage = "render"
	StagePublish     Stage = "publish"
)

// Kind classifies a failed run.
type Kind string

const (
	KindFetch          Kind = "fetch_failure"
	KindAnonymization  Kind = "anonymization_failure"
	KindClassification Kind = "classification_failure"
	KindExtraction     Kind = "extraction_failure"
	KindRepositoryRead Kind = "repository_read_failure"
	KindRender         Kind = "render_failure"
	KindPublish        Kind = "publish_failure"
	KindNameExhaustion Kind = "publish_name_exhaustion"
	KindCanceled       Kind = "canceled"
)

// Kinds that are recovered where they happen. They show up in logs and
// metrics but never in a StageError.
const (
	KindMatchDecision    Kind = "match_decision_failure"
	KindLabelApplication Kind = "label_application_failure"
)

// StageError is the error of a failed run: the stage that failed and the
// kind of failure.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func newStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: kindOf(stage, err), Err: err}
}

// kindOf maps an error to its kind, using the stage when no sentinel
// matches.
func kindOf(stage Stage, err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, conversation.ErrFetch):
		return KindFetch
	case errors.Is(err, anonymize.ErrOracle), errors.Is(err, anonymize.ErrDistribute):
		return KindAnonymization
	case errors.Is(err, knowledge.ErrClassification):
		return KindClassification
	case errors.Is(err, knowledge.ErrExtraction):
		return KindExtraction
	case errors.Is(err, index.ErrRepositoryRead):
		return KindRepositoryRead
	case errors.Is(err, publish.ErrNamesExhausted):
		return KindNameExhaustion
	}

	switch stage {
	case StageStandardize:
		return KindFetch
	case StageAnonymize:
		return KindAnonymization
	case StageExtract:
		return KindExtraction
	case StageMatch:
		return KindRepositoryRead
	case StageRender:
		return KindRender
	}
	return KindPublish
}

// KindOf returns the kind of a pipeline error, or "" when err is not a
// StageError.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

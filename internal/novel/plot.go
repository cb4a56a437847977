package novel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPlotStructure is returned when the chapter blueprint is out of order.
var ErrInvalidPlotStructure = errors.New("invalid plot structure")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func plotValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks 1 < conflict < climax < total. The reducer accepts any
// blueprint; generation refuses to build prompts from an invalid one.
func (p PlotStructure) Validate() error {
	if err := plotValidator().Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s fails %q (conflict=%d climax=%d total=%d)",
				ErrInvalidPlotStructure, fe.Field(), fe.Tag(), p.ConflictChapter, p.ClimaxChapter, p.TotalChapters)
		}
		return fmt.Errorf("%w: %v", ErrInvalidPlotStructure, err)
	}
	return nil
}

// Ready reports whether the story foundation has everything the first
// chapter prompt needs.
func (c Choices) Ready() bool {
	return Deref(c.Genre) != "" &&
		c.WritingStyle != "" &&
		c.Premise != "" &&
		c.Synopsis != "" &&
		Deref(c.Opening) != "" &&
		Deref(c.Incident) != ""
}

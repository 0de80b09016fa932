package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
)

const notBlankTag = "notblank"

// submission is the subset of the form checked before submitting.
type submission struct {
	FullName         string   `field:"full_name" validate:"notblank"`
	StudentNumber    string   `field:"student_number" validate:"required,numeric,min=6,max=12"`
	DateOfBirth      string   `field:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	ContactNumber    string   `field:"contact_number" validate:"required,min=10,max=15"`
	DegreeProgram    string   `field:"degree_program" validate:"notblank"`
	Faculty          string   `field:"faculty" validate:"notblank"`
	YearOfStudy      int      `field:"year_of_study" validate:"min=1,max=7"`
	SubjectsToTutor  []string `field:"subjects_to_tutor" validate:"min=1"`
	LanguagesSpoken  []string `field:"languages_spoken" validate:"min=1"`
	Availability     string   `field:"availability" validate:"notblank"`
	MotivationLetter string   `field:"motivation_letter" validate:"min=50"`
}

// Validator checks drafts before submission. Create one with NewValidator
// and reuse it; it caches struct metadata.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator builds a Validator with English error messages keyed by
// form field name.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("field")
	})

	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(s) != ""
	})

	_ = v.RegisterTranslation(notBlankTag, translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " cannot be blank"
		},
	)

	return &Validator{validate: v, translator: translator}
}

// ValidationError lists every failed check, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}

	slices.Sort(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}

	return "application: not ready to submit: " + strings.Join(msgs, "; ")
}

// Check validates snap for submission. It returns a *ValidationError
// listing every problem, or nil.
func (v *Validator) Check(snap autosave.FormSnapshot) error {
	s := toSubmission(snap)

	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("application: validating: %w", err)
	}

	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		msg := fe.Translate(v.translator)
		if msg == fe.Error() {
			// No registered translation for this tag.
			msg = fe.Field() + " is not valid"
		}

		out.Fields[fe.Field()] = msg
	}

	return out
}

func toSubmission(snap autosave.FormSnapshot) submission {
	text := func(name string) string {
		v, _ := snap.Get(name)
		return strings.TrimSpace(v.String())
	}

	list := func(name string) []string {
		v, _ := snap.Get(name)
		return autosave.NormalizeList(v)
	}

	year, _ := parseYear(text(FieldYearOfStudy)).(int)

	return submission{
		FullName:         text(FieldFullName),
		StudentNumber:    text(FieldStudentNumber),
		DateOfBirth:      text(FieldDateOfBirth),
		ContactNumber:    strings.ReplaceAll(text(FieldContactNumber), " ", ""),
		DegreeProgram:    text(FieldDegreeProgram),
		Faculty:          text(FieldFaculty),
		YearOfStudy:      year,
		SubjectsToTutor:  list(FieldSubjectsToTutor),
		LanguagesSpoken:  list(FieldLanguagesSpoken),
		Availability:     text(FieldAvailability),
		MotivationLetter: text(FieldMotivationLetter),
	}
}

// Submit validates d and writes it with status "submitted". It talks to
// the backend directly: submission never goes through autosave and never
// falls back to local storage.
func Submit(ctx context.Context, client Upserter, table string, v *Validator, d *Draft, now time.Time) error {
	if err := v.Check(d.Form); err != nil {
		return err
	}

	if err := client.Upsert(ctx, table, ToRecord(d.Key(), d.Form, StatusSubmitted, now)); err != nil {
		return fmt.Errorf("application: submitting %s: %w", d.RecordID, err)
	}

	return nil
}

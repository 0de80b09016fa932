// Package application defines the tutor-application form: its persisted
// field set, the mapping between form snapshots and backend records, the
// checks a draft must pass before submission, and the TOML draft file
// format used by the CLI.
package application

import "github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"

// Form field names, in form order.
const (
	FieldFullName           = "full_name"
	FieldStudentNumber      = "student_number"
	FieldDateOfBirth        = "date_of_birth"
	FieldGender             = "gender"
	FieldNationality        = "nationality"
	FieldResidentialAddress = "residential_address"
	FieldContactNumber      = "contact_number"
	FieldDegreeProgram      = "degree_program"
	FieldFaculty            = "faculty"
	FieldDepartment         = "department"
	FieldYearOfStudy        = "year_of_study"
	FieldSubjectsCompleted  = "subjects_completed"
	FieldSubjectsToTutor    = "subjects_to_tutor"
	FieldPreviousTutoring   = "previous_tutoring_experience"
	FieldWorkExperience     = "work_experience"
	FieldSkills             = "skills_competencies"
	FieldLanguagesSpoken    = "languages_spoken"
	FieldAvailability       = "availability"
	FieldMotivationLetter   = "motivation_letter"
)

// Record columns that are not form fields.
const (
	ColumnID        = "id"
	ColumnUserID    = "user_id"
	ColumnStatus    = "status"
	ColumnUpdatedAt = "updated_at"
)

// Application statuses written by this module.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// Fields lists every editable field in form order.
var Fields = []string{
	FieldFullName,
	FieldStudentNumber,
	FieldDateOfBirth,
	FieldGender,
	FieldNationality,
	FieldResidentialAddress,
	FieldContactNumber,
	FieldDegreeProgram,
	FieldFaculty,
	FieldDepartment,
	FieldYearOfStudy,
	FieldSubjectsCompleted,
	FieldSubjectsToTutor,
	FieldPreviousTutoring,
	FieldWorkExperience,
	FieldSkills,
	FieldLanguagesSpoken,
	FieldAvailability,
	FieldMotivationLetter,
}

// ListFields are stored as string arrays. The form may supply them as
// comma-separated text.
var ListFields = []string{
	FieldSubjectsCompleted,
	FieldSubjectsToTutor,
	FieldLanguagesSpoken,
}

var (
	knownFields = toSet(Fields)
	listFields  = toSet(ListFields)
)

// IsField reports whether name is an editable form field.
func IsField(name string) bool {
	return knownFields[name]
}

// IsListField reports whether name is stored as a string array.
func IsListField(name string) bool {
	return listFields[name]
}

// NewDetector returns a change detector that compares the list fields by
// content.
func NewDetector() *autosave.Detector {
	return autosave.NewDetector(ListFields...)
}

// EmptyForm returns a snapshot holding every field, blank.
func EmptyForm() autosave.FormSnapshot {
	fields := make([]autosave.Field, 0, len(Fields))
	for _, name := range Fields {
		v := autosave.Text("")
		if IsListField(name) {
			v = autosave.List()
		}

		fields = append(fields, autosave.Field{Name: name, Value: v})
	}

	return autosave.NewSnapshot(fields...)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}

	return set
}

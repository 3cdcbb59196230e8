package domain

import "fmt"

// ============================================================
// Onboarding questionnaire
// ============================================================

// QuestionKind distinguishes option pickers from free-text prompts.
type QuestionKind string

const (
	SingleChoice QuestionKind = "single_choice"
	FreeText     QuestionKind = "free_text"
)

// ProfileField names the profile field an onboarding answer is folded into.
type ProfileField string

const (
	FieldPurpose              ProfileField = "purpose"
	FieldSchedulingPreference ProfileField = "schedulingPreference"
	FieldCalendarProvider     ProfileField = "calendarProvider"
	FieldJobTitle             ProfileField = "jobTitle"
	FieldDepartment           ProfileField = "department"
	FieldBio                  ProfileField = "bio"
)

// Option is one selectable answer of a single-choice question.
type Option struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
}

// OnboardingQuestion is static configuration; it is never persisted.
type OnboardingQuestion struct {
	Title       string       `json:"title"`
	Kind        QuestionKind `json:"kind"`
	Options     []Option     `json:"options,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	IsLongText  bool         `json:"isLongText,omitempty"`
	Field       ProfileField `json:"field"`
}

// HasOption reports whether label is one of the question's options.
func (q OnboardingQuestion) HasOption(label string) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// Apply writes value into the profile field f.
func (f ProfileField) Apply(p *UserProfile, value string) error {
	switch f {
	case FieldPurpose:
		p.Purpose = value
	case FieldSchedulingPreference:
		p.SchedulingPreference = value
	case FieldCalendarProvider:
		p.CalendarProvider = value
	case FieldJobTitle:
		p.JobTitle = value
	case FieldDepartment:
		p.Department = value
	case FieldBio:
		p.Bio = value
	default:
		return fmt.Errorf("unknown profile field %q", f)
	}
	return nil
}

// Onboarding flow names accepted by ONBOARDING_FLOW.
const (
	FlowStandard = "standard"
	FlowExtended = "extended"
)

var (
	purposeQuestion = OnboardingQuestion{
		Title: "What do you want to use Timely for?",
		Kind:  SingleChoice,
		Options: []Option{
			{Label: "Personal", Icon: "person"},
			{Label: "Work", Icon: "briefcase"},
			{Label: "Both", Icon: "person.2"},
		},
		Field: FieldPurpose,
	}
	schedulingQuestion = OnboardingQuestion{
		Title: "How do you prefer to schedule meetings?",
		Kind:  SingleChoice,
		Options: []Option{
			{Label: "Manually", Icon: "hand.tap"},
			{Label: "Automatically", Icon: "sparkles"},
			{Label: "Mixed", Icon: "slider.horizontal.3"},
		},
		Field: FieldSchedulingPreference,
	}
	calendarQuestion = OnboardingQuestion{
		Title: "Set up the calendar that will be used to check for existing events?",
		Kind:  SingleChoice,
		Options: []Option{
			{Label: "Google Calendar", Icon: "calendar"},
			{Label: "Exchange Calendar", Icon: "tray.and.arrow.down.fill"},
			{Label: "Outlook Calendar", Icon: "envelope.badge"},
		},
		Field: FieldCalendarProvider,
	}
)

// StandardQuestions is the three-step flow: purpose, scheduling preference,
// calendar provider.
func StandardQuestions() []OnboardingQuestion {
	return []OnboardingQuestion{purposeQuestion, schedulingQuestion, calendarQuestion}
}

// ExtendedQuestions is the five-step flow that also asks for job details.
func ExtendedQuestions() []OnboardingQuestion {
	return []OnboardingQuestion{
		purposeQuestion,
		{
			Title:       "What is your job title?",
			Kind:        FreeText,
			Placeholder: "e.g. iOS Developer, Project Manager",
			Field:       FieldJobTitle,
		},
		{
			Title:       "Which department do you work in?",
			Kind:        FreeText,
			Placeholder: "e.g. Mobile Development, Human Resources",
			Field:       FieldDepartment,
		},
		{
			Title:       "Could you briefly introduce yourself?",
			Kind:        FreeText,
			Placeholder: "e.g. iOS developer with 5 years of experience...",
			IsLongText:  true,
			Field:       FieldBio,
		},
		schedulingQuestion,
	}
}

// QuestionsForFlow resolves a configured flow name.
func QuestionsForFlow(name string) ([]OnboardingQuestion, error) {
	switch name {
	case FlowStandard, "":
		return StandardQuestions(), nil
	case FlowExtended:
		return ExtendedQuestions(), nil
	default:
		return nil, &ErrValidation{Field: "onboarding_flow", Message: fmt.Sprintf("unknown flow %q", name)}
	}
}

package service

import (
	"context"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/boddenberg/timely-go/internal/domain"
)

// QuestionView is the Presentation Layer's view of the current step.
type QuestionView struct {
	Index    int                       `json:"index"`
	Total    int                       `json:"total"`
	Question domain.OnboardingQuestion `json:"question"`
	Answer   string                    `json:"answer"`
	Valid    bool                      `json:"valid"`
	IsLast   bool                      `json:"isLast"`
	Saving   bool                      `json:"saving"`
}

// saveFunc persists the folded profile and reports whether the session
// accepted it.
type saveFunc func(ctx context.Context, profile *domain.UserProfile) error

// Onboarding collects answers for a fixed question sequence and folds them
// into the draft profile. It is safe for concurrent use; at most one save is
// in flight at a time.
type Onboarding struct {
	mu        sync.Mutex
	questions []domain.OnboardingQuestion
	draft     *domain.UserProfile
	recorded  []string
	has       []bool
	current   string
	index     int
	saving    bool
	completed bool

	policy *bluemonday.Policy
	save   saveFunc
}

// NewOnboarding starts at step 0 with no answers. draft is copied.
func NewOnboarding(questions []domain.OnboardingQuestion, draft *domain.UserProfile, policy *bluemonday.Policy, save saveFunc) *Onboarding {
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	return &Onboarding{
		questions: questions,
		draft:     draft.Clone(),
		recorded:  make([]string, len(questions)),
		has:       make([]bool, len(questions)),
		policy:    policy,
		save:      save,
	}
}

// CurrentQuestion returns the current step and its editable answer.
func (o *Onboarding) CurrentQuestion() QuestionView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// SetAnswer replaces the editable answer of the current step. Single-choice
// answers must be one of the option labels; "" clears the selection.
func (o *Onboarding) SetAnswer(value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.mutableLocked(); err != nil {
		return err
	}
	q := o.questions[o.index]
	if q.Kind == domain.SingleChoice && value != "" && !q.HasOption(value) {
		return &domain.ErrValidation{Field: string(q.Field), Message: "please choose one of the options"}
	}
	o.current = value
	return nil
}

// CurrentAnswerValid reports whether the current step may be advanced.
func (o *Onboarding) CurrentAnswerValid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validLocked()
}

// Advance records the current answer and moves to the next step, restoring
// any answer recorded there earlier. On the last step it finishes.
func (o *Onboarding) Advance(ctx context.Context) error {
	o.mu.Lock()
	if err := o.mutableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if !o.validLocked() {
		q := o.questions[o.index]
		o.mu.Unlock()
		return &domain.ErrValidation{Field: string(q.Field), Message: "please answer the question to continue"}
	}
	if o.index == len(o.questions)-1 {
		o.mu.Unlock()
		return o.Finish(ctx)
	}
	defer o.mu.Unlock()

	o.recordLocked()
	o.index++
	o.current = o.recorded[o.index]
	return nil
}

// GoBack moves to the previous step, keeping the answers recorded so far.
func (o *Onboarding) GoBack() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.mutableLocked(); err != nil {
		return err
	}
	if o.index == 0 {
		return &domain.ErrValidation{Field: "step", Message: "already at the first question"}
	}
	if o.validLocked() {
		o.recordLocked()
	}
	o.index--
	o.current = o.recorded[o.index]
	return nil
}

// Finish folds every recorded answer into a copy of the draft, marks it
// completed and saves it. A failed save keeps all answers so Finish can be
// retried. While a save is in flight further calls return
// domain.ErrSaveInFlight without touching the store.
func (o *Onboarding) Finish(ctx context.Context) error {
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		return nil
	}
	if o.saving {
		o.mu.Unlock()
		return domain.ErrSaveInFlight
	}
	if o.index != len(o.questions)-1 {
		o.mu.Unlock()
		return &domain.ErrValidation{Field: "step", Message: "answer every question before finishing"}
	}
	if !o.validLocked() {
		q := o.questions[o.index]
		o.mu.Unlock()
		return &domain.ErrValidation{Field: string(q.Field), Message: "please answer the question to continue"}
	}
	o.recordLocked()
	profile, err := o.foldLocked()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	profile.IsOnboardingCompleted = true
	o.saving = true
	o.mu.Unlock()

	err = o.save(ctx, profile)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.saving = false
	if err != nil {
		return err
	}
	o.completed = true
	return nil
}

// Patch returns the field values the recorded answers map to, by position.
func (o *Onboarding) Patch() map[domain.ProfileField]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	patch := make(map[domain.ProfileField]string, len(o.questions))
	for i, q := range o.questions {
		if o.has[i] {
			patch[q.Field] = o.recorded[i]
		}
	}
	return patch
}

// Draft returns a copy of the draft profile the answers are folded into.
func (o *Onboarding) Draft() *domain.UserProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft.Clone()
}

func (o *Onboarding) viewLocked() QuestionView {
	return QuestionView{
		Index:    o.index,
		Total:    len(o.questions),
		Question: o.questions[o.index],
		Answer:   o.current,
		Valid:    o.validLocked(),
		IsLast:   o.index == len(o.questions)-1,
		Saving:   o.saving,
	}
}

func (o *Onboarding) mutableLocked() error {
	if o.saving {
		return domain.ErrSaveInFlight
	}
	if o.completed {
		return &domain.ErrWrongState{Operation: "onboarding", Status: domain.StatusHome}
	}
	return nil
}

func (o *Onboarding) validLocked() bool {
	return o.normalizeLocked(o.questions[o.index], o.current) != ""
}

func (o *Onboarding) recordLocked() {
	o.recorded[o.index] = o.normalizeLocked(o.questions[o.index], o.current)
	o.has[o.index] = true
}

// normalizeLocked returns the value that would be recorded: option labels
// as-is, free text stripped of markup and trimmed.
func (o *Onboarding) normalizeLocked(q domain.OnboardingQuestion, value string) string {
	if q.Kind == domain.SingleChoice {
		if q.HasOption(value) {
			return value
		}
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(o.policy.Sanitize(value)))
}

func (o *Onboarding) foldLocked() (*domain.UserProfile, error) {
	profile := o.draft.Clone()
	for i, q := range o.questions {
		if !o.has[i] {
			continue
		}
		if err := q.Field.Apply(profile, o.recorded[i]); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

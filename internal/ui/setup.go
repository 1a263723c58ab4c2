package ui

import (
	"github.com/charmbracelet/huh"
	"github.com/samsaffron/tutor/internal/thinktimer"
	"github.com/samsaffron/tutor/internal/tutor"
)

// SessionSetup holds the choices made before a tutoring session starts.
type SessionSetup struct {
	Delay       thinktimer.Duration
	ProblemType tutor.ProblemType
	Model       string
}

// DelayOptions lists the selectable thinking delays.
func DelayOptions() []huh.Option[thinktimer.Duration] {
	choices := thinktimer.Choices()
	options := make([]huh.Option[thinktimer.Duration], 0, len(choices))
	for _, d := range choices {
		options = append(options, huh.NewOption(d.Label(), d))
	}
	return options
}

// ProblemOptions lists the selectable problem types.
func ProblemOptions() []huh.Option[tutor.ProblemType] {
	types := tutor.ProblemTypes()
	options := make([]huh.Option[tutor.ProblemType], 0, len(types))
	for _, p := range types {
		options = append(options, huh.NewOption(p.Label(), p))
	}
	return options
}

// SetupForm builds the session setup form bound to s. The model question is
// only asked when there is more than one model to pick from.
func SetupForm(s *SessionSetup, models []string) *huh.Form {
	fields := []huh.Field{
		huh.NewSelect[tutor.ProblemType]().
			Title("What would you like to practise?").
			Options(ProblemOptions()...).
			Value(&s.ProblemType),
		huh.NewSelect[thinktimer.Duration]().
			Title("Thinking time after each tutor reply").
			Description("Sending stays disabled until the time is up").
			Options(DelayOptions()...).
			Value(&s.Delay),
	}

	if len(models) > 1 {
		options := make([]huh.Option[string], 0, len(models))
		for _, m := range models {
			options = append(options, huh.NewOption(m, m))
		}
		fields = append(fields, huh.NewSelect[string]().
			Title("Tutor model").
			Options(options...).
			Value(&s.Model))
	}

	return huh.NewForm(huh.NewGroup(fields...))
}

// RunSessionSetup asks for the session choices, starting from defaults.
func RunSessionSetup(defaults SessionSetup, models []string) (SessionSetup, error) {
	s := defaults
	if s.ProblemType == "" {
		s.ProblemType = tutor.DefaultProblemType
	}
	if s.Model == "" && len(models) > 0 {
		s.Model = models[0]
	}

	if err := SetupForm(&s, models).Run(); err != nil {
		return SessionSetup{}, err
	}
	return s, nil
}

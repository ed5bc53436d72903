package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tueje/internal/advisor"
	"tueje/internal/core"
	"tueje/internal/stats"
)

type Topic string

const (
	TopicHabits  Topic = "habits"
	TopicFinance Topic = "finance"
)

var ErrUnknownTopic = errors.New("unknown advisor topic")

var supportedLanguages = []language.Tag{language.Spanish, language.English}

var languageMatcher = language.NewMatcher(supportedLanguages)

// MatchLanguage picks es or en from an Accept-Language header or a tag.
func MatchLanguage(accept string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return language.Spanish
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}

// AdviceRequest either carries a ready context or names a topic to build
// one from the current user's data.
type AdviceRequest struct {
	Context      string `json:"context"`
	SystemPrompt string `json:"systemPrompt"`
	Topic        Topic  `json:"topic"`
	Lang         string `json:"lang"`
}

type AdvisorService struct {
	generator advisor.Generator
	habits    *HabitService
	finance   *FinanceService
}

func NewAdvisorService(g advisor.Generator, habits *HabitService, finance *FinanceService) *AdvisorService {
	return &AdvisorService{generator: g, habits: habits, finance: finance}
}

func (s *AdvisorService) Ask(ctx context.Context, req AdviceRequest) (string, error) {
	if s.generator == nil {
		return "", advisor.ErrNotConfigured
	}
	tag := MatchLanguage(req.Lang)
	userContext := strings.TrimSpace(req.Context)
	prompt := strings.TrimSpace(req.SystemPrompt)

	if userContext == "" && req.Topic != "" {
		var err error
		userContext, err = s.BuildContext(ctx, req.Topic, tag)
		if err != nil {
			return "", err
		}
	}
	if prompt == "" && req.Topic != "" {
		prompt = persona(req.Topic, tag)
	}
	return s.generator.Generate(ctx, userContext, prompt)
}

// BuildContext summarizes the current user's aggregates as one sentence.
func (s *AdvisorService) BuildContext(ctx context.Context, topic Topic, tag language.Tag) (string, error) {
	p := message.NewPrinter(tag)
	switch topic {
	case TopicHabits:
		rows, err := s.habits.Dashboard(ctx, DefaultDashboardDays)
		if err != nil {
			return "", err
		}
		return habitsContext(p, tag, rows), nil
	case TopicFinance:
		o, err := s.finance.Overview(ctx, stats.WindowMonth)
		if err != nil {
			return "", err
		}
		return financeContext(p, tag, o), nil
	default:
		return "", ErrUnknownTopic
	}
}

func habitsContext(p *message.Printer, tag language.Tag, rows []core.HabitRow) string {
	es := tag == language.Spanish
	if len(rows) == 0 {
		if es {
			return "El usuario todavía no tiene hábitos."
		}
		return "The user has no habits yet."
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		if es {
			parts = append(parts, p.Sprintf("%q: %d de %d días esta semana (%d%%), racha de %d días",
				r.Habit.Title, r.Hits, r.Habit.GoalPerWeek, r.Percent, r.Streak))
		} else {
			parts = append(parts, p.Sprintf("%q: %d of %d days this week (%d%%), %d-day streak",
				r.Habit.Title, r.Hits, r.Habit.GoalPerWeek, r.Percent, r.Streak))
		}
	}
	if es {
		return "Progreso de hábitos del usuario: " + strings.Join(parts, "; ") + "."
	}
	return "User habit progress: " + strings.Join(parts, "; ") + "."
}

func financeContext(p *message.Printer, tag language.Tag, o core.FinanceOverview) string {
	es := tag == language.Spanish
	income, _ := o.Summary.Income.Float64()
	expense, _ := o.Summary.Expense.Float64()
	balance, _ := o.Summary.Balance.Float64()

	var b strings.Builder
	if es {
		b.WriteString(p.Sprintf("Este mes el usuario ingresó %.2f, gastó %.2f y su balance es %.2f.", income, expense, balance))
	} else {
		b.WriteString(p.Sprintf("This month the user earned %.2f, spent %.2f and has a balance of %.2f.", income, expense, balance))
	}
	if len(o.ByCategory) > 0 {
		top := o.ByCategory[0]
		amount, _ := top.Amount.Float64()
		if es {
			b.WriteString(p.Sprintf(" Su mayor gasto es %s con %.2f.", CategoryLabel(top.Category, tag), amount))
		} else {
			b.WriteString(p.Sprintf(" The largest expense is %s at %.2f.", CategoryLabel(top.Category, tag), amount))
		}
	}
	return b.String()
}

var categoryLabels = map[core.Category][2]string{
	core.Salary:        {"Salario", "Salary"},
	core.Freelance:     {"Freelance", "Freelance"},
	core.Investment:    {"Inversiones", "Investments"},
	core.OtherIncome:   {"Otros ingresos", "Other income"},
	core.Food:          {"Alimentación", "Food"},
	core.Transport:     {"Transporte", "Transport"},
	core.Housing:       {"Vivienda", "Housing"},
	core.Entertainment: {"Entretenimiento", "Entertainment"},
	core.Health:        {"Salud", "Health"},
	core.Education:     {"Educación", "Education"},
	core.Shopping:      {"Compras", "Shopping"},
	core.OtherExpense:  {"Otros gastos", "Other expenses"},
}

// CategoryLabel is the display name of a category.
func CategoryLabel(c core.Category, tag language.Tag) string {
	l, ok := categoryLabels[c]
	if !ok {
		return string(c)
	}
	if tag == language.English {
		return l[1]
	}
	return l[0]
}

func persona(t Topic, tag language.Tag) string {
	es := tag != language.English
	switch {
	case t == TopicHabits && es:
		return "Eres un coach de hábitos cercano. Responde en español con un mensaje breve y motivador de dos o tres frases."
	case t == TopicHabits:
		return "You are a friendly habit coach. Reply with a short, motivating message of two or three sentences."
	case es:
		return "Eres un asesor financiero personal. Responde en español con un consejo breve y concreto de dos o tres frases."
	default:
		return "You are a personal finance advisor. Reply with a short, concrete tip of two or three sentences."
	}
}

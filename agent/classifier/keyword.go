package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

// Intent maps a set of trigger keywords to the specialists that serve it.
type Intent struct {
	Name     string                `mapstructure:"name"`
	Keywords []string              `mapstructure:"keywords"`
	Agents   []contractx.AgentType `mapstructure:"agents"`
}

// KeywordTable is the configuration of a Keyword classifier. Fallback, when
// set, receives messages that match no intent.
type KeywordTable struct {
	Intents   []Intent            `mapstructure:"intents"`
	Greetings []string            `mapstructure:"greetings"`
	Fallback  contractx.AgentType `mapstructure:"fallback"`
}

func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		Intents: []Intent{
			{Name: "flight_booking", Keywords: []string{"flight", "plane", "ticket", "airline", "fly"}, Agents: []contractx.AgentType{contractx.AgentTypeFlight}},
			{Name: "hotel_booking", Keywords: []string{"hotel", "accommodation", "room", "stay"}, Agents: []contractx.AgentType{contractx.AgentTypeHotel}},
			{Name: "car_rental", Keywords: []string{"car rental", "rent a car", "rental car", "car hire"}, Agents: []contractx.AgentType{contractx.AgentTypeCarRental}},
			{Name: "activities_booking", Keywords: []string{"activities", "activity", "tours", "sightseeing", "events"}, Agents: []contractx.AgentType{contractx.AgentTypeActivities}},
			{Name: "travel_plan", Keywords: []string{"travel plan", "itinerary", "trip", "vacation", "holiday"}, Agents: []contractx.AgentType{contractx.AgentTypeFlight, contractx.AgentTypeHotel, contractx.AgentTypeActivities}},
			{Name: "destination_info", Keywords: []string{"destination", "city", "country", "place"}, Agents: []contractx.AgentType{contractx.AgentTypeDestination}},
		},
		Greetings: []string{"hello", "hi", "你好"},
		Fallback:  contractx.AgentTypeDefault,
	}
}

// LoadKeywordTable reads a table from a YAML or JSON file.
func LoadKeywordTable(path string) (KeywordTable, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return KeywordTable{}, fmt.Errorf("read keyword table %s: %w", path, err)
	}
	var table KeywordTable
	if err := v.Unmarshal(&table); err != nil {
		return KeywordTable{}, fmt.Errorf("%w: decode keyword table %s: %v", contractx.ErrValidation, path, err)
	}
	if err := table.Validate(); err != nil {
		return KeywordTable{}, err
	}
	return table, nil
}

func (t KeywordTable) Validate() error {
	if len(t.Intents) == 0 {
		return fmt.Errorf("%w: keyword table has no intents", contractx.ErrValidation)
	}
	for _, in := range t.Intents {
		if len(in.Keywords) == 0 || len(in.Agents) == 0 {
			return fmt.Errorf("%w: intent %q needs keywords and agents", contractx.ErrValidation, in.Name)
		}
		for _, a := range in.Agents {
			if !a.IsSpecialist() {
				return fmt.Errorf("%w: intent %q maps to unknown agent %q", contractx.ErrValidation, in.Name, a)
			}
		}
	}
	if t.Fallback != "" && !t.Fallback.IsSpecialist() {
		return fmt.Errorf("%w: unknown fallback agent %q", contractx.ErrValidation, t.Fallback)
	}
	return nil
}

type compiledIntent struct {
	patterns []*regexp.Regexp
	agents   []contractx.AgentType
}

// Keyword classifies by keyword lookup. It is immutable after construction.
type Keyword struct {
	intents   []compiledIntent
	greetings []*regexp.Regexp
	fallback  contractx.AgentType
}

var _ contractx.Classifier = (*Keyword)(nil)

func NewKeyword(table KeywordTable) (*Keyword, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	k := &Keyword{fallback: table.Fallback}
	for _, in := range table.Intents {
		ci := compiledIntent{agents: append([]contractx.AgentType(nil), in.Agents...)}
		for _, kw := range in.Keywords {
			ci.patterns = append(ci.patterns, keywordPattern(kw, false))
		}
		k.intents = append(k.intents, ci)
	}
	for _, g := range table.Greetings {
		k.greetings = append(k.greetings, keywordPattern(g, true))
	}
	return k, nil
}

// keywordPattern anchors ASCII keywords on a word start (and end when whole is
// set) so "hi" does not fire inside "this". Other scripts match as substrings.
func keywordPattern(kw string, whole bool) *regexp.Regexp {
	kw = strings.ToLower(strings.TrimSpace(kw))
	quoted := regexp.QuoteMeta(kw)
	if !isASCIIWord(kw) {
		return regexp.MustCompile(quoted)
	}
	if whole {
		return regexp.MustCompile(`\b` + quoted + `\b`)
	}
	return regexp.MustCompile(`\b` + quoted)
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return s != ""
}

func (k *Keyword) Classify(_ context.Context, text string, _ []contractx.EndUserMessage) (contractx.Plan, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return contractx.Plan{}, nil
	}
	lower := strings.ToLower(content)

	matched := make(map[contractx.AgentType]bool)
	for _, in := range k.intents {
		if !matchesAny(in.patterns, lower) {
			continue
		}
		for _, a := range in.agents {
			matched[a] = true
		}
	}

	if len(matched) == 0 {
		if matchesAny(k.greetings, lower) {
			return contractx.Plan{MainTask: "Greeting", IsGreeting: true}, nil
		}
		if k.fallback == "" {
			return contractx.Plan{MainTask: content}, nil
		}
		matched[k.fallback] = true
	}

	plan := contractx.Plan{MainTask: content}
	for _, a := range contractx.Specialists {
		if matched[a] {
			plan.Subtasks = append(plan.Subtasks, contractx.SubTask{TaskDetails: content, AssignedAgent: a})
		}
	}
	return plan, nil
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// IsGreeting reports whether text contains one of the default greeting words.
func IsGreeting(text string) bool {
	return matchesAny(defaultGreetings, strings.ToLower(text))
}

var defaultGreetings = func() []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, g := range DefaultKeywordTable().Greetings {
		out = append(out, keywordPattern(g, true))
	}
	return out
}()

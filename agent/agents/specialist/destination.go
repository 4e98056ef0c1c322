package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	llmx "github.com/tanpawarit/chative-travel/agent/llm"
)

var destinationCatalog = map[string]contractx.DestinationInfo{
	"paris": {
		City: "Paris", Country: "France",
		Description:         "Capital of art, fashion and food, home of the Eiffel Tower and the Louvre.",
		BestTimeToVisit:     "April to June, September to October",
		AverageTemperature:  "12°C",
		Currency:            "Euro (EUR)",
		Language:            "French",
		SimilarDestinations: []string{"Lyon", "Brussels", "Vienna"},
	},
	"singapore": {
		City: "Singapore", Country: "Singapore",
		Description:         "Garden city-state known for hawker food, Marina Bay and Sentosa.",
		BestTimeToVisit:     "February to April",
		AverageTemperature:  "27°C",
		Currency:            "Singapore Dollar (SGD)",
		Language:            "English, Malay, Mandarin, Tamil",
		SimilarDestinations: []string{"Kuala Lumpur", "Hong Kong", "Bangkok"},
	},
	"rome": {
		City: "Rome", Country: "Italy",
		Description:         "The Eternal City, with the Colosseum, the Vatican and Roman cooking.",
		BestTimeToVisit:     "April to May, September to October",
		AverageTemperature:  "16°C",
		Currency:            "Euro (EUR)",
		Language:            "Italian",
		SimilarDestinations: []string{"Florence", "Athens", "Barcelona"},
	},
	"tokyo": {
		City: "Tokyo", Country: "Japan",
		Description:         "Neon megacity mixing temples, sushi counters and cutting-edge design.",
		BestTimeToVisit:     "March to May, October to November",
		AverageTemperature:  "16°C",
		Currency:            "Japanese Yen (JPY)",
		Language:            "Japanese",
		SimilarDestinations: []string{"Osaka", "Seoul", "Taipei"},
	},
	"london": {
		City: "London", Country: "United Kingdom",
		Description:         "Royal landmarks, free museums and West End theatre along the Thames.",
		BestTimeToVisit:     "May to September",
		AverageTemperature:  "11°C",
		Currency:            "Pound Sterling (GBP)",
		Language:            "English",
		SimilarDestinations: []string{"Edinburgh", "Dublin", "Amsterdam"},
	},
	"new york": {
		City: "New York", Country: "United States",
		Description:         "The city that never sleeps: Central Park, Broadway and the skyline.",
		BestTimeToVisit:     "April to June, September to November",
		AverageTemperature:  "13°C",
		Currency:            "US Dollar (USD)",
		Language:            "English",
		SimilarDestinations: []string{"Chicago", "Boston", "Toronto"},
	},
}

// Destination describes a city, from a model when one is configured and
// from a built-in catalog otherwise.
type Destination struct {
	runner compose.Runnable[map[string]any, contractx.DestinationInfo]
}

var _ Worker = (*Destination)(nil)

func NewDestination(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Destination, error) {
	if chatModel == nil {
		return &Destination{}, nil
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	runner, err := llmx.CompileStructuredGraph[contractx.DestinationInfo](ctx, chatModel, systemPrompt, "destination.structured_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile destination graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Destination{runner: runner}, nil
}

func (d *Destination) Type() contractx.AgentType {
	return contractx.AgentTypeDestination
}

func (d *Destination) Perform(ctx context.Context, task Task) (contractx.SpecialistResult, error) {
	var (
		info contractx.DestinationInfo
		err  error
	)
	if d.runner == nil {
		info = lookupDestination(destinationCity(task.Content, task.OriginalTask))
	} else {
		info, err = d.ask(ctx, task)
		if err != nil {
			return contractx.SpecialistResult{}, err
		}
	}

	return contractx.SpecialistResult{
		Content: describeDestination(info),
		Message: "Destination information provided for query - " + task.Content,
		Data:    info,
	}, nil
}

func (d *Destination) ask(ctx context.Context, task Task) (contractx.DestinationInfo, error) {
	input, err := llmx.Input(map[string]any{
		"request":       task.Content,
		"original_task": task.OriginalTask,
	})
	if err != nil {
		return contractx.DestinationInfo{}, err
	}
	info, err := d.runner.Invoke(ctx, input)
	if err != nil {
		return contractx.DestinationInfo{}, fmt.Errorf("%w: destination invoke: %v", contractx.ErrModelInvoke, err)
	}
	info.City = strings.TrimSpace(info.City)
	if info.City == "" {
		return contractx.DestinationInfo{}, fmt.Errorf("%w: destination city is empty", contractx.ErrSchemaViolation)
	}
	return info, nil
}

func lookupDestination(city string) contractx.DestinationInfo {
	if city == "" {
		city = "Paris"
	}
	if info, ok := destinationCatalog[strings.ToLower(city)]; ok {
		info.SimilarDestinations = append([]string(nil), info.SimilarDestinations...)
		return info
	}
	return contractx.DestinationInfo{
		City:        city,
		Description: fmt.Sprintf("I do not have a guide for %s yet, but I can still book flights, hotels and cars there.", city),
	}
}

func describeDestination(info contractx.DestinationInfo) string {
	var sb strings.Builder
	sb.WriteString(info.City)
	if info.Country != "" && info.Country != info.City {
		sb.WriteString(", " + info.Country)
	}
	sb.WriteString(": " + info.Description)
	if info.BestTimeToVisit != "" {
		sb.WriteString(" Best time to visit: " + info.BestTimeToVisit + ".")
	}
	if info.Currency != "" {
		sb.WriteString(" Currency: " + info.Currency + ".")
	}
	if info.Language != "" {
		sb.WriteString(" Language: " + info.Language + ".")
	}
	return sb.String()
}

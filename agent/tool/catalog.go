package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const (
	ToolFlightBook       = "flight.book"
	ToolHotelBook        = "hotel.book"
	ToolCarRent          = "car.rent"
	ToolActivitiesSearch = "activities.search"
)

type Executor func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error)

func BuildForAgent(agentType contractx.AgentType, sim *Simulator) ([]*schema.ToolInfo, Executor) {
	return InfosForAgent(agentType), NewExecutor(agentType, sim)
}

// NewExecutor runs the tools owned by agentType against sim. Bad arguments
// come back as ToolResult.Error, not as a Go error.
func NewExecutor(agentType contractx.AgentType, sim *Simulator) Executor {
	fallback := DefaultExecutor(agentType)
	owned := map[string]struct{}{}
	for _, info := range InfosForAgent(agentType) {
		owned[info.Name] = struct{}{}
	}

	return func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
		if err := ctx.Err(); err != nil {
			return contractx.ToolResult{}, err
		}
		if _, ok := owned[tool]; !ok || sim == nil {
			return fallback(ctx, tool, args)
		}

		var (
			result contractx.Result
			err    error
		)
		switch tool {
		case ToolFlightBook:
			result, err = sim.BookFlight(FlightArgs{
				DepartureCity:      stringArg(args, "departure_city"),
				DestinationCity:    stringArg(args, "destination_city"),
				DepartureDate:      stringArg(args, "departure_date"),
				ReturnDate:         stringArg(args, "return_date"),
				NumberOfPassengers: intArg(args, "number_of_passengers"),
			})
		case ToolHotelBook:
			result, err = sim.BookHotel(HotelArgs{
				City:         stringArg(args, "city"),
				CheckInDate:  stringArg(args, "check_in_date"),
				CheckOutDate: stringArg(args, "check_out_date"),
			})
		case ToolCarRent:
			result, err = sim.RentCar(CarArgs{
				RentalCity:      stringArg(args, "rental_city"),
				RentalStartDate: stringArg(args, "rental_start_date"),
				RentalEndDate:   stringArg(args, "rental_end_date"),
			})
		case ToolActivitiesSearch:
			result = sim.SearchActivities(stringArg(args, "destination_city"))
		default:
			return fallback(ctx, tool, args)
		}
		if err != nil {
			return contractx.ToolResult{Tool: tool, Error: err.Error()}, nil
		}
		return contractx.ToolResult{Tool: tool, Result: result}, nil
	}
}

func DefaultExecutor(agentType contractx.AgentType) Executor {
	return func(ctx context.Context, tool string, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s is unavailable for agent=%s", tool, agentType),
		}, nil
	}
}

func InfosForAgent(agentType contractx.AgentType) []*schema.ToolInfo {
	switch agentType {
	case contractx.AgentTypeFlight:
		return []*schema.ToolInfo{{
			Name: ToolFlightBook,
			Desc: "Book a flight and return the airline, flight number, total price and booking reference.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"departure_city":       {Type: schema.String, Desc: "City the flight leaves from"},
				"destination_city":     {Type: schema.String, Desc: "City the flight goes to", Required: true},
				"departure_date":       {Type: schema.String, Desc: "Outbound date, YYYY-MM-DD"},
				"return_date":          {Type: schema.String, Desc: "Return date, YYYY-MM-DD"},
				"number_of_passengers": {Type: schema.Integer, Desc: "Number of passengers"},
			}),
		}}
	case contractx.AgentTypeHotel:
		return []*schema.ToolInfo{{
			Name: ToolHotelBook,
			Desc: "Book a hotel room and return the hotel, room type, total price and booking reference.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"city":           {Type: schema.String, Desc: "City of the hotel", Required: true},
				"check_in_date":  {Type: schema.String, Desc: "Check-in date, YYYY-MM-DD"},
				"check_out_date": {Type: schema.String, Desc: "Check-out date, YYYY-MM-DD"},
			}),
		}}
	case contractx.AgentTypeCarRental:
		return []*schema.ToolInfo{{
			Name: ToolCarRent,
			Desc: "Rent a car and return the car type, company, total price and booking reference.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"rental_city":       {Type: schema.String, Desc: "City where the car is picked up", Required: true},
				"rental_start_date": {Type: schema.String, Desc: "Pick-up date, YYYY-MM-DD"},
				"rental_end_date":   {Type: schema.String, Desc: "Drop-off date, YYYY-MM-DD"},
			}),
		}}
	case contractx.AgentTypeActivities:
		return []*schema.ToolInfo{{
			Name: ToolActivitiesSearch,
			Desc: "Find things to do in a city.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"destination_city": {Type: schema.String, Desc: "City to search", Required: true},
			}),
		}}
	default:
		return nil
	}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

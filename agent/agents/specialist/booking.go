package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	llmx "github.com/tanpawarit/chative-travel/agent/llm"
	"github.com/tanpawarit/chative-travel/agent/tool"
)

// Booking serves the tool-backed specialists: flights, hotels, cars and
// activities. With a model the tool arguments come from a tool call;
// without one they are read off the request text.
type Booking struct {
	agentType contractx.AgentType
	tools     []*schema.ToolInfo
	allowed   map[string]struct{}
	exec      tool.Executor
	planner   compose.Runnable[map[string]any, *schema.Message]
}

var _ Worker = (*Booking)(nil)

func NewBooking(
	ctx context.Context,
	agentType contractx.AgentType,
	sim *tool.Simulator,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
) (*Booking, error) {
	if sim == nil {
		return nil, fmt.Errorf("%w: simulator is required", contractx.ErrValidation)
	}
	tools, exec := tool.BuildForAgent(agentType, sim)
	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: %s has no booking tools", contractx.ErrValidation, agentType)
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		allowed[t.Name] = struct{}{}
	}

	b := &Booking{
		agentType: agentType,
		tools:     tools,
		allowed:   allowed,
		exec:      exec,
	}
	if chatModel == nil {
		return b, nil
	}

	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	planner, err := llmx.CompileToolPlanningGraph(ctx, chatModel, tools, systemPrompt, agentType.String()+".tool_planning_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s tool planner: %v", contractx.ErrModelInvoke, agentType, err)
	}
	b.planner = planner
	return b, nil
}

func (b *Booking) Type() contractx.AgentType {
	return b.agentType
}

func (b *Booking) Perform(ctx context.Context, task Task) (contractx.SpecialistResult, error) {
	req, err := b.plan(ctx, task)
	if err != nil {
		return contractx.SpecialistResult{}, err
	}

	out, err := b.exec(ctx, req.Tool, req.Args)
	if err != nil {
		return contractx.SpecialistResult{}, err
	}
	if out.Error != "" {
		return contractx.SpecialistResult{}, fmt.Errorf("%w: %s: %s", contractx.ErrValidation, req.Tool, out.Error)
	}
	data, ok := out.Result.(contractx.Result)
	if !ok {
		return contractx.SpecialistResult{}, fmt.Errorf("%w: %s returned %T", contractx.ErrSchemaViolation, req.Tool, out.Result)
	}
	return describeBooking(data, task.Content), nil
}

func (b *Booking) plan(ctx context.Context, task Task) (contractx.ToolRequest, error) {
	if b.planner == nil {
		return contractx.ToolRequest{Tool: b.tools[0].Name, Args: heuristicArgs(b.agentType, task)}, nil
	}

	input, err := llmx.Input(map[string]any{
		"request":       task.Content,
		"original_task": task.OriginalTask,
	})
	if err != nil {
		return contractx.ToolRequest{}, err
	}
	msg, err := b.planner.Invoke(ctx, input)
	if err != nil {
		return contractx.ToolRequest{}, fmt.Errorf("%w: %s tool planning: %v", contractx.ErrModelInvoke, b.agentType, err)
	}
	if msg == nil {
		return contractx.ToolRequest{}, fmt.Errorf("%w: empty tool planning response", contractx.ErrSchemaViolation)
	}
	reqs, err := llmx.ToolRequests(msg.ToolCalls, b.allowed)
	if err != nil {
		return contractx.ToolRequest{}, err
	}
	if len(reqs) == 0 {
		return contractx.ToolRequest{}, fmt.Errorf("%w: %s answered without a tool call", contractx.ErrSchemaViolation, b.agentType)
	}
	return reqs[0], nil
}

func heuristicArgs(agentType contractx.AgentType, task Task) map[string]any {
	city := destinationCity(task.Content, task.OriginalTask)
	args := map[string]any{}
	switch agentType {
	case contractx.AgentTypeFlight:
		args["destination_city"] = city
		args["departure_city"] = originCity(task.Content, task.OriginalTask)
	case contractx.AgentTypeHotel:
		args["city"] = city
	case contractx.AgentTypeCarRental:
		args["rental_city"] = city
	case contractx.AgentTypeActivities:
		args["destination_city"] = city
	}
	return args
}

func describeBooking(data contractx.Result, query string) contractx.SpecialistResult {
	var content, label string
	switch d := data.(type) {
	case contractx.FlightBooking:
		label = "Flight booking"
		content = fmt.Sprintf("Flight booked: %s %s from %s to %s, %s to %s, %d passengers, total $%.2f, reference %s.",
			d.Airline, d.FlightNumber, d.DepartureCity, d.DestinationCity, d.DepartureDate, d.ReturnDate,
			d.NumberOfPassengers, d.TotalPrice, d.BookingReference)
	case contractx.HotelBooking:
		label = "Hotel booking"
		content = fmt.Sprintf("Hotel booked: %s (%s) in %s, %s to %s, total $%.2f, reference %s.",
			d.HotelName, d.RoomType, d.City, d.CheckInDate, d.CheckOutDate, d.TotalPrice, d.BookingReference)
	case contractx.CarRental:
		label = "Car rental"
		content = fmt.Sprintf("Car rented: %s from %s in %s, %s to %s, total $%.2f, reference %s.",
			d.CarType, d.Company, d.RentalCity, d.RentalStartDate, d.RentalEndDate, d.TotalPrice, d.BookingReference)
	case contractx.Activities:
		label = "Activities"
		names := make([]string, 0, len(d.Activities))
		for _, a := range d.Activities {
			names = append(names, fmt.Sprintf("%s (%s)", a.Name, a.Type))
		}
		content = fmt.Sprintf("Things to do in %s: %s.", d.DestinationCity, strings.Join(names, ", "))
	default:
		label = "Request"
		content = fmt.Sprintf("%v", d)
	}
	return contractx.SpecialistResult{
		Content: content,
		Message: fmt.Sprintf("%s processed successfully for query - %s", label, query),
		Data:    data,
	}
}

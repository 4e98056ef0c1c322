package contract

import (
	"encoding/json"
	"fmt"
)

type ResultType string

const (
	ResultFlightBooking   ResultType = "flight_booking"
	ResultHotelBooking    ResultType = "hotel_booking"
	ResultCarRental       ResultType = "car_rental"
	ResultActivities      ResultType = "activities"
	ResultDestinationInfo ResultType = "destination_info"
	ResultGreeting        ResultType = "greeting"
	ResultText            ResultType = "text"
	ResultCompiledPlan    ResultType = "compiled_plan"
)

// Result is the closed set of structured payloads a specialist can return.
type Result interface {
	ResultType() ResultType
}

// SpecialistResult is an agent's answer, either to a direct user message or to a DispatchRequest.
type SpecialistResult struct {
	Source    string
	AgentType AgentType
	// Content is the text the coordinator concatenates into a composed plan.
	Content string
	// Message is the human readable note shown alongside Data.
	Message string
	Data    Result
	// Error is set when the specialist contained an internal failure and Content is an apology.
	Error string
}

func (r SpecialistResult) Failed() bool {
	return r.Error != ""
}

type FlightBooking struct {
	DepartureCity      string  `json:"departure_city"`
	DestinationCity    string  `json:"destination_city"`
	DepartureDate      string  `json:"departure_date"`
	ReturnDate         string  `json:"return_date"`
	Airline            string  `json:"airline"`
	FlightNumber       string  `json:"flight_number"`
	TotalPrice         float64 `json:"total_price"`
	BookingReference   string  `json:"booking_reference"`
	NumberOfPassengers int     `json:"number_of_passengers"`
}

type HotelBooking struct {
	City             string  `json:"city"`
	CheckInDate      string  `json:"check_in_date"`
	CheckOutDate     string  `json:"check_out_date"`
	HotelName        string  `json:"hotel_name"`
	RoomType         string  `json:"room_type"`
	TotalPrice       float64 `json:"total_price"`
	BookingReference string  `json:"booking_reference"`
}

type CarRental struct {
	RentalCity       string  `json:"rental_city"`
	RentalStartDate  string  `json:"rental_start_date"`
	RentalEndDate    string  `json:"rental_end_date"`
	CarType          string  `json:"car_type"`
	Company          string  `json:"company"`
	TotalPrice       float64 `json:"total_price"`
	BookingReference string  `json:"booking_reference"`
}

type ActivityDetail struct {
	Name        string `json:"activity_name"`
	Type        string `json:"activity_type"`
	Description string `json:"activity_description"`
}

type Activities struct {
	DestinationCity string           `json:"destination_city"`
	Activities      []ActivityDetail `json:"activities"`
}

type DestinationInfo struct {
	City                string   `json:"city"`
	Country             string   `json:"country"`
	Description         string   `json:"description"`
	BestTimeToVisit     string   `json:"best_time_to_visit"`
	AverageTemperature  string   `json:"average_temperature"`
	Currency            string   `json:"currency"`
	Language            string   `json:"language"`
	SimilarDestinations []string `json:"similar_destinations"`
}

type Greeting struct {
	Greeting string `json:"greeting"`
}

type TextReply struct {
	Text string `json:"text"`
}

// SubtaskFailure marks a subtask of a plan that produced no usable result.
type SubtaskFailure struct {
	Index         int       `json:"index"`
	AssignedAgent AgentType `json:"assigned_agent"`
	TaskDetails   string    `json:"task_details"`
	Reason        string    `json:"reason"`
}

// CompiledPlan is the coordinator's merged answer for a multi-agent plan.
type CompiledPlan struct {
	Content  string             `json:"content"`
	Parts    []SpecialistResult `json:"parts"`
	Failures []SubtaskFailure   `json:"failures,omitempty"`
}

func (FlightBooking) ResultType() ResultType   { return ResultFlightBooking }
func (HotelBooking) ResultType() ResultType    { return ResultHotelBooking }
func (CarRental) ResultType() ResultType       { return ResultCarRental }
func (Activities) ResultType() ResultType      { return ResultActivities }
func (DestinationInfo) ResultType() ResultType { return ResultDestinationInfo }
func (Greeting) ResultType() ResultType        { return ResultGreeting }
func (TextReply) ResultType() ResultType       { return ResultText }
func (CompiledPlan) ResultType() ResultType    { return ResultCompiledPlan }

type specialistResultJSON struct {
	Source    string          `json:"source"`
	AgentType AgentType       `json:"agent_type"`
	Content   string          `json:"content,omitempty"`
	Message   string          `json:"message,omitempty"`
	DataType  ResultType      `json:"data_type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (r SpecialistResult) MarshalJSON() ([]byte, error) {
	out := specialistResultJSON{
		Source:    r.Source,
		AgentType: r.AgentType,
		Content:   r.Content,
		Message:   r.Message,
		Error:     r.Error,
	}
	if r.Data != nil {
		raw, err := json.Marshal(r.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s data: %w", r.Data.ResultType(), err)
		}
		out.DataType = r.Data.ResultType()
		out.Data = raw
	}
	return json.Marshal(out)
}

func (r *SpecialistResult) UnmarshalJSON(b []byte) error {
	var in specialistResultJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = SpecialistResult{
		Source:    in.Source,
		AgentType: in.AgentType,
		Content:   in.Content,
		Message:   in.Message,
		Error:     in.Error,
	}
	if in.DataType == "" {
		return nil
	}
	data, err := decodeResult(in.DataType, in.Data)
	if err != nil {
		return err
	}
	r.Data = data
	return nil
}

func decodeResult(t ResultType, raw json.RawMessage) (Result, error) {
	switch t {
	case ResultFlightBooking:
		return decodeAs[FlightBooking](raw)
	case ResultHotelBooking:
		return decodeAs[HotelBooking](raw)
	case ResultCarRental:
		return decodeAs[CarRental](raw)
	case ResultActivities:
		return decodeAs[Activities](raw)
	case ResultDestinationInfo:
		return decodeAs[DestinationInfo](raw)
	case ResultGreeting:
		return decodeAs[Greeting](raw)
	case ResultText:
		return decodeAs[TextReply](raw)
	case ResultCompiledPlan:
		return decodeAs[CompiledPlan](raw)
	default:
		return nil, fmt.Errorf("%w: unknown data_type %q", ErrValidation, t)
	}
}

func decodeAs[T Result](raw json.RawMessage) (Result, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrValidation, v.ResultType(), err)
	}
	return v, nil
}

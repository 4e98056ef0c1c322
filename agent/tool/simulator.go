package tool

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const dateLayout = "2006-01-02"

type flightOption struct {
	airline        string
	flightNumber   string
	pricePerTicket float64
}

type hotelOption struct {
	name          string
	roomType      string
	pricePerNight float64
}

type carOption struct {
	carType     string
	company     string
	pricePerDay float64
}

var flightOptions = []flightOption{
	{airline: "Air France", flightNumber: "AF123", pricePerTicket: 200},
	{airline: "Delta", flightNumber: "DL456", pricePerTicket: 250},
	{airline: "British Airways", flightNumber: "BA789", pricePerTicket: 300},
	{airline: "Lufthansa", flightNumber: "LH101", pricePerTicket: 220},
	{airline: "Emirates", flightNumber: "EK202", pricePerTicket: 400},
}

var hotelOptions = []hotelOption{
	{name: "Hilton", roomType: "Deluxe", pricePerNight: 200},
	{name: "Marriott", roomType: "Standard", pricePerNight: 150},
	{name: "Hyatt", roomType: "Suite", pricePerNight: 300},
	{name: "Sheraton", roomType: "Executive", pricePerNight: 250},
	{name: "Holiday Inn", roomType: "Standard", pricePerNight: 100},
}

var carOptions = []carOption{
	{carType: "Sedan", company: "Avis", pricePerDay: 50},
	{carType: "SUV", company: "Hertz", pricePerDay: 80},
	{carType: "Convertible", company: "Budget", pricePerDay: 100},
	{carType: "Minivan", company: "Enterprise", pricePerDay: 70},
	{carType: "Compact", company: "Thrifty", pricePerDay: 40},
	{carType: "Luxury", company: "Alamo", pricePerDay: 150},
	{carType: "Pickup Truck", company: "National", pricePerDay: 90},
	{carType: "Electric", company: "Tesla Rentals", pricePerDay: 120},
	{carType: "Hybrid", company: "Green Wheels", pricePerDay: 60},
	{carType: "Sports Car", company: "Exotic Rentals", pricePerDay: 200},
}

var activityCatalog = map[string][]contractx.ActivityDetail{
	"paris": {
		{Name: "Louvre Museum", Type: "museum", Description: "Timed-entry visit to the Mona Lisa and the Winged Victory."},
		{Name: "Seine River Cruise", Type: "sightseeing", Description: "One hour evening cruise past Notre-Dame and the Eiffel Tower."},
		{Name: "Montmartre Food Walk", Type: "food", Description: "Cheese, crepes and wine tasting around Sacre-Coeur."},
	},
	"singapore": {
		{Name: "Gardens by the Bay", Type: "nature", Description: "Cloud Forest and Flower Dome domes plus the Supertree light show."},
		{Name: "Hawker Centre Tour", Type: "food", Description: "Guided tasting at Maxwell and Lau Pa Sat."},
		{Name: "Sentosa Island", Type: "leisure", Description: "Beaches, cable car and Universal Studios."},
	},
	"rome": {
		{Name: "Colosseum Underground", Type: "history", Description: "Guided tour of the arena floor and hypogeum."},
		{Name: "Vatican Museums", Type: "museum", Description: "Early entry to the Sistine Chapel."},
		{Name: "Trastevere Evening", Type: "food", Description: "Supplì, cacio e pepe and gelato in Trastevere."},
	},
	"tokyo": {
		{Name: "Tsukiji Outer Market", Type: "food", Description: "Morning sushi and street food crawl."},
		{Name: "teamLab Planets", Type: "art", Description: "Immersive digital art museum in Toyosu."},
		{Name: "Senso-ji and Asakusa", Type: "culture", Description: "Tokyo's oldest temple and Nakamise shopping street."},
	},
	"london": {
		{Name: "British Museum", Type: "museum", Description: "Rosetta Stone and the Parthenon sculptures."},
		{Name: "West End Show", Type: "entertainment", Description: "Evening musical in Covent Garden."},
		{Name: "Thames Walk", Type: "sightseeing", Description: "South Bank from Westminster to Tower Bridge."},
	},
}

var genericActivities = []contractx.ActivityDetail{
	{Name: "Old Town Walking Tour", Type: "sightseeing", Description: "Two hour guided walk through the historic centre."},
	{Name: "Local Food Tasting", Type: "food", Description: "Market visit with regional specialities."},
	{Name: "City Museum Pass", Type: "museum", Description: "Entry to the main museums for three days."},
}

// Simulator fakes the booking back ends. Option choice and booking numbers
// are random; prices follow the option tables.
type Simulator struct {
	mu  sync.Mutex
	rnd *rand.Rand

	now func() time.Time
}

type SimulatorOption func(*Simulator)

// WithSeed makes option choice and references reproducible.
func WithSeed(seed uint64) SimulatorOption {
	return func(s *Simulator) {
		s.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type FlightArgs struct {
	DepartureCity      string
	DestinationCity    string
	DepartureDate      string
	ReturnDate         string
	NumberOfPassengers int
}

type HotelArgs struct {
	City         string
	CheckInDate  string
	CheckOutDate string
}

type CarArgs struct {
	RentalCity      string
	RentalStartDate string
	RentalEndDate   string
}

func (s *Simulator) BookFlight(in FlightArgs) (contractx.FlightBooking, error) {
	in.DepartureCity = orDefault(in.DepartureCity, "New York")
	in.DestinationCity = orDefault(in.DestinationCity, "Paris")
	in.DepartureDate, in.ReturnDate = s.trip(in.DepartureDate, in.ReturnDate)
	if in.NumberOfPassengers <= 0 {
		in.NumberOfPassengers = 2
	}
	if _, err := span(in.DepartureDate, in.ReturnDate); err != nil {
		return contractx.FlightBooking{}, err
	}

	s.mu.Lock()
	opt := flightOptions[s.rnd.IntN(len(flightOptions))]
	ref := s.referenceLocked("FL", in.DestinationCity)
	s.mu.Unlock()

	return contractx.FlightBooking{
		DepartureCity:      in.DepartureCity,
		DestinationCity:    in.DestinationCity,
		DepartureDate:      in.DepartureDate,
		ReturnDate:         in.ReturnDate,
		Airline:            opt.airline,
		FlightNumber:       opt.flightNumber,
		TotalPrice:         float64(in.NumberOfPassengers) * opt.pricePerTicket,
		BookingReference:   ref,
		NumberOfPassengers: in.NumberOfPassengers,
	}, nil
}

func (s *Simulator) BookHotel(in HotelArgs) (contractx.HotelBooking, error) {
	in.City = orDefault(in.City, "Paris")
	in.CheckInDate, in.CheckOutDate = s.trip(in.CheckInDate, in.CheckOutDate)
	nights, err := span(in.CheckInDate, in.CheckOutDate)
	if err != nil {
		return contractx.HotelBooking{}, err
	}
	if nights == 0 {
		return contractx.HotelBooking{}, fmt.Errorf("%w: check-out must be after check-in", contractx.ErrValidation)
	}

	s.mu.Lock()
	opt := hotelOptions[s.rnd.IntN(len(hotelOptions))]
	ref := s.referenceLocked("HT", in.City)
	s.mu.Unlock()

	return contractx.HotelBooking{
		City:             in.City,
		CheckInDate:      in.CheckInDate,
		CheckOutDate:     in.CheckOutDate,
		HotelName:        opt.name,
		RoomType:         opt.roomType,
		TotalPrice:       float64(nights) * opt.pricePerNight,
		BookingReference: ref,
	}, nil
}

func (s *Simulator) RentCar(in CarArgs) (contractx.CarRental, error) {
	in.RentalCity = orDefault(in.RentalCity, "Paris")
	in.RentalStartDate, in.RentalEndDate = s.trip(in.RentalStartDate, in.RentalEndDate)
	days, err := span(in.RentalStartDate, in.RentalEndDate)
	if err != nil {
		return contractx.CarRental{}, err
	}
	if days == 0 {
		days = 1
	}

	s.mu.Lock()
	opt := carOptions[s.rnd.IntN(len(carOptions))]
	ref := s.referenceLocked("CR", in.RentalCity)
	s.mu.Unlock()

	return contractx.CarRental{
		RentalCity:       in.RentalCity,
		RentalStartDate:  in.RentalStartDate,
		RentalEndDate:    in.RentalEndDate,
		CarType:          opt.carType,
		Company:          opt.company,
		TotalPrice:       float64(days) * opt.pricePerDay,
		BookingReference: ref,
	}, nil
}

// SearchActivities stands in for a web search: a fixed catalog per city.
func (s *Simulator) SearchActivities(city string) contractx.Activities {
	city = orDefault(city, "Paris")
	found, ok := activityCatalog[strings.ToLower(city)]
	if !ok {
		found = genericActivities
	}
	return contractx.Activities{
		DestinationCity: city,
		Activities:      append([]contractx.ActivityDetail(nil), found...),
	}
}

// trip fills in missing dates. The start defaults to two weeks from today and
// the end to a week after the start.
func (s *Simulator) trip(start, end string) (string, string) {
	start = orDefault(start, s.now().AddDate(0, 0, 14).Format(dateLayout))
	if end = strings.TrimSpace(end); end != "" {
		return start, end
	}
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		// span reports the malformed start
		return start, start
	}
	return start, from.AddDate(0, 0, 7).Format(dateLayout)
}

func (s *Simulator) referenceLocked(prefix, city string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, 1000+s.rnd.IntN(9000), cityCode(city))
}

func cityCode(city string) string {
	letters := make([]rune, 0, 3)
	for _, r := range strings.ToUpper(strings.TrimSpace(city)) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	if len(letters) == 0 {
		return "XXX"
	}
	return string(letters)
}

// span returns whole days between two YYYY-MM-DD dates.
func span(from, to string) (int, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("%w: date %q is not YYYY-MM-DD", contractx.ErrValidation, from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("%w: date %q is not YYYY-MM-DD", contractx.ErrValidation, to)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: %s is before %s", contractx.ErrValidation, to, from)
	}
	return int(end.Sub(start).Hours() / 24), nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

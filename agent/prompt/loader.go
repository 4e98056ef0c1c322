package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/destination.txt
	destinationRaw string

	//go:embed template/booking.txt
	bookingRaw string

	//go:embed template/general.txt
	generalRaw string
)

// PromptSet holds loaded prompt content. Router, Destination and Booking are
// eino FString templates; General is sent verbatim.
type PromptSet struct {
	Router      string
	Destination string
	Booking     string
	General     string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:      strings.TrimSpace(routerRaw),
		Destination: strings.TrimSpace(destinationRaw),
		Booking:     strings.TrimSpace(bookingRaw),
		General:     strings.TrimSpace(generalRaw),
	}
}

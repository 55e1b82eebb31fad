package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/massy-ia/citydesk/internal/apperr"
)

const (
	MaxJourneys = 5

	DefaultSNCFDeparture = "Massy TGV"
	DefaultSNCFArrival   = "Paris Gare de Lyon"
	DefaultRATPDeparture = "Massy TGV"
	DefaultRATPArrival   = "Châtelet"

	JourneyOnTime    = "Ponctuel"
	JourneyDisrupted = "Perturbé"

	navitiaTimeLayout = "20060102T150405"
)

type Section struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	To       string `json:"to"`
	Duration int    `json:"duration"`
	Mode     string `json:"mode,omitempty"`
	Line     string `json:"line,omitempty"`
}

type Journey struct {
	DepartureTime string    `json:"departure_time"`
	ArrivalTime   string    `json:"arrival_time"`
	Duration      int       `json:"duration"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Sections      []Section `json:"sections"`
}

type navitiaPoint struct {
	Name      string `json:"name"`
	StopPoint struct {
		Name string `json:"name"`
	} `json:"stop_point"`
}

type navitiaSection struct {
	Type        string       `json:"type"`
	Duration    int          `json:"duration"`
	From        navitiaPoint `json:"from"`
	To          navitiaPoint `json:"to"`
	DisplayInfo struct {
		CommercialMode string `json:"commercial_mode"`
		Network        string `json:"network"`
		Code           string `json:"code"`
	} `json:"display_informations"`
}

type navitiaJourney struct {
	DepartureDateTime string            `json:"departure_date_time"`
	ArrivalDateTime   string            `json:"arrival_date_time"`
	Duration          int               `json:"duration"`
	Disruptions       []json.RawMessage `json:"disruptions"`
	Sections          []navitiaSection  `json:"sections"`
}

// clockTime renders a navitia date-time as HH:MM.
func clockTime(raw string) string {
	if t, err := time.Parse(navitiaTimeLayout, raw); err == nil {
		return t.Format("15:04")
	}
	if _, after, ok := strings.Cut(raw, "T"); ok && len(after) >= 4 {
		return after[:2] + ":" + after[2:4]
	}
	return raw
}

// SNCFClient plans rail journeys with the SNCF navitia API.
type SNCFClient struct {
	client  *Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func NewSNCFClient(baseURL, apiKey string) *SNCFClient {
	return &SNCFClient{
		client:  NewClient("sncf", 15*time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		now:     time.Now,
	}
}

// ResolveStopArea returns the stop_area id of the first place matching name.
func (s *SNCFClient) ResolveStopArea(ctx context.Context, name string) (string, error) {
	var resp struct {
		Places []struct {
			ID           string `json:"id"`
			EmbeddedType string `json:"embedded_type"`
		} `json:"places"`
	}
	err := s.client.GetJSON(ctx, s.baseURL+"/places", url.Values{"q": {name}}, &resp, WithBasicAuth(s.apiKey, ""))
	if err != nil {
		return "", err
	}
	for _, place := range resp.Places {
		if place.EmbeddedType == "stop_area" {
			return place.ID, nil
		}
	}
	return "", apperr.NotFound(fmt.Sprintf("station not found: %s", name))
}

// Journeys lists up to five rail journeys leaving now.
func (s *SNCFClient) Journeys(ctx context.Context, departure, arrival string) ([]Journey, error) {
	if s.apiKey == "" {
		return nil, apperr.Unavailable("SNCF journeys are not configured", nil)
	}
	from, err := s.ResolveStopArea(ctx, departure)
	if err != nil {
		return nil, err
	}
	to, err := s.ResolveStopArea(ctx, arrival)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Journeys []navitiaJourney `json:"journeys"`
	}
	err = s.client.GetJSON(ctx, s.baseURL+"/journeys", url.Values{
		"from":     {from},
		"to":       {to},
		"datetime": {s.now().Format(navitiaTimeLayout)},
	}, &resp, WithBasicAuth(s.apiKey, ""))
	if err != nil {
		return nil, err
	}

	journeys := []Journey{}
	for _, j := range resp.Journeys[:min(len(resp.Journeys), MaxJourneys)] {
		sections := []Section{}
		for _, sec := range j.Sections {
			if sec.Type != "public_transport" {
				continue
			}
			sections = append(sections, Section{
				Type:     "train",
				From:     sec.From.StopPoint.Name,
				To:       sec.To.StopPoint.Name,
				Duration: sec.Duration / 60,
				Mode:     sec.DisplayInfo.CommercialMode,
			})
		}
		status := JourneyOnTime
		if len(j.Disruptions) > 0 {
			status = JourneyDisrupted
		}
		journeys = append(journeys, Journey{
			DepartureTime: clockTime(j.DepartureDateTime),
			ArrivalTime:   clockTime(j.ArrivalDateTime),
			Duration:      j.Duration / 60,
			Type:          "SNCF",
			Status:        status,
			Sections:      sections,
		})
	}
	return journeys, nil
}

// ratpAliases maps rail station names to the nearest served metro/bus station.
var ratpAliases = map[string]string{
	"Massy TGV":          "Massy Opéra",
	"Massy-Palaiseau":    "Massy Opéra",
	"Paris Gare de Lyon": "Châtelet",
	"Paris Montparnasse": "Montparnasse-Bienvenue",
}

// RATPStations is the allow-list of stations the metro/bus planner accepts.
var RATPStations = []string{
	"Massy Opéra", "Vilgénis", "Châtelet", "Montparnasse-Bienvenue",
	"Invalides", "Nation", "La Défense",
}

// ResolveRATPStation applies the alias table and checks the allow-list.
func ResolveRATPStation(name string) (string, bool) {
	if alias, ok := ratpAliases[name]; ok {
		name = alias
	}
	for _, station := range RATPStations {
		if station == name {
			return name, true
		}
	}
	return "", false
}

// RATPClient plans metro, bus and tram journeys.
type RATPClient struct {
	client  *Client
	baseURL string
}

func NewRATPClient(baseURL string) *RATPClient {
	return &RATPClient{
		client:  NewClient("ratp", 15*time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (r *RATPClient) Journeys(ctx context.Context, departure, arrival string) ([]Journey, error) {
	from, okFrom := ResolveRATPStation(departure)
	to, okTo := ResolveRATPStation(arrival)
	if !okFrom || !okTo {
		return nil, apperr.NotFound(fmt.Sprintf("unknown RATP station: %s or %s", departure, arrival))
	}

	var resp struct {
		Result struct {
			Journeys []navitiaJourney `json:"journeys"`
		} `json:"result"`
	}
	if err := r.client.GetJSON(ctx, r.baseURL+"/journeys", url.Values{"from": {from}, "to": {to}}, &resp); err != nil {
		return nil, err
	}
	found := resp.Result.Journeys
	if len(found) == 0 {
		return nil, apperr.NotFound("no RATP journey found for these stations")
	}

	journeys := []Journey{}
	for _, j := range found[:min(len(found), MaxJourneys)] {
		sections := []Section{}
		for _, sec := range j.Sections {
			if sec.Type != "public_transport" {
				continue
			}
			sections = append(sections, Section{
				Type:     sec.DisplayInfo.Network,
				From:     sec.From.Name,
				To:       sec.To.Name,
				Duration: sec.Duration / 60,
				Line:     sec.DisplayInfo.Code,
			})
		}
		journeys = append(journeys, Journey{
			DepartureTime: clockTime(j.DepartureDateTime),
			ArrivalTime:   clockTime(j.ArrivalDateTime),
			Duration:      j.Duration / 60,
			Type:          "RATP",
			Status:        JourneyOnTime,
			Sections:      sections,
		})
	}
	return journeys, nil
}

type Station struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Lat   float64  `json:"lat"`
	Lng   float64  `json:"lng"`
	Lines []string `json:"lines"`
}

// Stations lists the transport stations around Massy.
func Stations() []Station {
	return []Station{
		{Name: "Gare de Massy TGV", Type: "sncf", Lat: 48.7352, Lng: 2.2896, Lines: []string{"TGV", "TER", "RER B", "RER C"}},
		{Name: "Massy-Palaiseau RER", Type: "sncf", Lat: 48.7324, Lng: 2.2848, Lines: []string{"RER B", "RER C"}},
		{Name: "Massy Opéra", Type: "ratp", Lat: 48.7381, Lng: 2.2889, Lines: []string{"Bus 199", "Bus 319", "Bus 399"}},
		{Name: "Vilgénis", Type: "ratp", Lat: 48.7290, Lng: 2.2950, Lines: []string{"Bus 199"}},
		{Name: "Châtelet", Type: "ratp", Lat: 48.8582, Lng: 2.3470, Lines: []string{"Metro 1", "Metro 4", "Metro 7", "Metro 11", "Metro 14"}},
		{Name: "Montparnasse-Bienvenue", Type: "ratp", Lat: 48.8422, Lng: 2.3211, Lines: []string{"Metro 4", "Metro 6", "Metro 12", "Metro 13"}},
		{Name: "La Défense", Type: "ratp", Lat: 48.8910, Lng: 2.2370, Lines: []string{"Metro 1", "RER A"}},
	}
}

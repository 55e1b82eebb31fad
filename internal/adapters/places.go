package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/massy-ia/citydesk/internal/apperr"
)

// Massy town hall, the default search center.
const (
	DefaultLat          = 48.735
	DefaultLng          = 2.29
	DefaultNearbyRadius = 1000
	DefaultPlaceType    = "store"
	textSearchRadius    = 5000
	detailsFields       = "name,rating,formatted_phone_number,website,opening_hours,geometry"
)

type Place struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Types   []string `json:"types"`
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Address string   `json:"address"`
	Rating  float64  `json:"rating"`
	Phone   string   `json:"phone,omitempty"`
	Website string   `json:"website,omitempty"`
	IsOpen  *bool    `json:"is_open,omitempty"`
	Icon    string   `json:"icon,omitempty"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Types            []string `json:"types"`
	Vicinity         string   `json:"vicinity"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           float64  `json:"rating"`
	Icon             string   `json:"icon"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

type placesResponse struct {
	Status  string        `json:"status"`
	Results []placeResult `json:"results"`
}

type detailsResponse struct {
	Result struct {
		Rating       float64 `json:"rating"`
		Phone        string  `json:"formatted_phone_number"`
		Website      string  `json:"website"`
		OpeningHours *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"result"`
}

// PlacesClient searches shops through the Google Places web service.
type PlacesClient struct {
	client  *Client
	baseURL string
	apiKey  string
}

func NewPlacesClient(baseURL, apiKey string) *PlacesClient {
	return &PlacesClient{
		client:  NewClient("places", 15*time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (p *PlacesClient) configured() error {
	if p.apiKey == "" {
		return apperr.Unavailable("places search is not configured", nil)
	}
	return nil
}

func location(lat, lng float64) string {
	return fmt.Sprintf("%s,%s", strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lng, 'f', -1, 64))
}

// Nearby lists places of placeType around a point, enriched with one details
// call per place.
func (p *PlacesClient) Nearby(ctx context.Context, lat, lng float64, radius int, placeType string) ([]Place, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	var resp placesResponse
	err := p.client.GetJSON(ctx, p.baseURL+"/nearbysearch/json", url.Values{
		"location": {location(lat, lng)},
		"radius":   {strconv.Itoa(radius)},
		"type":     {placeType},
		"key":      {p.apiKey},
	}, &resp)
	if err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		var details detailsResponse
		err := p.client.GetJSON(ctx, p.baseURL+"/details/json", url.Values{
			"place_id": {r.PlaceID},
			"fields":   {detailsFields},
			"key":      {p.apiKey},
		}, &details)
		if err != nil {
			return nil, err
		}

		place := Place{
			ID:      r.PlaceID,
			Name:    r.Name,
			Types:   nonNil(r.Types),
			Lat:     r.Geometry.Location.Lat,
			Lng:     r.Geometry.Location.Lng,
			Address: r.Vicinity,
			Rating:  details.Result.Rating,
			Phone:   details.Result.Phone,
			Website: details.Result.Website,
		}
		if details.Result.OpeningHours != nil {
			place.IsOpen = details.Result.OpeningHours.OpenNow
		}
		places = append(places, place)
	}
	return places, nil
}

// Search runs a free-text search within 5km of a point. An empty query
// returns no places without calling the service.
func (p *PlacesClient) Search(ctx context.Context, query string, lat, lng float64) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Place{}, nil
	}
	if err := p.configured(); err != nil {
		return nil, err
	}
	var resp placesResponse
	err := p.client.GetJSON(ctx, p.baseURL+"/textsearch/json", url.Values{
		"query":    {query},
		"location": {location(lat, lng)},
		"radius":   {strconv.Itoa(textSearchRadius)},
		"key":      {p.apiKey},
	}, &resp)
	if err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		places = append(places, Place{
			ID:      r.PlaceID,
			Name:    r.Name,
			Types:   nonNil(r.Types),
			Lat:     r.Geometry.Location.Lat,
			Lng:     r.Geometry.Location.Lng,
			Address: r.FormattedAddress,
			Rating:  r.Rating,
			Icon:    r.Icon,
		})
	}
	return places, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

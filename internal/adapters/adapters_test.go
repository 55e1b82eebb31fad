package adapters

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massy-ia/citydesk/internal/apperr"
)

func TestClientMapsFailuresToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-upstream", time.Second)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.True(t, apperr.Is(err, apperr.KindUnavailable))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	srv.Close()
	_, err = c.Get(context.Background(), srv.URL, nil)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestClientIgnoresCanceledCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient("canceled-upstream", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 12 {
		_, err := c.Get(ctx, srv.URL, nil)
		require.True(t, apperr.Is(err, apperr.KindUnavailable))
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State())
	assert.Zero(t, c.breaker.Counts().TotalFailures)

	body, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestClientTripsOnUpstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("missing-upstream", time.Second)
	for range 10 {
		_, err := c.Get(context.Background(), srv.URL, nil)
		require.True(t, apperr.Is(err, apperr.KindUnavailable))
	}
	assert.Equal(t, gobreaker.StateOpen, c.breaker.State())

	_, err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestPlacesNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))
		switch r.URL.Path {
		case "/nearbysearch/json":
			assert.Equal(t, "48.735,2.29", r.URL.Query().Get("location"))
			assert.Equal(t, "1000", r.URL.Query().Get("radius"))
			assert.Equal(t, "store", r.URL.Query().Get("type"))
			io.WriteString(w, `{"results":[{"place_id":"p1","name":"Boulangerie","types":["bakery"],
				"vicinity":"1 rue de Paris","geometry":{"location":{"lat":48.73,"lng":2.28}}}]}`)
		case "/details/json":
			assert.Equal(t, "p1", r.URL.Query().Get("place_id"))
			io.WriteString(w, `{"result":{"rating":4.5,"formatted_phone_number":"01 23","website":"https://b.fr",
				"opening_hours":{"open_now":true}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	places, err := NewPlacesClient(srv.URL, "key-1").Nearby(context.Background(), DefaultLat, DefaultLng, DefaultNearbyRadius, DefaultPlaceType)
	require.NoError(t, err)
	require.Len(t, places, 1)
	p := places[0]
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "1 rue de Paris", p.Address)
	assert.Equal(t, 4.5, p.Rating)
	assert.Equal(t, "01 23", p.Phone)
	require.NotNil(t, p.IsOpen)
	assert.True(t, *p.IsOpen)
}

func TestPlacesSearch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/textsearch/json", r.URL.Path)
		assert.Equal(t, "5000", r.URL.Query().Get("radius"))
		io.WriteString(w, `{"results":[{"place_id":"p2","name":"Librairie","formatted_address":"Place de France",
			"rating":4.1,"geometry":{"location":{"lat":1,"lng":2}}}]}`)
	}))
	defer srv.Close()

	client := NewPlacesClient(srv.URL, "key")
	places, err := client.Search(context.Background(), "   ", DefaultLat, DefaultLng)
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.Zero(t, calls.Load())

	places, err = client.Search(context.Background(), "librairie", DefaultLat, DefaultLng)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Place de France", places[0].Address)
	assert.Equal(t, []string{}, places[0].Types)
}

func TestPlacesUnconfigured(t *testing.T) {
	_, err := NewPlacesClient("http://127.0.0.1:0", "").Nearby(context.Background(), 0, 0, 1, "store")
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestSNCFJourneys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sncf-key", user)
		switch r.URL.Path {
		case "/places":
			switch r.URL.Query().Get("q") {
			case "Massy TGV":
				io.WriteString(w, `{"places":[{"id":"admin:1","embedded_type":"administrative_region"},
					{"id":"stop_area:MASSY","embedded_type":"stop_area"}]}`)
			case "Paris Gare de Lyon":
				io.WriteString(w, `{"places":[{"id":"stop_area:PGL","embedded_type":"stop_area"}]}`)
			default:
				io.WriteString(w, `{"places":[]}`)
			}
		case "/journeys":
			assert.Equal(t, "stop_area:MASSY", r.URL.Query().Get("from"))
			assert.Equal(t, "stop_area:PGL", r.URL.Query().Get("to"))
			io.WriteString(w, `{"journeys":[{"departure_date_time":"20250101T101500","arrival_date_time":"20250101T104000",
				"duration":1500,"disruptions":[{"id":"d1"}],"sections":[
					{"type":"street_network","duration":60},
					{"type":"public_transport","duration":1440,"from":{"stop_point":{"name":"Massy TGV"}},
					 "to":{"stop_point":{"name":"Paris Gare de Lyon"}},"display_informations":{"commercial_mode":"TGV INOUI"}}]}]}`)
		}
	}))
	defer srv.Close()

	client := NewSNCFClient(srv.URL, "sncf-key")
	journeys, err := client.Journeys(context.Background(), DefaultSNCFDeparture, DefaultSNCFArrival)
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	j := journeys[0]
	assert.Equal(t, "10:15", j.DepartureTime)
	assert.Equal(t, "10:40", j.ArrivalTime)
	assert.Equal(t, 25, j.Duration)
	assert.Equal(t, JourneyDisrupted, j.Status)
	require.Len(t, j.Sections, 1)
	assert.Equal(t, Section{Type: "train", From: "Massy TGV", To: "Paris Gare de Lyon", Duration: 24, Mode: "TGV INOUI"}, j.Sections[0])

	_, err = client.Journeys(context.Background(), "Nowhere", DefaultSNCFArrival)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRATPJourneys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("to") == "Nation" {
			io.WriteString(w, `{"result":{"journeys":[]}}`)
			return
		}
		assert.Equal(t, "Massy Opéra", r.URL.Query().Get("from"))
		assert.Equal(t, "Châtelet", r.URL.Query().Get("to"))
		journeys := make([]map[string]any, 7)
		for i := range journeys {
			journeys[i] = map[string]any{
				"departure_date_time": "20250101T080000",
				"arrival_date_time":   "20250101T090000",
				"duration":            3600,
				"sections": []map[string]any{{
					"type": "public_transport", "duration": 600,
					"from": map[string]any{"name": "Massy Opéra"}, "to": map[string]any{"name": "Châtelet"},
					"display_informations": map[string]any{"network": "RER", "code": "B"},
				}},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"journeys": journeys}})
	}))
	defer srv.Close()

	client := NewRATPClient(srv.URL)
	journeys, err := client.Journeys(context.Background(), "Massy TGV", "Paris Gare de Lyon")
	require.NoError(t, err)
	assert.Len(t, journeys, MaxJourneys)
	assert.Equal(t, Section{Type: "RER", From: "Massy Opéra", To: "Châtelet", Duration: 10, Line: "B"}, journeys[0].Sections[0])
	assert.Equal(t, JourneyOnTime, journeys[0].Status)

	_, err = client.Journeys(context.Background(), "Massy Opéra", "Gare du Nord")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = client.Journeys(context.Background(), "Massy Opéra", "Nation")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestResolveRATPStation(t *testing.T) {
	name, ok := ResolveRATPStation("Paris Montparnasse")
	assert.True(t, ok)
	assert.Equal(t, "Montparnasse-Bienvenue", name)

	name, ok = ResolveRATPStation("Vilgénis")
	assert.True(t, ok)
	assert.Equal(t, "Vilgénis", name)

	_, ok = ResolveRATPStation("Gare du Nord")
	assert.False(t, ok)
}

func TestClockTime(t *testing.T) {
	assert.Equal(t, "07:05", clockTime("20250101T070500"))
	assert.Equal(t, "garbage", clockTime("garbage"))
}

func TestStations(t *testing.T) {
	assert.Len(t, Stations(), 7)
}

const newsPage = `<html><body>
<div class="news-item"><a href="/actu/1"><span class="title"> Travaux place de France </span></a>
  <span class="date">01/02/2025</span><span class="category">Urbanisme</span></div>
<div class="news-item"><span class="title">Conseil municipal</span></div>
<div class="news-item"><span class="category">culture</span></div>
</body></html>`

const eventsPage = `<html><body>
<div class="event-card"><h3 class="event-title">Fête de la musique</h3>
  <p class="event-description">Concerts en ville</p><span class="event-date">21/06/2025</span></div>
<div class="event-card"><p class="event-description">No title here</p></div>
<div class="event-card"><h3 class="event-title">Brocante</h3><span class="event-date">bientôt</span></div>
</body></html>`

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, newsPage) })
	mux.HandleFunc("/agenda", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, eventsPage) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScraperNews(t *testing.T) {
	srv := newSiteServer(t)
	scraper := NewScraper(srv.URL+"/news", srv.URL+"/agenda")

	items, err := scraper.News(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Travaux place de France", items[0].Title)
	assert.Equal(t, "/actu/1", items[0].URL)
	assert.Equal(t, "urbanisme", items[0].Category)
	require.NotNil(t, items[0].Date)
	assert.Equal(t, "01/02/2025", *items[0].Date)
	assert.Equal(t, "Massy.fr", items[0].Source)

	assert.Equal(t, "#", items[1].URL)
	assert.Equal(t, "general", items[1].Category)
	assert.Nil(t, items[1].Date)
	assert.Equal(t, "Titre inconnu", items[2].Title)

	filtered, err := scraper.News(context.Background(), "Culture")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "culture", filtered[0].Category)
}

func TestScraperEvents(t *testing.T) {
	srv := newSiteServer(t)
	events, err := NewScraper(srv.URL+"/news", srv.URL+"/agenda").Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Fête de la musique", events[0].Title)
	assert.Equal(t, "Concerts en ville", events[0].Description)
	require.NotNil(t, events[0].Date)
	assert.Equal(t, time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC), *events[0].Date)

	assert.Equal(t, "Brocante", events[1].Title)
	assert.Equal(t, "Aucune description", events[1].Description)
	assert.Nil(t, events[1].Date)
}

func TestScraperUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewScraper(srv.URL, srv.URL).News(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestExtractPDFTextRejectsGarbage(t *testing.T) {
	_, err := ExtractPDFText([]byte("definitely not a pdf"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = ExtractPDFText(nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestWebhookNotify(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/election-bot", r.URL.Path)
		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL + "/")
	require.True(t, hook.Enabled())
	hook.Notify(context.Background(), WorkflowElectionBot, map[string]any{"query": "horaires"})
	hook.Wait()

	select {
	case payload := <-received:
		assert.Equal(t, "horaires", payload["query"])
	default:
		t.Fatal("webhook was not called")
	}

	disabled := NewWebhook("")
	assert.False(t, disabled.Enabled())
	disabled.Notify(context.Background(), WorkflowElectionBot, nil)
	disabled.Wait()
}

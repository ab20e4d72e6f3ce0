package geotools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// OpenMeteo answers the weather tool with current conditions from the
// Open-Meteo public API. Reports are cached per location so repeated tool
// calls inside a conversation do not hammer the API.
type OpenMeteo struct {
	geocodeURL  string
	forecastURL string
	httpClient  *http.Client
	cache       *gocache.Cache
	cacheTTL    time.Duration
}

type Options struct {
	GeocodeURL  string
	ForecastURL string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

func NewOpenMeteo(options Options) *OpenMeteo {
	if options.GeocodeURL == "" {
		options.GeocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if options.ForecastURL == "" {
		options.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if options.Timeout <= 0 {
		options.Timeout = 10 * time.Second
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = 15 * time.Minute
	}
	return &OpenMeteo{
		geocodeURL:  options.GeocodeURL,
		forecastURL: options.ForecastURL,
		httpClient:  &http.Client{Timeout: options.Timeout},
		cache:       gocache.New(options.CacheTTL, 30*time.Minute),
		cacheTTL:    options.CacheTTL,
	}
}

func (o *OpenMeteo) CurrentWeather(ctx context.Context, location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "weather", fmt.Errorf("location is empty"))
	}

	key := strings.ToLower(location)
	if cached, ok := o.cache.Get(key); ok {
		return cached.(string), nil
	}

	lat, lon, place, err := o.resolve(ctx, location)
	if err != nil {
		return "", err
	}

	report, err := o.current(ctx, lat, lon, place)
	if err != nil {
		return "", err
	}

	o.cache.Set(key, report, o.cacheTTL)
	return report, nil
}

// resolve accepts either "lat,lon" coordinates or a place name.
func (o *OpenMeteo) resolve(ctx context.Context, location string) (float64, float64, string, error) {
	if lat, lon, ok := parseCoordinates(location); ok {
		return lat, lon, location, nil
	}

	query := url.Values{}
	query.Set("name", location)
	query.Set("count", "1")
	query.Set("language", "fr")

	var response struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Country   string  `json:"country"`
		} `json:"results"`
	}
	if err := o.getJSON(ctx, o.geocodeURL+"?"+query.Encode(), &response); err != nil {
		return 0, 0, "", fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(response.Results) == 0 {
		return 0, 0, "", domain.WrapError(domain.ErrNotFound, "geocode", fmt.Errorf("no match for %q", location))
	}

	hit := response.Results[0]
	place := hit.Name
	if hit.Country != "" {
		place += ", " + hit.Country
	}
	return hit.Latitude, hit.Longitude, place, nil
}

func (o *OpenMeteo) current(ctx context.Context, lat, lon float64, place string) (string, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	query.Set("current", "temperature_2m,precipitation,weather_code,wind_speed_10m")

	var response struct {
		Current struct {
			Temperature   float64 `json:"temperature_2m"`
			Precipitation float64 `json:"precipitation"`
			WeatherCode   int     `json:"weather_code"`
			WindSpeed     float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	if err := o.getJSON(ctx, o.forecastURL+"?"+query.Encode(), &response); err != nil {
		return "", fmt.Errorf("forecast: %w", err)
	}

	c := response.Current
	return fmt.Sprintf("%s : %s, %.1f°C, vent %.0f km/h, précipitations %.1f mm",
		place, describeWeatherCode(c.WeatherCode), c.Temperature, c.WindSpeed, c.Precipitation), nil
}

func parseCoordinates(location string) (float64, float64, bool) {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// describeWeatherCode translates WMO weather interpretation codes.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "ciel dégagé"
	case code <= 3:
		return "partiellement nuageux"
	case code == 45 || code == 48:
		return "brouillard"
	case code >= 51 && code <= 57:
		return "bruine"
	case code >= 61 && code <= 67:
		return "pluie"
	case code >= 71 && code <= 77:
		return "neige"
	case code >= 80 && code <= 82:
		return "averses"
	case code >= 95:
		return "orage"
	default:
		return "conditions variables"
	}
}

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/martinemde/chatagent/agentloop"
)

const weatherTimeout = 5 * time.Second

// wttrResponse is the subset of the wttr.in j1 format the tool reads.
type wttrResponse struct {
	CurrentCondition []struct {
		TempC          string      `json:"temp_C"`
		TempF          string      `json:"temp_F"`
		FeelsLikeC     string      `json:"FeelsLikeC"`
		FeelsLikeF     string      `json:"FeelsLikeF"`
		Humidity       string      `json:"humidity"`
		WindspeedKmph  string      `json:"windspeedKmph"`
		WindspeedMiles string      `json:"windspeedMiles"`
		WeatherDesc    []wttrValue `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []wttrValue `json:"areaName"`
		Country  []wttrValue `json:"country"`
	} `json:"nearest_area"`
}

type wttrValue struct {
	Value string `json:"value"`
}

func registerWeather(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "get_weather",
			Description: "Get current weather information for any location worldwide. Returns temperature, conditions, humidity, and wind speed.",
			Parameters: objectSchema(map[string]interface{}{
				"location": stringProp("The city or location to get weather for (e.g., 'Paris', 'New York, NY', 'Tokyo')"),
			}, "location"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			location, err := requiredString(args, "location")
			if err != nil {
				return "", err
			}
			return getWeather(ctx, d, location), nil
		},
	})
}

func getWeather(ctx context.Context, d Deps, location string) string {
	ctx, cancel := context.WithTimeout(ctx, weatherTimeout)
	defer cancel()

	endpoint := strings.TrimRight(d.WeatherURL, "/") + "/" + url.PathEscape(location) + "?format=j1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Error: Could not fetch weather data: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Sprintf("Error: Request timed out while fetching weather for %s", location)
		}
		return fmt.Sprintf("Error: Could not fetch weather data: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: Could not fetch weather data: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return fmt.Sprintf("Error: Request timed out while fetching weather for %s", location)
		}
		return fmt.Sprintf("Error: Could not fetch weather data: %v", err)
	}

	var data wttrResponse
	if err := json.Unmarshal(body, &data); err != nil ||
		len(data.CurrentCondition) == 0 || len(data.NearestArea) == 0 ||
		len(data.CurrentCondition[0].WeatherDesc) == 0 ||
		len(data.NearestArea[0].AreaName) == 0 || len(data.NearestArea[0].Country) == 0 {
		return fmt.Sprintf("Error: Could not parse weather data for %s. Location might not exist.", location)
	}

	cur := data.CurrentCondition[0]
	area := data.NearestArea[0]
	return fmt.Sprintf("Weather in %s, %s:\n"+
		"🌡️ Temperature: %s°C / %s°F (feels like %s°C / %s°F)\n"+
		"☁️ Conditions: %s\n"+
		"💧 Humidity: %s%%\n"+
		"🌬️ Wind Speed: %s km/h / %s mph",
		area.AreaName[0].Value, area.Country[0].Value,
		cur.TempC, cur.TempF, cur.FeelsLikeC, cur.FeelsLikeF,
		cur.WeatherDesc[0].Value,
		cur.Humidity,
		cur.WindspeedKmph, cur.WindspeedMiles)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

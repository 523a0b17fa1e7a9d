package models

// WeatherResult is the simplified view of the upstream current-weather payload
// returned to the browser client.
type WeatherResult struct {
	City              string  `json:"city"`
	Country           string  `json:"country"`
	Temperature       int     `json:"temperature"`
	FeelsLike         int     `json:"feels_like"`
	Humidity          float64 `json:"humidity"`
	Pressure          float64 `json:"pressure"`
	WindSpeed         float64 `json:"wind_speed"`
	WindDirection     float64 `json:"wind_direction"`
	WindDirectionText string  `json:"wind_direction_text,omitempty"`
	Visibility        float64 `json:"visibility"`
	Description       string  `json:"description"`
	WeatherMain       string  `json:"weather_main"`
	Icon              string  `json:"icon"`
	Sunrise           string  `json:"sunrise"`
	Sunset            string  `json:"sunset"`
	Timestamp         string  `json:"timestamp"`
}

// LookupResponse is the in-band envelope used by every lookup endpoint.
type LookupResponse struct {
	Success bool           `json:"success"`
	Data    *WeatherResult `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// OpenWeatherCurrent mirrors the OpenWeatherMap /data/2.5/weather document.
// Fields are pointers so that absent keys can be told apart from zero values.
type OpenWeatherCurrent struct {
	Weather []struct {
		ID          int     `json:"id"`
		Main        *string `json:"main"`
		Description *string `json:"description"`
		Icon        *string `json:"icon"`
	} `json:"weather"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Pressure  *float64 `json:"pressure"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Visibility *float64 `json:"visibility"`
	Wind       *struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Dt  int64 `json:"dt"`
	Sys *struct {
		Country *string `json:"country"`
		Sunrise *int64  `json:"sunrise"`
		Sunset  *int64  `json:"sunset"`
	} `json:"sys"`
	Timezone int     `json:"timezone"`
	Name     *string `json:"name"`
}

// UpstreamReply is what the provider client hands back for a single request.
// Current is only set when StatusCode is 200.
type UpstreamReply struct {
	StatusCode int
	Message    string
	Current    *OpenWeatherCurrent
}

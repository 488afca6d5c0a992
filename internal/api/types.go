package api

import "fmt"

// StatusSnapshot mirrors the JSON shape returned by GET /status.
type StatusSnapshot struct {
	VehicleCount  int    `json:"vehicle_count"`
	TrafficStatus string `json:"traffic_status"`
	LastPlate     string `json:"last_plate"`
	TollStatus    string `json:"toll_status"`
}

// TollHistoryEntry mirrors one element of GET /toll-history.
type TollHistoryEntry struct {
	VehicleNumber string   `json:"vehicle_number"`
	EntryTime     string   `json:"entry_time"`
	ExitTime      *string  `json:"exit_time,omitempty"`
	Status        string   `json:"status"`
	TollAmount    *float64 `json:"toll_amount,omitempty"`
}

// AnalysisResult mirrors the JSON shape returned by POST /analyze and /analyze-video.
type AnalysisResult struct {
	TotalVehicles   int    `json:"total_vehicles"`
	Cars            int    `json:"cars"`
	Bikes           int    `json:"bikes"`
	Buses           int    `json:"buses"`
	Trucks          int    `json:"trucks"`
	TrafficStatus   string `json:"traffic_status"`
	ProcessedFrames *int   `json:"processed_frames,omitempty"`
}

// TollResult is the response of POST /ai/toll. The server decides whether
// the plate entered or exited; fields it does not send stay empty.
type TollResult struct {
	Status            string   `json:"status,omitempty"`
	VehicleNumber     string   `json:"vehicle_number,omitempty"`
	EntryTime         string   `json:"entry_time,omitempty"`
	ExitTime          string   `json:"exit_time,omitempty"`
	TravelTimeMinutes *float64 `json:"travel_time_minutes,omitempty"`
	TollAmount        *float64 `json:"toll_amount,omitempty"`
}

// Summary renders the toll toggle the server performed.
func (r TollResult) Summary(plate string) string {
	switch r.Status {
	case "entry_recorded":
		return fmt.Sprintf("%s: entry recorded", plate)
	case "exit_completed":
		if r.TollAmount != nil {
			return fmt.Sprintf("%s: exit completed, toll %.2f", plate, *r.TollAmount)
		}
		return fmt.Sprintf("%s: exit completed", plate)
	case "":
		return fmt.Sprintf("%s: toll submitted", plate)
	default:
		return fmt.Sprintf("%s: %s", plate, r.Status)
	}
}

// MediaKind selects the analyze endpoint.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind accepts "image" or "video".
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaImage, MediaVideo:
		return MediaKind(s), nil
	case "":
		return MediaImage, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

func (k MediaKind) endpoint() string {
	if k == MediaVideo {
		return "/analyze-video"
	}
	return "/analyze"
}

func (s StatusSnapshot) validate() error {
	if s.VehicleCount < 0 {
		return fmt.Errorf("%w: negative vehicle_count %d", ErrMalformedResponse, s.VehicleCount)
	}
	return nil
}

func (r AnalysisResult) validate() error {
	counts := map[string]int{
		"total_vehicles": r.TotalVehicles,
		"cars":           r.Cars,
		"bikes":          r.Bikes,
		"buses":          r.Buses,
		"trucks":         r.Trucks,
	}
	for field, v := range counts {
		if v < 0 {
			return fmt.Errorf("%w: negative %s %d", ErrMalformedResponse, field, v)
		}
	}
	if r.ProcessedFrames != nil && *r.ProcessedFrames < 0 {
		return fmt.Errorf("%w: negative processed_frames %d", ErrMalformedResponse, *r.ProcessedFrames)
	}
	return nil
}

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FlexInt accepts either a JSON number or a numeric string holding a whole
// number.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	if v, err := strconv.Atoi(string(data)); err == nil {
		*n = FlexInt(v)
		return nil
	}
	// Survey tools sometimes send whole numbers as decimals ("2.0").
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("%q is not an integer", data)
	}
	*n = FlexInt(int(f))
	return nil
}

// Answers is the participant's free-text payload. Non-string JSON values are
// kept as their raw JSON text.
type Answers string

func (a *Answers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Answers(s)
		return nil
	}
	*a = Answers(data)
	return nil
}

type FeedbackRequest struct {
	Participant string  `json:"participant"`
	Round       FlexInt `json:"round"`
	Source      string  `json:"source"`
	Answers     Answers `json:"answers"`
}

type ChooseRequest struct {
	Participant string  `json:"participant"`
	Round       FlexInt `json:"round"`
	Option      FlexInt `json:"option"`
}

// PendingItem is one entry of the supervisor's queue.
type PendingItem struct {
	Participant string    `json:"participant"`
	Round       int       `json:"round"`
	Answers     string    `json:"answers"`
	SubmittedAt time.Time `json:"submitted_at"`
	Waiting     string    `json:"waiting"`
}

func NewPendingItems(records []Record, now time.Time) []PendingItem {
	items := make([]PendingItem, 0, len(records))
	for _, rec := range records {
		items = append(items, PendingItem{
			Participant: rec.Key.Participant,
			Round:       rec.Key.Round,
			Answers:     rec.Answers,
			SubmittedAt: rec.SubmittedAt,
			Waiting:     humanize.RelTime(rec.SubmittedAt, now, "ago", "from now"),
		})
	}
	return items
}

type ErrorResponse struct {
	Error string `json:"error"`
}

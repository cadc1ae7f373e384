// Пакет memento — клиент к Memento API (ленты событий EPFL) и HTML-рендеринг
// событий в шаблонах full, short и widget.
package memento

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event — событие Memento (legacy API /api/jahia/mementos/).
type Event struct {
	ID                     FlexString `json:"id"`
	Title                  string     `json:"title"`
	Subtitle               string     `json:"subtitle"`
	Description            string     `json:"description"`
	ImageDescription       string     `json:"image_description"`
	EventVisualAbsoluteURL string     `json:"event_visual_absolute_url"`
	VisualURL              string     `json:"visual_url"`
	EventStartDate         string     `json:"event_start_date"`
	EventStartTime         string     `json:"event_start_time"`
	EventEndDate           string     `json:"event_end_date"`
	EventEndTime           string     `json:"event_end_time"`
	AbsoluteSlug           string     `json:"absolute_slug"`
}

// FlexString — строка, принимающая в JSON как строку, так и число.
type FlexString string

// UnmarshalJSON принимает строку, число или null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id события: ожидается строка или число: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// decodeEvents разбирает ответ API: массив событий или объект {"results": [...]}.
func decodeEvents(body []byte) ([]Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: пустой ответ", ErrBadResponse)
	}

	if body[0] == '[' {
		var events []Event
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
		}
		return events, nil
	}

	var page struct {
		Results []Event `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return page.Results, nil
}

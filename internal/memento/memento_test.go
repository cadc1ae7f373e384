package memento

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockMemento создаёт mock Memento API, отдающий body на любой запрос.
func setupMockMemento(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()
	var lastQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jahia/mementos/", func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &lastQuery
}

func TestParseAttributes(t *testing.T) {
	a := ParseAttributes(url.Values{
		"TMPL":    {"short"},
		"Channel": {"ic"},
		"lang":    {""},
		"limit":   {" 5 "},
		"unknown": {"x"},
	})
	if a.Template != TemplateShort {
		t.Errorf("Template = %q, ожидается short", a.Template)
	}
	if a.Channel != "ic" {
		t.Errorf("Channel = %q, ожидается ic", a.Channel)
	}
	if a.Lang != "en" {
		t.Errorf("Lang = %q, ожидается значение по умолчанию en", a.Lang)
	}
	if a.Limit != "5" {
		t.Errorf("Limit = %q, ожидается 5", a.Limit)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name  string
		attrs Attributes
		want  string
	}{
		{
			name:  "по умолчанию",
			attrs: DefaultAttributes(),
			want:  "https://memento.epfl.ch/api/jahia/mementos/sti/events/en/?format=json",
		},
		{
			name: "порядок параметров",
			attrs: Attributes{
				Channel: "sti", Lang: "fr",
				Offset: "10", Limit: "3", Category: "CONF", Title: "a b", Search: "x&y",
			},
			want: "https://memento.epfl.ch/api/jahia/mementos/sti/events/fr/?format=json" +
				"&category=CONF&search=x%26y&title=a+b&limit=3&offset=10",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildURL("https://memento.epfl.ch/", tt.attrs); got != tt.want {
				t.Errorf("BuildURL() = %q\nожидается    %q", got, tt.want)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	c := New("https://memento.epfl.ch", "memento.epfl.ch", time.Second, nil, testLogger())

	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://memento.epfl.ch/api/jahia/mementos/sti/events/en/?format=json", true},
		{"http://MEMENTO.epfl.ch/x", true},
		{"ftp://memento.epfl.ch/x", false},
		{"https://evil.example.com/x", false},
		{"https://memento.epfl.ch.evil.com/x", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		_, err := c.ValidateURL(tt.raw)
		if tt.ok && err != nil {
			t.Errorf("ValidateURL(%q) = %v, ожидается nil", tt.raw, err)
		}
		if !tt.ok && !errors.Is(err, ErrURLNotValidated) {
			t.Errorf("ValidateURL(%q) = %v, ожидается ErrURLNotValidated", tt.raw, err)
		}
	}
}

func TestFetchEvents_Array(t *testing.T) {
	server, lastQuery := setupMockMemento(t, http.StatusOK,
		`[{"id": 42, "title": "Seminar"}, {"id": "43", "title": "Talk"}]`)
	c := New(server.URL, "127.0.0.1", 5*time.Second, nil, testLogger())

	events, err := c.FetchEvents(context.Background(), BuildURL(c.BaseURL(), DefaultAttributes()))
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, ожидается 2", len(events))
	}
	if events[0].ID != "42" || events[1].ID != "43" {
		t.Errorf("ID = %q, %q; ожидается 42, 43", events[0].ID, events[1].ID)
	}
	if !strings.HasPrefix(*lastQuery, "/api/jahia/mementos/sti/events/en/") {
		t.Errorf("запрос = %q", *lastQuery)
	}
}

func TestFetchEvents_Results(t *testing.T) {
	server, _ := setupMockMemento(t, http.StatusOK, `{"count": 1, "results": [{"id": 1, "title": "Open day"}]}`)
	c := New(server.URL, "127.0.0.1", 5*time.Second, nil, testLogger())

	events, err := c.FetchEvents(context.Background(), BuildURL(c.BaseURL(), DefaultAttributes()))
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Open day" {
		t.Errorf("events = %+v", events)
	}
}

func TestFetchEvents_Errors(t *testing.T) {
	t.Run("HTTP 500", func(t *testing.T) {
		server, _ := setupMockMemento(t, http.StatusInternalServerError, `oops`)
		c := New(server.URL, "127.0.0.1", 5*time.Second, nil, testLogger())
		_, err := c.FetchEvents(context.Background(), BuildURL(c.BaseURL(), DefaultAttributes()))
		if !errors.Is(err, ErrBadResponse) {
			t.Errorf("ошибка = %v, ожидается ErrBadResponse", err)
		}
	})

	t.Run("некорректный JSON", func(t *testing.T) {
		server, _ := setupMockMemento(t, http.StatusOK, `{"results": 5}`)
		c := New(server.URL, "127.0.0.1", 5*time.Second, nil, testLogger())
		_, err := c.FetchEvents(context.Background(), BuildURL(c.BaseURL(), DefaultAttributes()))
		if !errors.Is(err, ErrBadResponse) {
			t.Errorf("ошибка = %v, ожидается ErrBadResponse", err)
		}
	})

	t.Run("чужой хост", func(t *testing.T) {
		server, _ := setupMockMemento(t, http.StatusOK, `[]`)
		c := New(server.URL, "memento.epfl.ch", 5*time.Second, nil, testLogger())
		_, err := c.FetchEvents(context.Background(), BuildURL(c.BaseURL(), DefaultAttributes()))
		if !errors.Is(err, ErrURLNotValidated) {
			t.Errorf("ошибка = %v, ожидается ErrURLNotValidated", err)
		}
	})
}

func TestRender_Description(t *testing.T) {
	events := []Event{{
		ID:          "8",
		Title:       "Talk",
		Description: `<p>Room <strong>BC 420</strong>, <a href="https://sti.epfl.ch">STI</a></p><script>alert(1)</script><img src="x" onerror="alert(2)">`,
	}}

	out, err := RenderString(TemplateFull, events)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		`<div class="memento_description"><p>Room <strong>BC 420</strong>`,
		`href="https://sti.epfl.ch"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("вывод не содержит %q:\n%s", want, out)
		}
	}
	for _, bad := range []string{"<script", "alert(1)", "onerror", "&lt;p&gt;"} {
		if strings.Contains(out, bad) {
			t.Errorf("вывод содержит %q:\n%s", bad, out)
		}
	}
}

func TestRender(t *testing.T) {
	events := []Event{{
		ID:                     "7",
		Title:                  "Talk <b>",
		Subtitle:               "Sub",
		Description:            "Desc",
		ImageDescription:       "Img",
		EventVisualAbsoluteURL: "https://memento.epfl.ch/img.jpg",
		VisualURL:              "https://memento.epfl.ch/v.jpg",
		EventStartDate:         "2026-05-01",
		EventStartTime:         "10:00",
		AbsoluteSlug:           "https://memento.epfl.ch/event/talk",
	}}

	t.Run("full", func(t *testing.T) {
		out, err := RenderString(TemplateFull, events)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		for _, want := range []string{
			`<div class="memento_item" id="7">`,
			`<h2>Talk &lt;b&gt;</h2>`,
			`Start date: 2026-05-01 10:00`,
			`<a href="https://memento.epfl.ch/event/talk">Read more</a>`,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("вывод не содержит %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "End date") {
			t.Error("End date не должна выводиться без даты окончания")
		}
	})

	t.Run("дата окончания", func(t *testing.T) {
		withEnd := append([]Event(nil), events...)
		withEnd[0].EventEndDate = "2026-05-02"
		withEnd[0].EventEndTime = "12:00"
		out, err := RenderString(TemplateFull, withEnd)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if !strings.Contains(out, "End date: 2026-05-02 12:00") {
			t.Errorf("нет даты окончания:\n%s", out)
		}
	})

	t.Run("short", func(t *testing.T) {
		out, err := RenderString(TemplateShort, events)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if !strings.Contains(out, `<div class="actu_item"`) || !strings.Contains(out, "<p>Sub</p>") {
			t.Errorf("неожиданный вывод:\n%s", out)
		}
	})

	t.Run("widget", func(t *testing.T) {
		out, err := RenderString(TemplateWidget, events)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if !strings.Contains(out, `<a href="https://memento.epfl.ch/v.jpg"><img src="https://memento.epfl.ch/v.jpg"`) {
			t.Errorf("неожиданный вывод:\n%s", out)
		}
	})

	t.Run("неизвестный шаблон", func(t *testing.T) {
		out, err := RenderString("fancy", events)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if !strings.Contains(out, "memento_item") {
			t.Errorf("ожидается шаблон full:\n%s", out)
		}
	})

	t.Run("пустой список", func(t *testing.T) {
		out, err := RenderString(TemplateFull, nil)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if strings.TrimSpace(out) != "" {
			t.Errorf("ожидается пустой вывод, получено %q", out)
		}
	})
}

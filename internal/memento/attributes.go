package memento

import (
	"net/url"
	"strings"
)

// Шаблоны вывода.
const (
	TemplateFull   = "full"
	TemplateShort  = "short"
	TemplateWidget = "widget"
)

// Attributes — параметры ленты событий.
type Attributes struct {
	Template  string
	Channel   string
	Lang      string
	Category  string
	Search    string
	Title     string
	Subtitle  string
	Text      string
	Publics   string
	Themes    string
	Limit     string
	Faculties string
	Offset    string
}

// DefaultAttributes — значения по умолчанию: полный шаблон, канал STI, английский.
func DefaultAttributes() Attributes {
	return Attributes{Template: TemplateFull, Channel: "sti", Lang: "en"}
}

// ParseAttributes строит Attributes из параметров запроса.
// Имена параметров нечувствительны к регистру, пустые значения
// обязательных параметров заменяются значениями по умолчанию.
func ParseAttributes(values url.Values) Attributes {
	a := DefaultAttributes()
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := strings.TrimSpace(vals[0])
		switch strings.ToLower(key) {
		case "tmpl":
			if v != "" {
				a.Template = v
			}
		case "channel":
			if v != "" {
				a.Channel = v
			}
		case "lang":
			if v != "" {
				a.Lang = v
			}
		case "category":
			a.Category = v
		case "search":
			a.Search = v
		case "title":
			a.Title = v
		case "subtitle":
			a.Subtitle = v
		case "text":
			a.Text = v
		case "publics":
			a.Publics = v
		case "themes":
			a.Themes = v
		case "limit":
			a.Limit = v
		case "faculties":
			a.Faculties = v
		case "offset":
			a.Offset = v
		}
	}
	return a
}

// BuildURL формирует URL запроса событий к Memento API.
// Необязательные параметры добавляются в фиксированном порядке.
func BuildURL(baseURL string, a Attributes) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/api/jahia/mementos/")
	b.WriteString(url.PathEscape(a.Channel))
	b.WriteString("/events/")
	b.WriteString(url.PathEscape(a.Lang))
	b.WriteString("/?format=json")

	optional := []struct{ key, value string }{
		{"category", a.Category},
		{"search", a.Search},
		{"subtitle", a.Subtitle},
		{"publics", a.Publics},
		{"title", a.Title},
		{"text", a.Text},
		{"themes", a.Themes},
		{"limit", a.Limit},
		{"faculties", a.Faculties},
		{"offset", a.Offset},
	}
	for _, p := range optional {
		if p.value == "" {
			continue
		}
		b.WriteString("&")
		b.WriteString(p.key)
		b.WriteString("=")
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

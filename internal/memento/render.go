// render.go — HTML-шаблоны ленты событий.
package memento

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
)

// descriptionPolicy — описание события приходит из Memento в виде HTML;
// допускается только пользовательская разметка (ссылки, списки, выделение).
var descriptionPolicy = bluemonday.UGCPolicy()

// richText очищает HTML описания события и помечает результат как безопасный.
func richText(s string) template.HTML {
	return template.HTML(descriptionPolicy.Sanitize(s))
}

var templates = template.Must(template.New("memento").Funcs(template.FuncMap{
	"richtext": richText,
}).Parse(`
{{- define "full" -}}
{{- range . -}}
<div class="memento_item" id="{{.ID}}">
<h2>{{.Title}}</h2>
<p><img src="{{.EventVisualAbsoluteURL}}" title="{{.ImageDescription}}"></p>
<p>Start date: {{.EventStartDate}} {{.EventStartTime}}
{{- if .EventEndDate}} End date: {{.EventEndDate}} {{.EventEndTime}}{{end -}}
</p>
<div class="memento_description">{{richtext .Description}}</div>
<p><a href="{{.AbsoluteSlug}}">Read more</a></p>
</div>
{{end -}}
{{- end -}}

{{- define "short" -}}
{{- range . -}}
<div class="actu_item" id="{{.ID}}">
<h2>{{.Title}}</h2>
<p>{{.Subtitle}}</p>
<img src="{{.VisualURL}}" title="">
</div>
{{end -}}
{{- end -}}

{{- define "widget" -}}
{{- range . -}}
<div class="actu_item" id="{{.ID}}">
<h2>{{.Title}}</h2>
<a href="{{.VisualURL}}"><img src="{{.VisualURL}}" title=""></a>
</div>
{{end -}}
{{- end -}}
`))

// Render выводит события в шаблоне tmpl (full, short, widget).
// Неизвестный шаблон рендерится как full. Описание события выводится
// очищенным HTML, остальные значения экранируются.
func Render(w io.Writer, tmpl string, events []Event) error {
	switch tmpl {
	case TemplateShort, TemplateWidget:
	default:
		tmpl = TemplateFull
	}
	if err := templates.ExecuteTemplate(w, tmpl, events); err != nil {
		return fmt.Errorf("рендеринг шаблона %s: %w", tmpl, err)
	}
	return nil
}

// RenderString — Render в строку.
func RenderString(tmpl string, events []Event) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, tmpl, events); err != nil {
		return "", err
	}
	return buf.String(), nil
}

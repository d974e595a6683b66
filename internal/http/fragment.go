package http

import (
	"html/template"
	"io"

	"github.com/kjstillabower/weather-widget/internal/render"
)

var fragmentTemplate = template.Must(template.New("fragment").Parse(`<section class="widget widget_simple_weather">
{{- if .Title}}
<h2 class="widget-title">{{.Title}}</h2>
{{- end}}
{{- with .Model.Details}}
<div class="simple-weather-widget">
{{- if .IconURL}}
<div class="sw-icon"><img src="{{.IconURL}}" alt="{{.IconAlt}}" width="64" height="64"></div>
{{- end}}
<div class="sw-data">
<div class="sw-temp">{{.Temperature}}</div>
{{- if .Description}}
<div class="sw-desc">{{.Description}}</div>
{{- end}}
<ul class="sw-meta">
{{- if .HumidityLine}}
<li>{{.HumidityLine}}</li>
{{- end}}
{{- if .WindLine}}
<li>{{.WindLine}}</li>
{{- end}}
</ul>
</div>
<div style="clear:both"></div>
</div>
{{- else}}
<p>{{.Model.Message}}</p>
{{- end}}
</section>
`))

type fragmentData struct {
	Title string
	Model render.Model
}

// renderFragment writes the widget markup. All values are escaped by html/template.
func renderFragment(w io.Writer, title string, model render.Model) error {
	return fragmentTemplate.Execute(w, fragmentData{Title: title, Model: model})
}

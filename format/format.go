package format

import (
	"encoding/json"
	"text/template"
	"time"

	"github.com/manifoldco/promptui"
)

var FuncMap = template.FuncMap{
	"bufferToString": func(b []byte) string { return string(b) },
	"shorten": func(s string) string {
		if len(s) <= 8 {
			return s
		}
		return s[0:8]
	},
	"timestamp": func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) },
	"json": func(v interface{}) string {
		buf, err := json.Marshal(v)
		if err != nil {
			return err.Error()
		}
		return string(buf)
	},
}

// EventTemplate renders one replication event.
const EventTemplate = `• {{ .Kind | green | bold }} {{ .ID | shorten | faint }}
  {{ "Origin:" | faint }} {{ .Origin }}
  {{ "Time:" | faint }} {{ .Time | timestamp }}
  {{ "Payload:" | faint }} {{ .Payload | json }}
`

func ParseTemplate(body string) *template.Template {
	tpl, err := template.New("").Funcs(promptui.FuncMap).Funcs(FuncMap).Parse(body)
	if err != nil {
		panic(err)
	}
	return tpl
}

package gateway

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"mime"
	"net/http"
	"strings"

	"github.com/andrebq/portcullis/session"
)

type (
	landingPage struct {
		Modules  []ModuleData `json:"modules"`
		Redirect string       `json:"redirect,omitempty"`
	}
)

var (
	//go:embed templates/*.html
	templateFS embed.FS

	loginTemplate = template.Must(template.ParseFS(templateFS, "templates/login.html"))
)

// landing lists the available login modules. Clients that already hold an
// identity and ask for a redirect are sent straight to it.
func landing(listing []ModuleData) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirect := r.URL.Query().Get("redirect")
		if _, ok := session.FromContext(r.Context()).Identity(); ok && redirect != "" {
			http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
			return
		}
		page := landingPage{Modules: listing, Redirect: redirect}
		if wantsJSON(r) {
			buf, err := json.Marshal(page)
			if err != nil {
				WriteError(w, r, Internal{Cause: err})
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write(buf)
			return
		}
		var buf bytes.Buffer
		if err := loginTemplate.Execute(&buf, page); err != nil {
			WriteError(w, r, Internal{Cause: err})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

func wantsJSON(r *http.Request) bool {
	for _, accept := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(accept))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

package httpx

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	w.WriteHeader(http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// RenderError maps a classified core error onto its transport status
// and a JSON body. Fatal details are logged, never leaked.
func RenderError(w http.ResponseWriter, r *http.Request, code string, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	message := http.StatusText(http.StatusInternalServerError)
	switch kind {
	case apperr.KindValidation:
		status, message = http.StatusBadRequest, err.Error()
	case apperr.KindNotFound:
		status, message = http.StatusNotFound, err.Error()
	case apperr.KindConflict:
		status, message = http.StatusConflict, err.Error()
	}

	if kind == apperr.KindFatal {
		log.Errorf("%s: %s", code, err)
	} else {
		log.Debugf("%s: %s: %s", code, kind, err)
	}

	w.WriteHeader(status)
	render.JSON(w, r, map[string]any{
		"error":   kind.String(),
		"message": message,
	})
}

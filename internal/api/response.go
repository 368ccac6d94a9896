package api

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// respondWithJSON writes payload with the given status. A json.RawMessage is
// written as-is so relayed bodies reach the caller byte for byte.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	var dat []byte
	switch p := payload.(type) {
	case json.RawMessage:
		dat = p
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(payload); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		dat = bytes.TrimRight(buf.Bytes(), "\n")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(dat)
}

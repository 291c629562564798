// SPDX-License-Identifier: MIT

package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/digimedia-pe/wagate/internal/session"
)

type sendTemplateBody struct {
	Telefono string `json:"telefono"`
	Template string `json:"templateOption"`
	Nombre   string `json:"nombre"`
	Fecha    string `json:"fecha"`
	Hora     string `json:"hora"`
}

func (s *Server) handleSendTemplate(w http.ResponseWriter, r *http.Request) {
	var body sendTemplateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	res, err := s.session.SendTemplate(r.Context(), session.TemplateRequest{
		Phone:    body.Telefono,
		Template: body.Template,
		Nombre:   body.Nombre,
		Fecha:    body.Fecha,
		Hora:     body.Hora,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sendImageBody struct {
	Telefono string `json:"telefono"`
	Template string `json:"templateOption"`
	Nombre   string `json:"nombre"`
	Fecha    string `json:"fecha"`
	Hora     string `json:"hora"`
	Image    string `json:"image"`
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) {
	var body sendImageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	res, err := s.session.SendImage(r.Context(), session.ImageRequest{
		Phone:    body.Telefono,
		Template: body.Template,
		Nombre:   body.Nombre,
		Fecha:    body.Fecha,
		Hora:     body.Hora,
		Image:    body.Image,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

type sendRawImageBody struct {
	Phone     string `json:"phone"`
	ImageData string `json:"imageData"`
	Caption   string `json:"caption"`
}

func (s *Server) handleSendRawImage(w http.ResponseWriter, r *http.Request) {
	var body sendRawImageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.ImageData == "" {
		writeBadRequest(w, "imageData is required")
		return
	}

	raw := dataURLPrefix.ReplaceAllString(body.ImageData, "")
	image, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		writeBadRequest(w, "imageData is not valid base64")
		return
	}

	res, err := s.session.SendRawImage(r.Context(), body.Phone, image, body.Caption)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sendSimpleBody struct {
	Phone       string `json:"phone"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	UseTemplate bool   `json:"useTemplate"`
}

func (s *Server) handleSendSimple(w http.ResponseWriter, r *http.Request) {
	var body sendSimpleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	res, err := s.session.SendSimple(r.Context(), body.Phone, body.Message, session.SimpleKind(body.Type), body.UseTemplate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.session.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(history),
		"messages": history,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.session.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]string{"message": "history cleared"})
}

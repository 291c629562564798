// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/digimedia-pe/wagate/internal/qr"
)

type qrRequestBody struct {
	UserID string `json:"userId"`
}

func (s *Server) handleQRRequest(w http.ResponseWriter, r *http.Request) {
	var body qrRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.UserID == "" {
		writeBadRequest(w, "userId is required")
		return
	}

	res, err := s.session.RequestPairing(r.Context(), body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleQRStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.QRStatus())
}

// handleQRImage serves the raw credential artifact, so dashboards can use
// a plain <img src> instead of the data URL.
func (s *Server) handleQRImage(w http.ResponseWriter, r *http.Request) {
	artifact, ok := s.session.QRArtifact()
	if !ok {
		writeError(w, qr.ErrNoActiveCredential)
		return
	}
	w.Header().Set("Content-Type", artifact.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(artifact.Data)
}

// qrFormatInfo describes one supported credential format.
type qrFormatInfo struct {
	Format  qr.Format `json:"format"`
	MIME    string    `json:"mimeType"`
	Default bool      `json:"default"`
}

func (s *Server) handleQRFormats(w http.ResponseWriter, r *http.Request) {
	formats := []qrFormatInfo{
		{Format: qr.FormatPNG, MIME: qr.FormatPNG.MIME(), Default: qr.FormatPNG == qr.DefaultFormat},
		{Format: qr.FormatJPEG, MIME: qr.FormatJPEG.MIME(), Default: qr.FormatJPEG == qr.DefaultFormat},
		{Format: qr.FormatSVG, MIME: qr.FormatSVG.MIME(), Default: qr.FormatSVG == qr.DefaultFormat},
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": formats})
}

type qrExpireBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleQRExpire(w http.ResponseWriter, r *http.Request) {
	var body qrExpireBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Reason == "" {
		body.Reason = "manual"
	}
	existed := s.session.ExpireQR(body.Reason)
	writeJSON(w, http.StatusOK, map[string]bool{"expired": existed})
}

type qrFormatBody struct {
	Format string `json:"format"`
}

func (s *Server) handleQRFormat(w http.ResponseWriter, r *http.Request) {
	var body qrFormatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	format, err := qr.ParseFormat(body.Format)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if _, err := s.session.ChangeQRFormat(format); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.QRStatus())
}

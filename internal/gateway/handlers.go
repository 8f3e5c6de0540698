package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sautisahihi/sauticore/internal/chat"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/pipeline"
	"github.com/sautisahihi/sauticore/internal/prefs"
	"github.com/sautisahihi/sauticore/internal/provider"
)

type resolveRequest struct {
	Capability string `json:"capability"`
	Subject    string `json:"subject"`
	Language   string `json:"language"`
	Image      string `json:"image,omitempty"` // base64, fact-check only
	Voice      string `json:"voice,omitempty"`
}

// handleResolve runs one pipeline resolution. Fact-check requests come back
// as structured verdicts; everything else returns the raw Resolution.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	lang := provider.Language(req.Language)
	if !lang.Valid() {
		lang = provider.LangEnglish
	}

	switch req.Capability {
	case pipeline.CapFactCheck:
		var image []byte
		if req.Image != "" {
			decoded, err := base64.StdEncoding.DecodeString(req.Image)
			if err != nil {
				http.Error(w, "image is not valid base64", http.StatusBadRequest)
				return
			}
			image = decoded
		}
		writeJSON(w, s.svc.FactCheck(r.Context(), req.Subject, image, lang))

	case pipeline.CapNews:
		res := s.svc.NewsBriefing(r.Context(), lang)
		s.publishResolution(req.Capability, res)
		writeJSON(w, res)

	case pipeline.CapImage:
		if req.Subject == "" {
			http.Error(w, "subject is required", http.StatusBadRequest)
			return
		}
		res := s.svc.TopicImage(r.Context(), req.Subject)
		s.publishResolution(req.Capability, res)
		writeJSON(w, res)

	case pipeline.CapAudio:
		result := s.svc.Speak(r.Context(), req.Subject, req.Voice)
		if result == nil {
			writeJSON(w, map[string]any{"available": false})
			return
		}
		writeJSON(w, map[string]any{
			"available":  true,
			"sampleRate": result.SampleRate,
			"wav":        base64.StdEncoding.EncodeToString(result.WAV),
		})

	case pipeline.CapTranslate:
		writeJSON(w, map[string]string{"text": s.svc.Translate(r.Context(), req.Subject)})

	case pipeline.CapTone:
		writeJSON(w, map[string]any{"scores": s.svc.AnalyzeTone(r.Context(), req.Subject)})

	default:
		http.Error(w, "unknown capability", http.StatusBadRequest)
	}
}

type chatRequest struct {
	Session  string `json:"session"`
	Message  string `json:"message"`
	Language string `json:"language"`
}

type chatResponse struct {
	Turn     *chat.Turn `json:"turn"`
	Degraded bool       `json:"degraded,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Session == "" || req.Message == "" {
		http.Error(w, "session and message are required", http.StatusBadRequest)
		return
	}

	lang := provider.Language(req.Language)
	if !lang.Valid() {
		lang = s.prefs.Language(r.Context())
	}

	sess, err := s.session(r.Context(), req.Session, lang)
	if err != nil {
		L_error("gateway: session init failed", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	turn, err := sess.Send(r.Context(), req.Message)
	switch {
	case errors.Is(err, chat.ErrBusy):
		http.Error(w, "a reply is already in progress", http.StatusConflict)
	case errors.Is(err, chat.ErrConnection):
		// The apology turn still renders; the flag drives a status banner.
		writeJSON(w, chatResponse{Turn: turn, Degraded: true})
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, chatResponse{Turn: turn})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"online":    s.gate.IsOnline(),
		"providers": s.orchestrator.ProviderStatus(),
	})
}

type prefsPayload struct {
	Language string          `json:"language"`
	DarkMode bool            `json:"darkMode"`
	Poll     prefs.PollTally `json:"poll"`
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, prefsPayload{
			Language: string(s.prefs.Language(r.Context())),
			DarkMode: s.prefs.DarkMode(r.Context()),
			Poll:     s.prefs.Poll(r.Context()),
		})

	case http.MethodPut:
		var p struct {
			Language *string `json:"language"`
			DarkMode *bool   `json:"darkMode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if p.Language != nil {
			if err := s.prefs.SetLanguage(r.Context(), provider.Language(*p.Language)); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if p.DarkMode != nil {
			if err := s.prefs.SetDarkMode(r.Context(), *p.DarkMode); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		s.handlePrefsGet(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePrefsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, prefsPayload{
		Language: string(s.prefs.Language(r.Context())),
		DarkMode: s.prefs.DarkMode(r.Context()),
		Poll:     s.prefs.Poll(r.Context()),
	})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Coalition string `json:"coalition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	tally, err := s.prefs.Vote(r.Context(), prefs.Coalition(req.Coalition))
	if errors.Is(err, prefs.ErrAlreadyVoted) {
		http.Error(w, "already voted", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, tally)
}

func (s *Server) publishResolution(capability string, res pipeline.Resolution) {
	s.hub.broadcast(event{
		Type:       "resolution",
		Capability: capability,
		Source:     string(res.Source),
		Degraded:   res.Degraded,
		Reason:     res.Reason,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_warn("gateway: response encode failed", "error", err)
	}
}

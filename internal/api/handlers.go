package api

import (
	"net/http"

	"crosswatch/internal/services"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Health.Healthz(r.Context())
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"}, err)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Health.Readyz(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) systemStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.System.Status(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var p services.LoginPayload
	if err := decode(r, &p); err != nil {
		s.fail(r.Context(), w, &services.BadRequestError{Message: "invalid login payload"})
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), &p)
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Auth.Status(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sources.List(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) startSource(w http.ResponseWriter, r *http.Request) {
	var p services.StartPayload
	if err := decode(r, &p); err != nil {
		s.fail(r.Context(), w, &services.BadRequestError{Message: "invalid source payload"})
		return
	}
	res, err := s.svc.Sources.Start(r.Context(), &p)
	s.respond(w, r, http.StatusCreated, res, err)
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sources.Get(r.Context(), s.sourceID(r))
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) stopSource(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Sources.Stop(r.Context(), s.sourceID(r))
	s.respond(w, r, http.StatusNoContent, nil, err)
}

func (s *Server) resetSource(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sources.Reset(r.Context(), s.sourceID(r))
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) sourceStats(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sources.Stats(r.Context(), s.sourceID(r))
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) sourceViolations(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sources.Violations(r.Context(), s.sourceID(r))
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) sourceFaces(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sources.Faces(r.Context(), s.sourceID(r))
	s.respond(w, r, http.StatusOK, res, err)
}

// snapshot hands over to the JPEG handler with the path value set
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	r.SetPathValue("id", s.sourceID(r))
	s.streams.Snapshot.ServeHTTP(w, r)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	res, err := s.svc.Events.Sessions(r.Context(), q)
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) listCrossings(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	res, err := s.svc.Events.Crossings(r.Context(), q)
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	res, err := s.svc.Events.Alerts(r.Context(), q)
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) listRecognitions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	res, err := s.svc.Events.Recognitions(r.Context(), q)
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) getDetectionConfig(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Config.GetDetection(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) getNotifications(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Config.Get(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) updateNotifications(w http.ResponseWriter, r *http.Request) {
	var p services.NotificationUpdate
	if err := decode(r, &p); err != nil {
		s.fail(r.Context(), w, &services.BadRequestError{Message: "invalid notification payload"})
		return
	}
	res, err := s.svc.Config.Update(r.Context(), &p)
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) testNotification(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Config.TestNotification(r.Context())
	s.respond(w, r, http.StatusOK, res, err)
}

func (s *Server) sourceID(r *http.Request) string {
	return s.mux.Vars(r)["id"]
}

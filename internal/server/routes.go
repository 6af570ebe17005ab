package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/atlas/internal/api"
	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/lazypower/atlas/internal/store"
	"github.com/lazypower/atlas/internal/transfer"
)

// maxImportBytes caps the size of an uploaded export document.
var maxImportBytes int64 = 32 << 20

// pathID parses the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.eng.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Dashboard{
		DueReviews:     d.DueReviews,
		AttemptsLast7:  d.AttemptsLast7,
		AttemptsLast30: d.AttemptsLast30,
		RecentAttempts: api.NewAttempts(d.RecentAttempts),
	})
}

// problemFilter reads the list filters from the query string. Malformed
// difficulty bounds are ignored.
func problemFilter(r *http.Request) store.ProblemFilter {
	q := r.URL.Query()
	var f store.ProblemFilter
	for _, t := range q["topic"] {
		for _, part := range strings.Split(t, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				f.Topics = append(f.Topics, part)
			}
		}
	}
	if v, err := strconv.Atoi(q.Get("difficulty_min")); err == nil {
		f.DifficultyMin = v
	}
	if v, err := strconv.Atoi(q.Get("difficulty_max")); err == nil {
		f.DifficultyMax = v
	}
	f.Tag = strings.TrimSpace(q.Get("tags"))
	f.Source = strings.TrimSpace(q.Get("source"))
	return f
}

func (s *Server) handleListProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := s.db.ListProblems(r.Context(), problemFilter(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]api.Problem, 0, len(problems))
	for i := range problems {
		out = append(out, api.NewProblem(&problems[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"problems": out,
		"count":    len(out),
	})
}

func (s *Server) handleCreateProblem(w http.ResponseWriter, r *http.Request) {
	var in engine.ProblemInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := s.eng.CreateProblem(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.NewProblem(p))
}

func (s *Server) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.db.GetProblem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p == nil {
		writeErrorMessage(w, http.StatusNotFound, "problem not found")
		return
	}
	attempts, err := s.db.ListAttempts(r.Context(), id, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ProblemDetail{
		Problem:  api.NewProblem(p),
		Attempts: api.NewAttempts(attempts),
	})
}

func (s *Server) handleUpdateProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in engine.ProblemInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := s.eng.UpdateProblem(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewProblem(p))
}

func (s *Server) handleDeleteProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteProblem(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListProblemAttempts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	attempts, err := s.db.ListAttempts(r.Context(), id, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": api.NewAttempts(attempts)})
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.eng.StartAttempt(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.NewAttempt(a))
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	problemID, _ := strconv.ParseInt(q.Get("problem_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 0 {
		limit = 0
	}
	attempts, err := s.db.ListAttempts(r.Context(), problemID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": api.NewAttempts(attempts)})
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.db.GetAttempt(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if a == nil {
		writeErrorMessage(w, http.StatusNotFound, "attempt not found")
		return
	}
	writeJSON(w, http.StatusOK, api.NewAttempt(a))
}

func (s *Server) handleFinishAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in engine.AttemptInput
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := s.eng.FinishAttempt(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewAttempt(a))
}

func (s *Server) handleRecordMistake(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in engine.MistakeInput
	if !decodeBody(w, r, &in) {
		return
	}
	m, item, err := s.eng.RecordMistake(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"mistake": api.NewMistake(m),
		"review":  api.NewReviewItem(item, s.eng.Today()),
	})
}

func (s *Server) handleListAttemptMistakes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.listMistakes(w, r, id)
}

func (s *Server) handleListMistakes(w http.ResponseWriter, r *http.Request) {
	s.listMistakes(w, r, 0)
}

func (s *Server) listMistakes(w http.ResponseWriter, r *http.Request, attemptID int64) {
	mistakes, err := s.db.ListMistakes(r.Context(), attemptID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]api.Mistake, 0, len(mistakes))
	for i := range mistakes {
		out = append(out, api.NewMistake(&mistakes[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"mistakes": out})
}

func (s *Server) handleListMistakeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.db.ListMistakeTypes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]api.MistakeType, 0, len(types))
	for _, mt := range types {
		out = append(out, api.MistakeType{ID: mt.ID, Name: mt.Name, Description: mt.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"mistake_types": out})
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.eng.Queue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]api.ReviewItem, 0, len(q.Items))
	for i := range q.Items {
		items = append(items, api.NewReviewItem(&q.Items[i], q.Today))
	}
	writeJSON(w, http.StatusOK, api.Queue{
		Today: q.Today.Format(api.DateLayout),
		Count: q.Count,
		Items: items,
	})
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.db.GetReviewItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if item == nil {
		writeErrorMessage(w, http.StatusNotFound, "review item not found")
		return
	}
	writeJSON(w, http.StatusOK, api.NewReviewItem(item, s.eng.Today()))
}

func (s *Server) handleGradeReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Rating json.RawMessage `json:"rating"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var rating scheduler.Rating
	if len(req.Rating) == 0 || rating.UnmarshalJSON(req.Rating) != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid rating")
		return
	}

	res, err := s.eng.GradeReview(r.Context(), id, rating)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.GradeResult{
		Item: api.NewReviewItem(&res.Item, s.eng.Today()),
		Log:  api.NewReviewLog(&res.Log),
	})
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteReviewItem(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReviewHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.db.GetReviewItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if item == nil {
		writeErrorMessage(w, http.StatusNotFound, "review item not found")
		return
	}
	logs, err := s.db.ListReviewLogs(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]api.ReviewLog, 0, len(logs))
	for i := range logs {
		out = append(out, api.NewReviewLog(&logs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := transfer.Export(r.Context(), s.db, s.eng.Clock())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, transfer.Filename))
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		s.log.Error("write export", "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "import too large")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "read import body")
		return
	}
	counts, err := transfer.Import(r.Context(), s.db, data, s.eng.Clock())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("import complete", "problems", counts.Problems, "attempts", counts.Attempts,
		"mistakes", counts.Mistakes, "reviews", counts.Reviews, "skipped", counts.Skipped)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "imported",
		"imported": counts,
	})
}

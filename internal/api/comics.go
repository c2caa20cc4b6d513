package api

import (
	"net/http"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// SearchableComic is one entry of the search feed.
type SearchableComic struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
	URL   string  `json:"url"`
	Date  *string `json:"date"`
}

func (s *Server) searchableComics(w http.ResponseWriter, r *http.Request) {
	issues, err := s.store.All(r.Context())
	if err != nil {
		s.logger.Error("list comics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]SearchableComic, 0, len(issues))
	for _, issue := range issues {
		entry := SearchableComic{
			ID:    issue.ID,
			Title: issue.Title,
			Text:  issue.SearchableText(),
			URL:   issue.URL,
		}
		if issue.PublicationDate != nil {
			date := issue.PublicationDate.Format(dateLayout)
			entry.Date = &date
		}
		out = append(out, entry)
	}
	s.logger.Info("returning comics for search", zap.Int("count", len(out)))
	writeJSON(w, http.StatusOK, out)
}

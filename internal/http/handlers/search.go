package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/http/response"
	"github.com/yungbote/imagerag/internal/modules/assets"
)

type matchView struct {
	ID           string  `json:"id"`
	FileLocator  string  `json:"file_locator"`
	FileName     string  `json:"file_name,omitempty"`
	Caption      string  `json:"caption"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank,omitempty"`
	LowRelevance bool    `json:"low_relevance"`
}

func viewOf(m types.QueryMatch) matchView {
	return matchView{
		ID:           m.ID,
		FileLocator:  m.FileLocator,
		FileName:     m.FileName,
		Caption:      m.Caption,
		Score:        m.Score,
		Rank:         m.Rank,
		LowRelevance: m.Rank > 0 && m.LowRelevance(),
	}
}

func viewsOf(ms []types.QueryMatch) []matchView {
	out := make([]matchView, 0, len(ms))
	for _, m := range ms {
		out = append(out, viewOf(m))
	}
	return out
}

// Search embeds q and returns the nearest images. An embedding outage yields an empty,
// degraded result rather than an error.
func (h *AssetHandler) Search(c *gin.Context) {
	topK, err := parseTopK(c.Query("top_k"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	var filter assets.Filter
	if name := strings.TrimSpace(c.Query("file_name")); name != "" {
		filter.FileName = name
	}
	if mt := strings.TrimSpace(c.Query("mime_type")); mt != "" {
		filter.MimeTypes = strings.Split(mt, ",")
	}
	out, err := h.svc.RetrieveWhere(c.Request.Context(), c.Query("q"), topK, filter)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"matches": viewsOf(out.Matches), "degraded": out.Degraded})
}

type chatRequest struct {
	Question string `json:"question"`
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
}

func (h *AssetHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	out, err := h.svc.Ask(c.Request.Context(), assets.AskInput{
		Question: req.Question,
		Query:    req.Query,
		TopK:     req.TopK,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"answer": out.Answer, "matches": viewsOf(out.Matches)})
}

func (h *AssetHandler) IndexStats(c *gin.Context) {
	st, err := h.svc.IndexStats(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}

// parseTopK leaves range checks to retrieval so the same rule applies everywhere.
func parseTopK(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSearchK, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("top_k must be an integer")
	}
	return n, nil
}

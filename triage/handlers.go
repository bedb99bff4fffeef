package triage

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/engine"
	"github.com/Agathx/climact/moderation/itemstore"
)

type SubmitRequest struct {
	Kind      string `json:"kind"`
	AuthorDid string `json:"authorDid,omitempty"`
	Content   string `json:"content"`
	Category  string `json:"category,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

type SubmitResponse struct {
	ID             string   `json:"id,omitempty"`
	Kind           string   `json:"kind"`
	Status         string   `json:"status"`
	Score          *float64 `json:"score,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	// only ever returned here, at submission time, for anonymous reports
	ProtocolToken string `json:"protocolToken,omitempty"`
}

func (srv *Server) HandleSubmit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}

	item, err := srv.eng.Submit(c.Request().Context(), engine.SubmitParams{
		Kind:      req.Kind,
		AuthorDID: req.AuthorDid,
		Content:   req.Content,
		Category:  req.Category,
		Severity:  req.Severity,
	})
	if err != nil {
		return err
	}

	resp := SubmitResponse{
		ID:            item.ID,
		Kind:          item.Kind,
		Status:        item.Status,
		ProtocolToken: item.ProtocolToken,
	}
	if item.Kind == itemstore.KindAnonymousReport {
		// the token is the anonymous submitter's only handle
		resp.ID = ""
	}
	if item.Scoring != nil {
		score := item.Scoring.Score
		resp.Score = &score
		resp.Recommendation = item.Scoring.Recommendation
	}
	return c.JSON(201, resp)
}

func (srv *Server) HandleGetStatus(c echo.Context) error {
	view, err := srv.eng.LookupStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(200, view)
}

func (srv *Server) HandleAnonymousStatus(c echo.Context) error {
	view, err := srv.eng.LookupByToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(200, view)
}

type AuditEntryView struct {
	Source     string    `json:"source"`
	Decision   string    `json:"decision"`
	Confidence *float64  `json:"confidence,omitempty"`
	Reasons    []string  `json:"reasons,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func auditView(entries []*auditstore.Entry) []AuditEntryView {
	out := make([]AuditEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryView{
			Source:     e.Source,
			Decision:   e.Decision,
			Confidence: e.Confidence,
			Reasons:    e.Reasons,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

func (srv *Server) HandleGetAudit(c echo.Context) error {
	entries, err := srv.eng.GetAuditTrail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(200, auditView(entries))
}

func (srv *Server) HandleRescore(c echo.Context) error {
	itemID := c.Param("id")
	if err := srv.eng.ScoreItem(c.Request().Context(), itemID); err != nil {
		return err
	}
	view, err := srv.eng.LookupStatus(c.Request().Context(), itemID)
	if err != nil {
		return err
	}
	return c.JSON(200, view)
}

type VoteRequest struct {
	VoterDid  string `json:"voterDid"`
	Direction string `json:"direction"`
}

type ConsensusView struct {
	Status      string `json:"status"`
	Upvotes     int    `json:"upvotes"`
	Downvotes   int    `json:"downvotes"`
	ReportCount int    `json:"reportCount"`
}

func consensusView(item *itemstore.Item) ConsensusView {
	view := ConsensusView{Status: item.Status}
	if item.Consensus != nil {
		view.Upvotes = item.Consensus.Upvotes
		view.Downvotes = item.Consensus.Downvotes
		view.ReportCount = item.Consensus.ReportCount
	}
	return view
}

func (srv *Server) HandleCastVote(c echo.Context) error {
	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	item, err := srv.eng.CastVote(c.Request().Context(), c.Param("id"), req.VoterDid, req.Direction)
	if err != nil {
		return err
	}
	return c.JSON(200, consensusView(item))
}

type ReportRequest struct {
	ReporterDid string `json:"reporterDid"`
}

func (srv *Server) HandleCastReport(c echo.Context) error {
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	item, err := srv.eng.CastReport(c.Request().Context(), c.Param("id"), req.ReporterDid)
	if err != nil {
		return err
	}
	return c.JSON(200, consensusView(item))
}

type DecisionRequest struct {
	ReviewerDid string `json:"reviewerDid"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
}

func (srv *Server) HandleAuthorityDecide(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	item, err := srv.eng.AuthorityDecide(c.Request().Context(), c.Param("id"), req.ReviewerDid, req.Decision, req.Reason)
	if err != nil {
		return err
	}
	view, err := srv.eng.LookupStatus(c.Request().Context(), item.ID)
	if err != nil {
		return err
	}
	return c.JSON(200, view)
}

func (srv *Server) HandleReviewQueue(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return echo.NewHTTPError(400, "invalid limit")
		}
		limit = parsed
	}
	items, err := srv.eng.ListPendingReview(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	type queueEntry struct {
		ID        string    `json:"id"`
		Kind      string    `json:"kind"`
		Category  string    `json:"category,omitempty"`
		Severity  string    `json:"severity,omitempty"`
		Content   string    `json:"content"`
		Score     *float64  `json:"score,omitempty"`
		Upvotes   int       `json:"upvotes"`
		Downvotes int       `json:"downvotes"`
		CreatedAt time.Time `json:"createdAt"`
	}
	out := make([]queueEntry, 0, len(items))
	for _, item := range items {
		entry := queueEntry{
			ID:        item.ID,
			Kind:      item.Kind,
			Category:  item.Category,
			Severity:  item.Severity,
			Content:   item.Content,
			CreatedAt: item.CreatedAt,
		}
		if item.Scoring != nil {
			score := item.Scoring.Score
			entry.Score = &score
		}
		if item.Consensus != nil {
			entry.Upvotes = item.Consensus.Upvotes
			entry.Downvotes = item.Consensus.Downvotes
		}
		out = append(out, entry)
	}
	return c.JSON(200, out)
}

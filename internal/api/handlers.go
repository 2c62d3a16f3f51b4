package api

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/constants"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/internal/statetransition"
	"github.com/eigerco/attestd/internal/store"
)

type SubmitEvidenceRequest struct {
	// Account is the hex ed25519 public key of the submitter.
	Account string `json:"account"`
	// Signature is the hex signature of SignatureContextEvidence ++ evidence.
	Signature string `json:"signature"`
	Evidence  []byte `json:"evidence" binding:"required"`
}

type SubmitEvidenceResponse struct {
	Account         crypto.AccountId `json:"account"`
	EvidenceID      string           `json:"evidence_id"`
	ScheduledHeight uint64           `json:"scheduled_height"`
}

type RegisterVerifierKeyRequest struct {
	Key crypto.VerifierKey `json:"key" binding:"required"`
}

type ReportJSON struct {
	ScheduledHeight uint64             `json:"scheduled_height"`
	Message         string             `json:"message"`
	Submitter       crypto.AccountId   `json:"submitter"`
	Verifier        crypto.VerifierKey `json:"verifier"`
}

type SubmitResultRequest struct {
	Report    ReportJSON              `json:"report"`
	Signature crypto.Ed25519Signature `json:"signature" binding:"required"`
}

type QueueEntryJSON struct {
	ScheduledHeight uint64           `json:"scheduled_height"`
	Submitter       crypto.AccountId `json:"submitter"`
	Evidence        []byte           `json:"evidence"`
}

type StatusResponse struct {
	Height    uint64 `json:"height"`
	Head      string `json:"head"`
	PoolSize  int    `json:"pool_size"`
	Validator bool   `json:"validator"`
	Author    bool   `json:"author"`
}

func toReportJSON(r attestation.Report) ReportJSON {
	return ReportJSON{
		ScheduledHeight: uint64(r.ScheduledHeight),
		Message:         string(r.Message),
		Submitter:       r.Submitter,
		Verifier:        r.Verifier,
	}
}

func (r ReportJSON) report() attestation.Report {
	return attestation.Report{
		ScheduledHeight: block.Height(r.ScheduledHeight),
		Message:         []byte(r.Message),
		Submitter:       r.Submitter,
		Verifier:        r.Verifier,
	}
}

// EvidenceSigningPayload is what an account signs to submit evidence.
func EvidenceSigningPayload(evidence []byte) []byte {
	return append([]byte(constants.SignatureContextEvidence), evidence...)
}

// authenticate resolves the signed origin of a submission, or None.
func authenticate(req SubmitEvidenceRequest) statetransition.Origin {
	account, err := crypto.ParseAccountId(req.Account)
	if err != nil {
		return statetransition.None()
	}
	sig, err := crypto.ParseSignature(req.Signature)
	if err != nil {
		return statetransition.None()
	}
	if !ed25519.Verify(account.PublicKey(), EvidenceSigningPayload(req.Evidence), sig[:]) {
		return statetransition.None()
	}
	return statetransition.Signed(account)
}

// maxEvidenceBody is the largest request body that can still carry
// MaxEvidenceSize bytes of base64 evidence plus the account and signature.
var maxEvidenceBody = int64(base64.StdEncoding.EncodedLen(constants.MaxEvidenceSize)) + 4096

func (s *Server) handleSubmitEvidence(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEvidenceBody)

	var req SubmitEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorCode(c, http.StatusRequestEntityTooLarge, "EVIDENCE_TOO_LARGE", "request body exceeds maximum size")
			return
		}
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if len(req.Evidence) > constants.MaxEvidenceSize {
		writeErrorCode(c, http.StatusRequestEntityTooLarge, "EVIDENCE_TOO_LARGE", "evidence exceeds maximum size")
		return
	}

	ev, err := s.node.Runtime().SubmitEvidence(authenticate(req), req.Evidence)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SubmitEvidenceResponse{
		Account:         ev.Account,
		EvidenceID:      ev.EvidenceID.String(),
		ScheduledHeight: uint64(ev.ScheduledHeight),
	})
}

func (s *Server) handleRegisterVerifierKey(c *gin.Context) {
	origin := statetransition.None()
	if s.isAdmin(c.GetHeader("X-Admin-Key")) {
		origin = statetransition.Root()
	}
	var req RegisterVerifierKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := s.node.Runtime().RegisterVerifierKey(origin, req.Key); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": req.Key})
}

func (s *Server) isAdmin(key string) bool {
	if s.cfg.AdminKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) == 1
}

func (s *Server) handleSubmitResult(c *gin.Context) {
	var req SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	candidate := attestation.CandidateResult{Report: req.Report.report(), Signature: req.Signature}
	if err := s.node.SubmitCandidate(c.Request.Context(), candidate); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"hash": candidate.Hash().String()})
}

func (s *Server) handleListResults(c *gin.Context) {
	account, err := crypto.ParseAccountId(c.Param("account"))
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ACCOUNT", err.Error())
		return
	}
	reports, err := s.node.Runtime().ResultsFor(account)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ReportJSON, 0, len(reports))
	for _, r := range reports {
		out = append(out, toReportJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// handleListQueue lists the entries at ?height=, or every entry that can
// still be resolved or is yet to come due when height is omitted.
func (s *Server) handleListQueue(c *gin.Context) {
	cfg := s.node.Runtime().Config()
	head := s.node.Head().Height
	from, to := head.SaturatingSub(cfg.EvidenceLifetime), head+block.Height(cfg.VerifyDelay)
	if raw := c.Query("height"); raw != "" {
		h, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_HEIGHT", "height must be an unsigned integer")
			return
		}
		from, to = block.Height(h), block.Height(h)
	}

	entries, err := s.node.Runtime().PendingEntries(from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": toQueueJSON(entries)})
}

func toQueueJSON(entries []store.QueueEntry) []QueueEntryJSON {
	out := make([]QueueEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, QueueEntryJSON{
			ScheduledHeight: uint64(e.ScheduledHeight),
			Submitter:       e.Submitter,
			Evidence:        e.Evidence,
		})
	}
	return out
}

func (s *Server) handleListVerifierKeys(c *gin.Context) {
	keys, err := s.node.Runtime().VerifierKeys()
	if err != nil {
		writeError(c, err)
		return
	}
	if keys == nil {
		keys = []crypto.VerifierKey{}
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (s *Server) handleStatus(c *gin.Context) {
	head := s.node.Head()
	cfg := s.node.Config()
	c.JSON(http.StatusOK, StatusResponse{
		Height:    uint64(head.Height),
		Head:      head.Hash().String(),
		PoolSize:  s.node.Pool().Len(),
		Validator: cfg.Validator,
		Author:    cfg.Author,
	})
}

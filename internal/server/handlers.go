package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openvaults/vaultdash/internal/quote"
	"github.com/openvaults/vaultdash/internal/vault"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type holdingsResponse struct {
	Holdings    any       `json:"holdings"`
	LastRefresh time.Time `json:"lastRefresh"`
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	rows := s.vault.Holdings()
	refreshedAt := s.vault.LastRefresh()
	s.metrics.ObserveSnapshot(len(rows), refreshedAt)
	s.writeJSON(w, http.StatusOK, holdingsResponse{
		Holdings:    rows,
		LastRefresh: refreshedAt,
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"assets": s.vault.Assets()})
}

type quoteResponse struct {
	Quote  *quote.Response `json:"quote"`
	Cached bool            `json:"cached"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	params, err := quoteParamsFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, cached, err := s.vault.Quote(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteResponse{Quote: resp, Cached: cached})
}

type txResponse struct {
	Signature string `json:"signature"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var params quote.Params
	if err := decodeBody(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}

	sig, err := s.vault.Swap(r.Context(), params)
	if err != nil {
		s.metrics.swapsTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.swapsTotal.WithLabelValues("ok").Inc()
	s.writeJSON(w, http.StatusOK, txResponse{Signature: sig})
}

type transferRequest struct {
	Mint   string  `json:"mint"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.vault.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.vault.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, submit func(ctx context.Context, mint string, amount float64) (string, error)) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sig, err := submit(r.Context(), req.Mint, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txResponse{Signature: sig})
}

func (s *Server) handleFormLoad(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fields, err := s.forms.Load(r.Context(), name)
	if err != nil {
		s.writeError(w, r, badRequest("forms", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"form": name, "fields": fields})
}

func (s *Server) handleFormSave(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.forms.Save(r.Context(), name, fields); err != nil {
		s.writeError(w, r, badRequest("forms", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"form": name})
}

func (s *Server) handleFormReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.forms.Reset(r.Context(), name); err != nil {
		s.writeError(w, r, badRequest("forms", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request) {
	list, err := s.integrations.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"integrations": list})
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleIntegrationToggle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	txID, err := s.integrations.Toggle(r.Context(), key, req.Enabled)
	if err != nil {
		s.writeError(w, r, badRequest("integrations", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, txResponse{Signature: txID})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("request", "invalid request body: "+err.Error())
	}
	return nil
}

func badRequest(op, msg string) error {
	return &vault.UserError{Op: op, Message: msg}
}

func quoteParamsFromQuery(r *http.Request) (quote.Params, error) {
	q := r.URL.Query()
	params := quote.Params{
		InputMint:  q.Get("inputMint"),
		OutputMint: q.Get("outputMint"),
		SwapMode:   quote.ExactIn,
	}

	if raw := q.Get("amount"); raw != "" {
		amount, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return params, badRequest("quote", "amount must be a positive integer")
		}
		params.Amount = amount
	}
	if raw := q.Get("swapMode"); raw != "" {
		params.SwapMode = quote.SwapMode(raw)
	}
	if raw := q.Get("slippageBps"); raw != "" {
		bps, err := strconv.Atoi(raw)
		if err != nil || bps < 0 {
			return params, badRequest("quote", "slippageBps must be a non-negative integer")
		}
		params.SlippageBps = bps
	}
	if raw := q.Get("dexes"); raw != "" {
		params.Dexes = strings.Split(raw, ",")
	}
	if raw := q.Get("maxAccounts"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return params, badRequest("quote", "maxAccounts must be a non-negative integer")
		}
		params.MaxAccounts = n
	}
	params.OnlyDirectRoutes = q.Get("onlyDirectRoutes") == "true"
	params.AsLegacyTransaction = q.Get("asLegacyTransaction") == "true"

	return params, nil
}

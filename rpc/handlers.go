package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"qstake/native/accrual"
)

type epochPosition struct {
	Index uint64 `json:"index"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

type epochRecordResponse struct {
	Index              uint64 `json:"index"`
	AccRewardPerShare  string `json:"accRewardPerShare"`
	LastUpdateTs       uint64 `json:"lastUpdateTimestamp"`
	TotalRewardAccrued string `json:"totalRewardAccrued"`
	TotalShares        string `json:"totalShares"`
	TotalStaked        string `json:"totalStaked"`
	SharesGenerated    string `json:"sharesGenerated"`
}

type accountRecordResponse struct {
	Account       string `json:"account"`
	Index         uint64 `json:"index"`
	Shares        string `json:"shares"`
	RewardAccrued string `json:"rewardAccrued"`
	RewardDebt    string `json:"rewardDebt"`
	LastUpdateTs  uint64 `json:"lastUpdateTimestamp"`
}

type sidePoolResponse struct {
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	Claimed     string `json:"claimedAmount"`
	OpenedAt    uint64 `json:"distributionTimestamp"`
	ClaimWindow uint64 `json:"claimWindowSeconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRewardRate(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"rewardRate": s.engine.RewardRate().String()})
}

func (s *Server) handleCurrentEpoch(w http.ResponseWriter, _ *http.Request) {
	index, start, end := s.engine.CurrentEpoch(s.now())
	s.writeJSON(w, http.StatusOK, epochPosition{Index: index, Start: start, End: end})
}

func (s *Server) handleEpochAt(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseUint(chi.URLParam(r, "timestamp"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	index, start, end := s.engine.EpochAt(ts)
	s.writeJSON(w, http.StatusOK, epochPosition{Index: index, Start: start, End: end})
}

func (s *Server) handleEpochRecord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil || index > s.engine.Schedule().TerminalIndex() {
		s.writeError(w, http.StatusBadRequest, "invalid epoch index")
		return
	}
	rec, err := s.engine.EpochRecordAt(index)
	if err != nil {
		s.log.Error("read epoch record", "index", index, "error", err)
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, encodeEpochRecord(index, rec))
}

func (s *Server) handleAccountRecord(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil || index > s.engine.Schedule().TerminalIndex() {
		s.writeError(w, http.StatusBadRequest, "invalid epoch index")
		return
	}
	addr := common.HexToAddress(raw)
	rec, err := s.engine.AccountRecordAt(addr, index)
	if err != nil {
		s.log.Error("read account record", "account", addr.Hex(), "index", index, "error", err)
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, accountRecordResponse{
		Account:       addr.Hex(),
		Index:         index,
		Shares:        rec.Shares.String(),
		RewardAccrued: rec.RewardAccrued.String(),
		RewardDebt:    rec.RewardDebt.String(),
		LastUpdateTs:  rec.LastUpdateTs,
	})
}

func (s *Server) handleSidePool(w http.ResponseWriter, _ *http.Request) {
	dist, err := s.pool.Current()
	if err != nil {
		s.log.Error("read side pool", "error", err)
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	status, err := s.pool.Status(s.now())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, sidePoolResponse{
		Status:      status.String(),
		Amount:      dist.Amount.String(),
		Claimed:     dist.Claimed.String(),
		OpenedAt:    dist.OpenedAt,
		ClaimWindow: s.pool.ClaimWindow(),
	})
}

func encodeEpochRecord(index uint64, rec *accrual.EpochRecord) epochRecordResponse {
	return epochRecordResponse{
		Index:              index,
		AccRewardPerShare:  rec.AccRewardPerShare.String(),
		LastUpdateTs:       rec.LastUpdateTs,
		TotalRewardAccrued: rec.TotalRewardAccrued.String(),
		TotalShares:        rec.TotalShares.String(),
		TotalStaked:        rec.TotalStaked.String(),
		SharesGenerated:    rec.SharesGenerated.String(),
	}
}

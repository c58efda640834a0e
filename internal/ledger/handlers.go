package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Router mounts the Ledger's wallet/device HTTP API onto r.
func (l *Ledger) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/wallets/", l.handleCreateWallet)
	r.Get("/wallets/{user_id}", l.handleGetWallet)
	r.Get("/wallets/{user_id}/history", l.handleWalletHistory)
	r.Post("/transactions/task-reward", l.handleTaskReward)
	r.Post("/transactions/p2p-transfer", l.handleP2PTransfer)
	r.Get("/transactions/transfer-fee", l.handleTransferFee)
	r.Get("/transactions/{uuid}", l.handleGetTransaction)
	r.Get("/supply", l.handleSupply)
	r.Post("/demurrage/trigger", l.handleDemurrageTrigger)
	r.Get("/reward-rates", l.handleGetRewardRates)
	r.Put("/reward-rates", l.handleSetRewardRate)
	r.Post("/devices/", l.handleRegisterDevice)
	r.Get("/devices/", l.handleListDevices)
	r.Put("/devices/{id}", l.handleUpdateDevice)
	r.Post("/devices/{id}/heartbeat", l.handleHeartbeat)
	r.Post("/devices/xp-grant", l.handleXPGrant)
	r.Get("/devices/zone-multiplier/{zone}", l.handleZoneMultiplier)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateReference):
		writeError(w, http.StatusBadRequest, "duplicate_reference_id", err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient_funds", err.Error())
	case errors.Is(err, ErrSameWallet), errors.Is(err, ErrNonPositiveAmount):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (l *Ledger) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	wallet, err := l.GetWallet(body.UserID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (l *Ledger) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}
	wallet, err := l.GetWallet(userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (l *Ledger) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := l.History(userID, limit, offset)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (l *Ledger) handleTaskReward(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64  `json:"user_id"`
		TaskID string `json:"task_id"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	txID, err := l.TaskReward(body.UserID, body.TaskID, body.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": txID})
}

func (l *Ledger) handleP2PTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From   int64 `json:"from"`
		To     int64 `json:"to"`
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	transferTxID, feeTxID, fee, err := l.P2PTransfer(body.From, body.To, body.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transfer_transaction_id": transferTxID,
		"fee_transaction_id":      feeTxID,
		"fee":                     fee,
	})
}

func (l *Ledger) handleTransferFee(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"fee": TransferFee(amount)})
}

func (l *Ledger) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	entries, err := l.EntryByTransactionID(uuid)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (l *Ledger) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := l.Supply()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, supply)
}

func (l *Ledger) handleDemurrageTrigger(w http.ResponseWriter, r *http.Request) {
	affected, burned, err := l.RunDemurrage()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wallets_affected": affected, "total_burned": burned})
}

func (l *Ledger) handleGetRewardRates(w http.ResponseWriter, r *http.Request) {
	rates, err := l.RewardRates()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func (l *Ledger) handleSetRewardRate(w http.ResponseWriter, r *http.Request) {
	var rr RewardRate
	if err := json.NewDecoder(r.Body).Decode(&rr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := l.SetRewardRate(rr); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

func (l *Ledger) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var d Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := l.RegisterDevice(d); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (l *Ledger) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := l.ListDevices()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (l *Ledger) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var d Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	d.DeviceID = id
	if err := l.RegisterDevice(d); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (l *Ledger) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txID, err := l.Heartbeat(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reward_transaction_id": txID})
}

func (l *Ledger) handleXPGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Zone string `json:"zone"`
		XP   int64  `json:"xp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := l.GrantDeviceXP(body.Zone, body.XP); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (l *Ledger) handleZoneMultiplier(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	multiplier, err := l.ZoneMultiplier(zone)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"multiplier": multiplier})
}

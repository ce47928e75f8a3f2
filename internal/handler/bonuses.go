package handler

import (
	"net/http"
)

type dailyClaimRequest struct {
	Draw []string `json:"draw" validate:"max=5,dive,max=16"`
}

type redeemReferralRequest struct {
	Code string `json:"code" validate:"required,referral_code"`
}

// ClaimDaily начисляет ежедневный бонус. Тело запроса необязательно.
func (h *Handler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req dailyClaimRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	claim, err := h.service.ClaimDaily(r.Context(), userID, req.Draw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// DailyStatus возвращает состояние серии ежедневных бонусов.
func (h *Handler) DailyStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.service.DailyStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// RestoreStreak восстанавливает прерванную серию за баллы.
func (h *Handler) RestoreStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	restored, err := h.service.RestoreStreak(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, restored)
}

// RedeemReferral привязывает пользователя к владельцу реферального кода.
func (h *Handler) RedeemReferral(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req redeemReferralRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.RedeemReferralCode(r.Context(), userID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ReferralStats возвращает реферальный код пользователя и его статистику.
func (h *Handler) ReferralStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.service.ReferralStats(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ReferralLeaderboard возвращает рейтинг пригласивших.
func (h *Handler) ReferralLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	board, err := h.service.ReferralLeaderboard(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(board) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, board)
}

// VipStatus возвращает VIP-уровень пользователя.
func (h *Handler) VipStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.service.VipStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

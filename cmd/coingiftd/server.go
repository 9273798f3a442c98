package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	coingift "github.com/antonio-ivanovski/coin-gift"
	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxRequestBody bounds incoming JSON bodies.
const maxRequestBody = 1 << 20

type apiServer struct {
	gifts    *coingift.GiftService
	waitlist *coingift.WaitlistService
	cfg      *GiftConfig
}

// newApiServer wires the public API routes.
func newApiServer(cfg *Config, store coingift.Store,
	walletClient wallet.Client,
	monitor *coingift.PaymentMonitor) *http.Server {

	s := &apiServer{
		gifts: coingift.NewGiftService(&coingift.GiftServiceConfig{
			Store:  store,
			Wallet: walletClient,
			Logger: log,
		}),
		waitlist: coingift.NewWaitlistService(
			&coingift.WaitlistServiceConfig{
				Store:  store,
				Wallet: walletClient,
				Logger: log,
			},
		),
		cfg: &cfg.Gifts,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post("/gifts", s.handleCreateGiftBatch)
	router.Get("/gifts/{batchID}", s.handleGetGiftBatch)
	router.Post("/gifts/{giftID}/redeem", s.handleRedeemGift)
	router.Post("/waitlist/signups", s.handleSignup)
	router.Post("/waitlist/donations", s.handleCreateDonation)
	router.Get("/payments/{paymentHash}/status",
		coingift.NewPaymentStatusHandler(&coingift.PaymentStreamConfig{
			Monitor: monitor,
			Logger:  log,
		}))

	address := cfg.Api.Address
	if address == "" {
		address = DefaultApiAddress
	}

	return &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type createGiftBatchRequest struct {
	Count             int    `json:"count"`
	SatsPerGift       int64  `json:"satsPerGift"`
	Title             string `json:"title"`
	Message           string `json:"message"`
	Emoji             string `json:"emoji"`
	NotificationEmail string `json:"notificationEmail"`
}

type createdGiftResponse struct {
	ID           string `json:"id"`
	Invoice      string `json:"invoice"`
	RedeemSecret string `json:"redeemSecret"`
}

type createGiftBatchResponse struct {
	ID    string                `json:"id"`
	Gifts []createdGiftResponse `json:"gifts"`
}

func (s *apiServer) handleCreateGiftBatch(w http.ResponseWriter,
	r *http.Request) {

	var req createGiftBatchRequest
	if !readJSON(w, r, &req) {
		return
	}

	maxBatchSize := s.cfg.MaxBatchSize
	if maxBatchSize == 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if req.Count < 1 || req.Count > maxBatchSize {
		writeBadRequest(w, fmt.Sprintf(
			"count must be between 1 and %d", maxBatchSize,
		))

		return
	}
	if req.SatsPerGift < 1 {
		writeBadRequest(w, "satsPerGift must be positive")

		return
	}

	expiry := s.cfg.Expiry
	if expiry == 0 {
		expiry = DefaultGiftExpiry
	}

	batch, err := s.gifts.CreateGiftBatch(r.Context(),
		coingift.CreateGiftBatchRequest{
			Count:             req.Count,
			SatsPerGift:       req.SatsPerGift,
			Title:             req.Title,
			Message:           req.Message,
			Emoji:             req.Emoji,
			Expiry:            expiry,
			NotificationEmail: req.NotificationEmail,
		})
	if err != nil {
		writeError(w, err)

		return
	}

	resp := createGiftBatchResponse{ID: batch.ID}
	for _, gift := range batch.Gifts {
		resp.Gifts = append(resp.Gifts, createdGiftResponse{
			ID:           gift.ID,
			Invoice:      gift.Invoice,
			RedeemSecret: gift.RedeemSecret,
		})
	}

	writeJSON(w, http.StatusCreated, resp)
}

type giftResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type giftBatchResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Emoji       string         `json:"emoji"`
	SatsPerGift int64          `json:"satsPerGift"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Gifts       []giftResponse `json:"gifts"`
}

// handleGetGiftBatch returns the public view of a batch. Ciphertexts and
// the notification email are never exposed.
func (s *apiServer) handleGetGiftBatch(w http.ResponseWriter,
	r *http.Request) {

	batch, err := s.gifts.GetGiftBatch(
		r.Context(), chi.URLParam(r, "batchID"),
	)
	if err != nil {
		writeError(w, err)

		return
	}

	resp := giftBatchResponse{
		ID:          batch.ID,
		Title:       batch.Title,
		Message:     batch.Message,
		Emoji:       batch.Emoji,
		SatsPerGift: batch.SatsPerGift,
		CreatedAt:   batch.CreatedAt,
		ExpiresAt:   batch.ExpiresAt,
	}
	for _, gift := range batch.Gifts {
		resp.Gifts = append(resp.Gifts, giftResponse{
			ID:     gift.ID,
			Status: string(gift.Status),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type redeemGiftRequest struct {
	RedeemSecret string `json:"redeemSecret"`
}

func (s *apiServer) handleRedeemGift(w http.ResponseWriter,
	r *http.Request) {

	var req redeemGiftRequest
	if !readJSON(w, r, &req) {
		return
	}

	gift, err := s.gifts.RedeemGift(
		r.Context(), chi.URLParam(r, "giftID"), req.RedeemSecret,
	)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, giftResponse{
		ID:     gift.ID,
		Status: string(gift.Status),
	})
}

type signupRequest struct {
	Email              string `json:"email"`
	DonationAmountSats int64  `json:"donationAmountSats"`
}

type donationResponse struct {
	ID         string `json:"id"`
	AmountSats int64  `json:"amountSats"`
	Status     string `json:"status"`
	Invoice    string `json:"invoice"`
}

type signupResponse struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Donation *donationResponse `json:"donation,omitempty"`
}

func (s *apiServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !readJSON(w, r, &req) {
		return
	}

	if req.Email == "" {
		writeBadRequest(w, "email not specified")

		return
	}
	if req.DonationAmountSats != 0 &&
		!validDonationAmount(req.DonationAmountSats) {

		writeBadRequest(w, donationAmountError())

		return
	}

	result, err := s.waitlist.Signup(
		r.Context(), req.Email, req.DonationAmountSats,
	)
	if err != nil {
		writeError(w, err)

		return
	}

	resp := signupResponse{
		ID:    result.Signup.ID,
		Email: result.Signup.Email,
	}
	if result.Donation != nil {
		resp.Donation = &donationResponse{
			ID:         result.Donation.ID,
			AmountSats: result.Donation.AmountSats,
			Status:     string(result.Donation.Status),
			Invoice:    result.Donation.Invoice,
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

type createDonationRequest struct {
	AmountSats int64 `json:"amountSats"`
}

func (s *apiServer) handleCreateDonation(w http.ResponseWriter,
	r *http.Request) {

	var req createDonationRequest
	if !readJSON(w, r, &req) {
		return
	}

	if req.AmountSats == 0 {
		req.AmountSats = coingift.DefaultDonationAmountSats
	}
	if !validDonationAmount(req.AmountSats) {
		writeBadRequest(w, donationAmountError())

		return
	}

	donation, err := s.waitlist.CreateDonation(
		r.Context(), req.AmountSats, "",
	)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, donationResponse{
		ID:         donation.ID,
		AmountSats: donation.AmountSats,
		Status:     string(donation.Status),
		Invoice:    donation.Invoice,
	})
}

func validDonationAmount(amountSats int64) bool {
	return amountSats >= coingift.MinDonationAmountSats &&
		amountSats <= coingift.MaxDonationAmountSats
}

func donationAmountError() string {
	return fmt.Sprintf("amountSats must be between %d and %d",
		coingift.MinDonationAmountSats, coingift.MaxDonationAmountSats)
}

type errorResponse struct {
	Error string `json:"error"`
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid request body")

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorw("Cannot write response", "err", err)
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps service errors onto HTTP status codes. Unrecognized
// errors are logged and reported as opaque internal errors.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, types.ErrBatchNotFound),
		errors.Is(err, types.ErrGiftNotFound):

		status = http.StatusNotFound

	case errors.Is(err, coingift.ErrInvalidRedeemSecret),
		errors.Is(err, coingift.ErrCiphertextInvalid):

		status = http.StatusBadRequest

	case errors.Is(err, types.ErrGiftStatusFinal),
		errors.Is(err, types.ErrDuplicateEmail),
		errors.Is(err, types.ErrDuplicatePaymentHash):

		status = http.StatusConflict

	default:
		log.Errorw("Api request failed", "err", err)

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: "internal error"})

		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

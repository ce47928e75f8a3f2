package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

type authResponse struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

type transactionResponse struct {
	ID                    int64                 `json:"id"`
	Amount                int64                 `json:"amount"`
	BalanceAfter          int64                 `json:"balance_after"`
	Kind                  model.TransactionKind `json:"type"`
	Description           string                `json:"description"`
	RelatedOrderID        *string               `json:"related_order_id,omitempty"`
	RelatedReferralUserID *int64                `json:"related_referral_user_id,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
}

func newTransactionResponses(txs []model.LedgerTransaction) []transactionResponse {
	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, transactionResponse{
			ID:                    tx.ID,
			Amount:                tx.Amount,
			BalanceAfter:          tx.BalanceAfter,
			Kind:                  tx.Kind,
			Description:           tx.Description,
			RelatedOrderID:        tx.RelatedOrderID,
			RelatedReferralUserID: tx.RelatedReferralUserID,
			CreatedAt:             tx.CreatedAt,
		})
	}
	return resp
}

type accessGrantResponse struct {
	ProductID int64     `json:"product_id"`
	OrderID   string    `json:"order_id"`
	GrantedAt time.Time `json:"granted_at"`
}

type orderItemResponse struct {
	ProductID int64       `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Price     model.Money `json:"price"`
}

type orderResponse struct {
	ID          string              `json:"order_id"`
	Status      model.OrderStatus   `json:"status"`
	Subtotal    model.Money         `json:"subtotal"`
	Discount    model.Money         `json:"discount"`
	BonusesUsed int64               `json:"bonuses_used"`
	Total       model.Money         `json:"total"`
	PromoCode   *string             `json:"promo_code,omitempty"`
	PaymentURL  *string             `json:"payment_url,omitempty"`
	Items       []orderItemResponse `json:"items,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
}

func newOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		Status:      o.Status,
		Subtotal:    model.Money(o.SubtotalCents),
		Discount:    model.Money(o.DiscountCents),
		BonusesUsed: o.BonusesUsed,
		Total:       model.Money(o.TotalCents),
		PromoCode:   o.PromoCode,
		PaymentURL:  o.PaymentURL,
		CreatedAt:   o.CreatedAt,
		CompletedAt: o.CompletedAt,
		CancelledAt: o.CancelledAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     model.Money(it.PriceCents),
		})
	}
	return resp
}

type promoResponse struct {
	Code        string             `json:"code"`
	Kind        model.DiscountKind `json:"discount_type"`
	Value       decimal.Decimal    `json:"discount_value"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	MaxUses     *int               `json:"max_uses,omitempty"`
	CurrentUses int                `json:"current_uses"`
	MinPurchase model.Money        `json:"min_purchase"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
}

func newPromoResponse(p *model.PromoCode) promoResponse {
	return promoResponse{
		Code:        p.Code,
		Kind:        p.Kind,
		Value:       p.Value,
		ExpiresAt:   p.ExpiresAt,
		MaxUses:     p.MaxUses,
		CurrentUses: p.CurrentUses,
		MinPurchase: model.Money(p.MinPurchaseCents),
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
	}
}

type productResponse struct {
	ID       int64       `json:"product_id"`
	Title    string      `json:"title"`
	Price    model.Money `json:"price"`
	IsActive bool        `json:"is_active"`
}

type pointsResponse struct {
	UserID     int64 `json:"user_id"`
	NewBalance int64 `json:"new_balance"`
}

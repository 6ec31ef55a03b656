package dto

import "time"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type StartVerificationResponse struct {
	WalletID string `json:"wallet_id"`
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	Index    int    `json:"index"`
	// ExpiresAt is when the pending attempt stops being checked.
	ExpiresAt time.Time `json:"expires_at"`
}

type CheckVerificationResponse struct {
	WalletID             string `json:"wallet_id,omitempty"`
	Status               string `json:"status"`
	Address              string `json:"address,omitempty"`
	Amount               string `json:"amount,omitempty"`
	HasNFT               *bool  `json:"has_nft,omitempty"`
	TimeRemainingSeconds *int   `json:"time_remaining_seconds,omitempty"`
	Complete             bool   `json:"complete"`
	Error                bool   `json:"error,omitempty"`
	Message              string `json:"message,omitempty"`
}

type WalletResponse struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	HasNFT     bool       `json:"has_nft"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type WalletHoldingResponse struct {
	Address string `json:"address"`
	HasNFT  bool   `json:"has_nft"`
	Checked bool   `json:"checked"`
}

type RefreshResponse struct {
	Wallets      []WalletHoldingResponse `json:"wallets"`
	HasAnyNFT    bool                    `json:"has_any_nft"`
	SoldNFTs     []string                `json:"sold_nfts"`
	ChecksFailed bool                    `json:"checks_failed"`
	RoleAction   string                  `json:"role_action"`
	RoleError    string                  `json:"role_error,omitempty"`
}

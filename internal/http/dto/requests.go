package dto

type StartVerificationRequest struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
}

package gateway

import "time"

const statusSuccess = "success"

// Token is a bearer credential issued by the gateway.
type Token struct {
	AccessToken      string
	ExpiresIn        time.Duration
	RefreshToken     string
	RefreshExpiresIn time.Duration
}

// SendRequest is one SMS submission to any number of recipients.
type SendRequest struct {
	SenderID      string
	Message       string
	PhoneNumbers  []string
	TransactionID string
}

// SendResponse stores gateway call metadata for audit and persistence.
type SendResponse struct {
	HTTPStatus int
	Status     string
	Comment    string
	Body       string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Status            string `json:"status"`
	Comment           string `json:"comment"`
	Token             string `json:"token"`
	Expiration        int64  `json:"expiration"`
	RefreshToken      string `json:"refreshToken"`
	RefreshExpiration int64  `json:"refreshExpiration"`
}

type msisdn struct {
	Mobile string `json:"mobile"`
}

type smsRequest struct {
	SourceAddress string   `json:"sourceAddress"`
	Message       string   `json:"message"`
	TransactionID string   `json:"transaction_id"`
	MSISDN        []msisdn `json:"msisdn"`
}

type smsResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	ErrCode string `json:"errCode,omitempty"`
}

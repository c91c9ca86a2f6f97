package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	opRegister     = "register"
	opLogin        = "login"
	opAuthenticate = "authenticate"
)

// Outcome labels.
const (
	outcomeSuccess            = "success"
	outcomeInvalid            = "invalid_input"
	outcomeConflict           = "conflict"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeDisabled           = "disabled"
	outcomeInvalidToken       = "invalid_token"
	outcomeUserGone           = "user_gone"
	outcomeError              = "error"
)

// AuthOperations counts register, login and authenticate attempts by outcome.
var AuthOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Total number of authentication operations by outcome.",
	},
	[]string{"operation", "outcome"},
)

func record(operation, outcome string) {
	AuthOperations.WithLabelValues(operation, outcome).Inc()
}

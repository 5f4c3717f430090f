package config

import (
	"fmt"
	"os"

	"github.com/punchamoorthee/payops/internal/domain"
)

// InvoiceLookup selects which invoice field the gateway order id is matched
// against during reconciliation.
const (
	LookupOrderRef = "order_ref"
	LookupNumber   = "number"
)

type Config struct {
	DBSource      string
	Port          string
	Env           string
	AMQPURL       string
	PollSchedule  string
	InvoiceLookup string
	Flocash       domain.Credentials
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	schedule := os.Getenv("POLL_SCHEDULE")
	if schedule == "" {
		schedule = "@every 10m"
	}

	lookup := os.Getenv("INVOICE_LOOKUP")
	switch lookup {
	case "":
		lookup = LookupOrderRef
	case LookupOrderRef, LookupNumber:
	default:
		return nil, fmt.Errorf("INVOICE_LOOKUP must be %q or %q, got %q", LookupOrderRef, LookupNumber, lookup)
	}

	flocashEnv := os.Getenv("FLOCASH_ENVIRONMENT")
	if flocashEnv == "" {
		flocashEnv = "sandbox"
	}

	return &Config{
		DBSource:      dbSource,
		Port:          port,
		Env:           env,
		AMQPURL:       os.Getenv("AMQP_URL"),
		PollSchedule:  schedule,
		InvoiceLookup: lookup,
		Flocash: domain.Credentials{
			Environment:     flocashEnv,
			Username:        os.Getenv("FLOCASH_API_USERNAME"),
			Password:        os.Getenv("FLOCASH_API_PASSWORD"),
			MerchantAccount: os.Getenv("FLOCASH_MERCHANT_ACCOUNT"),
		},
	}, nil
}
